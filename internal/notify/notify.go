// Package notify delivers confirmation links to clients. The real deployment
// plugs in a mail provider; the log notifier covers dev and tests.
package notify

import (
	"context"
	"log/slog"

	id "veriflow/pkg/domain"
)

// Notifier delivers a confirmation link to the client out of band.
type Notifier interface {
	SendConfirmationLink(ctx context.Context, clientID id.ClientID, token string) error
}

// LogNotifier writes the link to the log instead of sending it. Dev only.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendConfirmationLink(ctx context.Context, clientID id.ClientID, token string) error {
	n.logger.InfoContext(ctx, "confirmation link issued",
		"client_id", clientID, "token", token)
	return nil
}
