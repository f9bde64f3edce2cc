package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"veriflow/pkg/platform/circuit"
	"veriflow/pkg/requestcontext"
)

// DefaultProbeInterval is how often an open circuit lets one probe call
// through to test whether the registry recovered.
const DefaultProbeInterval = 30 * time.Second

// BreakerClient wraps a registry client with a circuit breaker. Repeated
// timeouts and outages open the circuit; while open, calls fail fast with an
// outage error instead of burning the registry timeout on every lookup.
// One probe per interval still reaches the registry so the circuit can close
// again after recovery. Not-found and bad-data answers are real responses and
// never trip it.
type BreakerClient struct {
	inner         Client
	breaker       *circuit.Breaker
	logger        *slog.Logger
	probeInterval time.Duration

	mu        sync.Mutex
	lastProbe time.Time
}

// WithBreaker decorates client with a circuit breaker.
func WithBreaker(client Client, breaker *circuit.Breaker, logger *slog.Logger) *BreakerClient {
	return &BreakerClient{
		inner:         client,
		breaker:       breaker,
		logger:        logger,
		probeInterval: DefaultProbeInterval,
	}
}

func (c *BreakerClient) Name() string { return c.inner.Name() }

func (c *BreakerClient) Fetch(ctx context.Context, identifier string) (Record, error) {
	if c.breaker.IsOpen() && !c.claimProbe(requestcontext.Now(ctx)) {
		return Record{}, NewClientError(ErrorOutage, c.inner.Name(), "circuit open, failing fast", nil)
	}

	record, err := c.inner.Fetch(ctx, identifier)
	if err != nil {
		switch CategoryOf(err) {
		case ErrorTimeout, ErrorOutage:
			if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
				c.logger.WarnContext(ctx, "registry circuit opened", "registry", c.inner.Name())
			}
		default:
			// The registry answered; the answer just was not usable.
			c.recordSuccess(ctx)
		}
		return Record{}, err
	}

	c.recordSuccess(ctx)
	return record, nil
}

// claimProbe reports whether this call may probe the registry while the
// circuit is open. At most one probe per interval goes through.
func (c *BreakerClient) claimProbe(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastProbe) < c.probeInterval {
		return false
	}
	c.lastProbe = now
	return true
}

func (c *BreakerClient) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "registry circuit closed", "registry", c.inner.Name())
	}
}
