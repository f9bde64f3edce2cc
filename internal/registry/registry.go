// Package registry adapts the external authoritative registries (company
// register, tax register) behind a small client interface. Both registries
// share the same result shape, so one Client contract serves both and the
// validation layer holds two instances.
package registry

import (
	"context"
	"fmt"
)

// RecordStatus is the registration status a registry reports for an
// identifier. The set is closed: an unrecognized upstream value is a contract
// error, never silently passed through.
type RecordStatus string

const (
	RecordStatusActive   RecordStatus = "active"
	RecordStatusInactive RecordStatus = "inactive"
)

// ParseRecordStatus maps an upstream status string onto the closed status
// set. Unknown values fail loudly as a bad_data client error so contract
// drift surfaces in monitoring instead of passing as "unknown".
func ParseRecordStatus(raw string) (RecordStatus, error) {
	switch RecordStatus(raw) {
	case RecordStatusActive, RecordStatusInactive:
		return RecordStatus(raw), nil
	default:
		return "", fmt.Errorf("unrecognized registry status %q", raw)
	}
}

// Record is the normalized answer from a registry lookup.
type Record struct {
	Identifier string
	Name       string
	Address    string
	Status     RecordStatus
}

// Client queries one external registry. Implementations must respect the
// registry's rate limit (returning a rate_limited error instead of retrying)
// and bound every call with a timeout.
type Client interface {
	// Fetch looks up a normalized identifier. Failures are *ClientError
	// values carrying a normalized category.
	Fetch(ctx context.Context, identifier string) (Record, error)

	// Name identifies the registry in logs, errors and metrics labels.
	Name() string
}
