package registry

import (
	"context"
	"time"
)

// MockClient answers lookups from deterministic data with a configurable
// latency to mimic real-world calls. Used in dev wiring and tests.
type MockClient struct {
	RegistryName string
	Latency      time.Duration
	// Records maps identifiers to canned answers. Identifiers absent from
	// the map produce a not_found error.
	Records map[string]Record
	// Fail forces every lookup into the given category when non-empty.
	Fail ErrorCategory
}

func (c *MockClient) Name() string { return c.RegistryName }

func (c *MockClient) Fetch(_ context.Context, identifier string) (Record, error) {
	time.Sleep(c.Latency)
	if c.Fail != "" {
		return Record{}, NewClientError(c.Fail, c.RegistryName, "forced failure", nil)
	}
	if record, ok := c.Records[identifier]; ok {
		record.Identifier = identifier
		return record, nil
	}
	return Record{}, NewClientError(ErrorNotFound, c.RegistryName, "identifier not registered", nil)
}
