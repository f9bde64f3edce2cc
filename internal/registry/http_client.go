package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"veriflow/pkg/requestcontext"
)

// HTTPClient calls a JSON registry endpoint of the shape
// GET {baseURL}/{identifier} -> {"name": ..., "address": ..., "status": ...}.
// Every call is bounded by the configured timeout and checked against the
// registry's rate limit before any network access.
type HTTPClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *SlidingWindowLimiter
}

type lookupPayload struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

// NewHTTPClient constructs a registry client. limiter may be nil when the
// registry imposes no call budget.
func NewHTTPClient(name, baseURL string, timeout time.Duration, limiter *SlidingWindowLimiter) *HTTPClient {
	return &HTTPClient{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

func (c *HTTPClient) Name() string { return c.name }

func (c *HTTPClient) Fetch(ctx context.Context, identifier string) (Record, error) {
	if !c.limiter.Allow(requestcontext.Now(ctx)) {
		return Record{}, NewClientError(ErrorRateLimited, c.name, "call budget exhausted", nil)
	}

	endpoint := c.baseURL + "/" + url.PathEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, NewClientError(ErrorBadData, c.name, "building request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Record{}, NewClientError(ErrorTimeout, c.name, "lookup timed out", err)
		}
		return Record{}, NewClientError(ErrorOutage, c.name, "lookup failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Record{}, NewClientError(ErrorNotFound, c.name, fmt.Sprintf("identifier %s not registered", identifier), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return Record{}, NewClientError(ErrorRateLimited, c.name, "registry throttled the call", nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Record{}, NewClientError(ErrorOutage, c.name, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var payload lookupPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Record{}, NewClientError(ErrorBadData, c.name, "malformed payload", err)
	}
	status, err := ParseRecordStatus(payload.Status)
	if err != nil {
		return Record{}, NewClientError(ErrorBadData, c.name, "contract violation", err)
	}

	return Record{
		Identifier: identifier,
		Name:       payload.Name,
		Address:    payload.Address,
		Status:     status,
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
