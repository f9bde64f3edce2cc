package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewHTTPClient("kvk", server.URL, 2*time.Second, nil)
}

func Test_HTTPClient_FetchActiveRecord(t *testing.T) {
	_, client := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345678", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Jansen Webdesign","address":"Keizersgracht 1","status":"active"}`))
	})

	record, err := client.Fetch(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Equal(t, "12345678", record.Identifier)
	assert.Equal(t, "Jansen Webdesign", record.Name)
	assert.Equal(t, "Keizersgracht 1", record.Address)
	assert.Equal(t, RecordStatusActive, record.Status)
}

func Test_HTTPClient_ErrorCategories(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    ErrorCategory
	}{
		{
			"404 is not_found",
			func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) },
			ErrorNotFound,
		},
		{
			"429 is rate_limited",
			func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			ErrorRateLimited,
		},
		{
			"500 is outage",
			func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			ErrorOutage,
		},
		{
			"malformed payload is bad_data",
			func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"status":`)) },
			ErrorBadData,
		},
		{
			"unrecognized status is bad_data",
			func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"status":"pending"}`)) },
			ErrorBadData,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, client := newTestRegistry(t, tc.handler)

			_, err := client.Fetch(context.Background(), "12345678")
			require.Error(t, err)
			assert.Equal(t, tc.want, CategoryOf(err))
		})
	}
}

func Test_HTTPClient_TimeoutCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":"active"}`))
	}))
	t.Cleanup(server.Close)
	client := NewHTTPClient("kvk", server.URL, 20*time.Millisecond, nil)

	_, err := client.Fetch(context.Background(), "12345678")
	require.Error(t, err)
	assert.Equal(t, ErrorTimeout, CategoryOf(err))
}

func Test_HTTPClient_LimiterBlocksBeforeNetworkAccess(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		_, _ = w.Write([]byte(`{"status":"active"}`))
	}))
	t.Cleanup(server.Close)
	client := NewHTTPClient("kvk", server.URL, time.Second, NewSlidingWindowLimiter(1, time.Minute))

	_, err := client.Fetch(context.Background(), "12345678")
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "12345678")
	require.Error(t, err)
	assert.Equal(t, ErrorRateLimited, CategoryOf(err))
	assert.Equal(t, 1, requests)
}

func Test_CategoryOf_NonClientErrorsAreOutages(t *testing.T) {
	assert.Equal(t, ErrorOutage, CategoryOf(context.DeadlineExceeded))
}
