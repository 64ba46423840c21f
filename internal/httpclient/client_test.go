package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldsnap/country-snapshot-server/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{
			name:    "create client with custom timeout",
			timeout: 5 * time.Second,
		},
		{
			name:    "create client with zero timeout uses default",
			timeout: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := httpclient.NewDefaultClient(tt.timeout)

			require.NotNil(t, client, "client should not be nil")
		})
	}
}

func TestDefaultClient_Get_SuccessfulRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		responseBody     string
		expectedResponse []byte
	}{
		{
			name:             "successful JSON response",
			responseBody:     `{"message": "success"}`,
			expectedResponse: []byte(`{"message": "success"}`),
		},
		{
			name:             "successful JSON array response",
			responseBody:     `[{"name": "Nigeria"}]`,
			expectedResponse: []byte(`[{"name": "Nigeria"}]`),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var receivedUserAgent string
			var receivedAccept string

			mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedUserAgent = r.Header.Get("User-Agent")
				receivedAccept = r.Header.Get("Accept")

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer mockServer.Close()

			client := httpclient.NewDefaultClient(30 * time.Second)
			ctx := context.Background()

			data, err := client.Get(ctx, mockServer.URL)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedResponse, data)
			assert.Equal(t, "country-snapshot-server/1.0", receivedUserAgent, "User-Agent header should be set correctly")
			assert.Equal(t, "application/json", receivedAccept, "Accept header should be set correctly")
		})
	}
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
	}{
		{
			name:       "not found",
			statusCode: http.StatusNotFound,
		},
		{
			name:       "internal server error",
			statusCode: http.StatusInternalServerError,
		},
		{
			name:       "too many requests",
			statusCode: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer mockServer.Close()

			client := httpclient.NewDefaultClient(30 * time.Second)

			data, err := client.Get(context.Background(), mockServer.URL)

			require.Error(t, err)
			assert.Nil(t, data)

			var httpErr *httpclient.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Equal(t, mockServer.URL, httpErr.URL)
		})
	}
}

func TestDefaultClient_Get_Timeout(t *testing.T) {
	t.Parallel()

	mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	client := httpclient.NewDefaultClient(50 * time.Millisecond)

	data, err := client.Get(context.Background(), mockServer.URL)

	require.Error(t, err)
	assert.Nil(t, data)
	assert.True(t, httpclient.IsTimeout(err), "error should be a timeout error")
}

func TestDefaultClient_Get_ContextCancellation(t *testing.T) {
	t.Parallel()

	mockServer := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	client := httpclient.NewDefaultClient(30 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data, err := client.Get(ctx, mockServer.URL)

	require.Error(t, err)
	assert.Nil(t, data)
}
