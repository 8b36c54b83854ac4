package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns an apiClient pointed at a fake Definite API served by
// the given handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) *apiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &apiClient{
		baseURL:    srv.URL,
		apiKey:     "test-key",
		timeout:    5 * time.Second,
		httpClient: createDefiniteHTTPClient(),
	}
}

func TestExecuteSuccess(t *testing.T) {
	var gotAuth, gotContentType, gotUserAgent, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows": [{"id": 1}]}`))
	})

	result, err := client.execute(context.Background(), "/sql", map[string]any{"sql": "SELECT 1"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "/sql", gotPath)
	assert.True(t, strings.HasPrefix(gotUserAgent, "mcp-server-definite/"), "user agent %q", gotUserAgent)
	assert.Equal(t, map[string]any{"rows": []any{map[string]any{"id": float64(1)}}}, result)
}

func TestExecuteStatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantInMsg  []string
		wantStatus int
	}{
		{
			name:       "401 points at the API key",
			status:     http.StatusUnauthorized,
			body:       `{"message": "Invalid Authorization Header"}`,
			wantInMsg:  []string{"DEFINITE_API_KEY", "401", "Invalid Authorization Header"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "403 points at the API key",
			status:     http.StatusForbidden,
			body:       `forbidden`,
			wantInMsg:  []string{"DEFINITE_API_KEY", "403"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "500 carries status and body",
			status:     http.StatusInternalServerError,
			body:       `boom`,
			wantInMsg:  []string{"500", "boom"},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "remote message is extracted from the error envelope",
			status:     http.StatusBadRequest,
			body:       `{"message": "Something went wrong: syntax error at or near \"FORM\""}`,
			wantInMsg:  []string{"400", `syntax error at or near "FORM"`},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty remote message falls back to a generic description",
			status:     http.StatusBadRequest,
			body:       `{"message": ""}`,
			wantInMsg:  []string{"query failed with HTTP 400"},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.execute(context.Background(), "/sql", map[string]any{"sql": "SELECT 1"})
			require.Error(t, err)

			var apiErr *apiError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			for _, want := range tt.wantInMsg {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestExecuteTruncatesLargeErrorBodies(t *testing.T) {
	big := strings.Repeat("x", maxErrorBody*2)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(big))
	})

	_, err := client.execute(context.Background(), "/sql", map[string]any{"sql": "SELECT 1"})
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "(truncated)")
	assert.Less(t, len(err.Error()), len(big))
}

func TestExecuteNonJSONResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway</html>"))
	})

	_, err := client.execute(context.Background(), "/cube", map[string]any{"cube_query": map[string]any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-JSON response")
}

func TestExecuteTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})
	client.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := client.execute(context.Background(), "/sql", map[string]any{"sql": "SELECT 1"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, elapsed, time.Second, "timeout was not enforced")
}

func TestExecuteCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.execute(ctx, "/sql", map[string]any{"sql": "SELECT 1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestExecuteUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := &apiClient{
		baseURL:    url,
		apiKey:     "test-key",
		timeout:    time.Second,
		httpClient: createDefiniteHTTPClient(),
	}

	_, err := client.execute(context.Background(), "/sql", map[string]any{"sql": "SELECT 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach")
}
