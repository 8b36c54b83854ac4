package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var MCP_USER_AGENT = fmt.Sprintf("mcp-server-definite/%s", Version)

// maxErrorBody caps how much of a remote error response is carried in error
// messages surfaced to the agent.
const maxErrorBody = 2048

func createDefiniteHTTPClient() *http.Client {
	return &http.Client{
		Transport: &mcpTransport{
			base: http.DefaultTransport,
		},
	}
}

type mcpTransport struct {
	base http.RoundTripper
}

func (t *mcpTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	reqCopy := req.Clone(req.Context())
	reqCopy.Header.Set("User-Agent", MCP_USER_AGENT)
	return t.base.RoundTrip(reqCopy)
}

// apiClient issues authenticated JSON POST requests to the Definite API.
// It is safe for concurrent use.
type apiClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func newAPIClient(cfg config) *apiClient {
	return &apiClient{
		baseURL:    cfg.baseURL,
		apiKey:     cfg.apiKey,
		timeout:    cfg.queryTimeout,
		httpClient: createDefiniteHTTPClient(),
	}
}

// apiError describes a non-2xx response from the Definite API.
type apiError struct {
	StatusCode int
	Message    string // message extracted from a JSON error body, may be empty
	Body       string // raw response body, truncated to maxErrorBody
}

func (e *apiError) Error() string {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return fmt.Sprintf("authentication failed with HTTP %d: check that DEFINITE_API_KEY is set to a valid API key (%s)", e.StatusCode, e.detail())
	}
	return fmt.Sprintf("Definite API request failed with HTTP %d: %s", e.StatusCode, e.detail())
}

// detail returns the most specific description available for the failure.
func (e *apiError) detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("query failed with HTTP %d", e.StatusCode)
}

func newAPIError(status int, body []byte) *apiError {
	return &apiError{
		StatusCode: status,
		Message:    remoteMessage(body),
		Body:       truncate(string(body), maxErrorBody),
	}
}

// remoteMessage extracts the "message" field from a JSON error body. The API
// wraps the underlying query error as "Something went wrong: <error>"; only
// the inner error is useful to the agent.
func remoteMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	msg := envelope.Message
	if _, after, found := strings.Cut(msg, "Something went wrong:"); found {
		msg = after
	}
	return strings.TrimSpace(msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}

// execute sends POST {baseURL}{path} with the JSON-encoded payload and
// returns the decoded response body. Every failure is surfaced immediately;
// there are no retries.
func (c *apiClient) execute(ctx context.Context, path string, payload map[string]any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("Definite API request timed out after %v: %w", c.timeout, err)
		case errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("Definite API request cancelled: %w", err)
		}
		return nil, fmt.Errorf("failed to reach Definite API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newAPIError(resp.StatusCode, raw)
	}

	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("Definite API returned a non-JSON response: %w", err)
	}
	return result, nil
}
