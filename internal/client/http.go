// Package client talks to the analysis service: HTTPClient triggers runs and
// WSChannel carries a run's events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/systemtwo/research/internal/analysis"
	"github.com/systemtwo/research/internal/protocol"
)

// maxErrorBody caps how much of a failed response is kept for the fault detail.
const maxErrorBody = 4 << 10

// HTTPClient makes REST calls to the analysis service.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ analysis.Trigger = (*HTTPClient)(nil)

// NewHTTPClient creates a client targeting baseURL (e.g.
// "http://127.0.0.1:5000"). A zero timeout leaves requests bounded only by
// their context; analyses routinely take minutes.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Trigger sends POST /run_financial_analysis and returns the report. Non-2xx
// responses come back as *analysis.StatusError.
func (c *HTTPClient) Trigger(ctx context.Context, req analysis.Request) (string, error) {
	body := protocol.RunRequest{Company: req.Subject, SessionID: req.SessionID}
	var out protocol.RunResponse
	if err := c.post(ctx, protocol.PathRun, body, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

// Runs fetches the service's in-flight runs.
func (c *HTTPClient) Runs(ctx context.Context) ([]protocol.RunInfo, error) {
	var out []protocol.RunInfo
	if err := c.get(ctx, protocol.PathRuns, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build GET %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &analysis.StatusError{Code: resp.StatusCode, Body: errorText(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// The service answered; what it sent is unusable.
		return analysis.NewFault(analysis.RemoteAnalysisFault, analysis.MalformedResponseDetail,
			fmt.Errorf("decode %s response: %w", req.URL.Path, err))
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorText prefers the service's {"error": ...} message over the raw body.
func errorText(raw []byte) string {
	var e protocol.ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

// DeriveWSURL turns the service base URL into its websocket endpoint:
// "http://host:5000" becomes "ws://host:5000/ws".
func DeriveWSURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "ws://127.0.0.1:5000" + protocol.PathWS
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + protocol.PathWS
	u.RawQuery = ""
	return u.String()
}
