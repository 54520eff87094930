package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rowetechinc/river/internal/dash"
	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/serialport"
	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/telemetry"
)

// APIError is a non-2xx response from the control API.
type APIError struct {
	Method string
	Path   string
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Msg)
}

// HTTPClient drives the bridge control API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting baseURL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) Ports(ctx context.Context) ([]serialport.Info, error) {
	var out []serialport.Info
	if err := c.do(ctx, http.MethodGet, "/api/ports", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Bauds(ctx context.Context) ([]int, error) {
	var out []int
	if err := c.do(ctx, http.MethodGet, "/api/bauds", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect opens port at baud. A zero baud uses the server default.
func (c *HTTPClient) Connect(ctx context.Context, port string, baud int) (session.State, error) {
	body := map[string]any{"port": port, "baud": baud}
	var st session.State
	err := c.do(ctx, http.MethodPost, "/api/connect", body, &st)
	return st, err
}

func (c *HTTPClient) Disconnect(ctx context.Context) (session.State, error) {
	var st session.State
	err := c.do(ctx, http.MethodPost, "/api/disconnect", nil, &st)
	return st, err
}

// Break returns nil without error when no port is open. The call blocks for
// the server's settle interval.
func (c *HTTPClient) Break(ctx context.Context) (*decoder.BreakResult, error) {
	var res *decoder.BreakResult
	if err := c.do(ctx, http.MethodPost, "/api/break", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *HTTPClient) Command(ctx context.Context, text string) error {
	return c.do(ctx, http.MethodPost, "/api/command", map[string]string{"command": text}, nil)
}

func (c *HTTPClient) State(ctx context.Context) (session.State, error) {
	var st session.State
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &st)
	return st, err
}

func (c *HTTPClient) Plot(ctx context.Context) (telemetry.Snapshot, error) {
	var out telemetry.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/plot", nil, &out)
	return out, err
}

func (c *HTTPClient) Dash(ctx context.Context) (dash.Snapshot, error) {
	var out dash.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/dash", nil, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Msg: string(bytes.TrimSpace(raw))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			apiErr.Msg = e.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
