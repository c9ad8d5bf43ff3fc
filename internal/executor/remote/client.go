// Package remote implements executor.Engine over HTTP against an external
// report engine service.
package remote

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

	"github.com/redcentre/carbonsvc/internal/executor"
)

// Retry defaults for engine calls.
const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 100 * time.Millisecond
)

// Config holds the settings of an engine service client.
type Config struct {
	// BaseURL is the engine service root, e.g. "http://engine:9090".
	BaseURL string

	// HTTPClient is used for requests; http.DefaultClient when nil.
	HTTPClient *http.Client

	// MaxRetries is the number of attempts for transport failures and
	// 502/503/504 responses.
	MaxRetries int

	// BaseBackoff is the first retry delay; it doubles on each attempt.
	BaseBackoff time.Duration
}

// Client talks to one engine service. It is safe for concurrent use; the
// engines it creates are not.
type Client struct {
	cfg Config
}

// NewClient creates an engine service client, applying defaults for unset values.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg}
}

// Factory returns an EngineFactory creating engines bound to this client.
func (c *Client) Factory() executor.EngineFactory {
	return func() executor.Engine {
		return &Engine{client: c}
	}
}

// Engine carries one session's state between calls to the engine service.
type Engine struct {
	client *Client
	state  []string
}

// Compile-time interface satisfaction check.
var _ executor.Engine = (*Engine)(nil)

// Run asks the engine service for one report and keeps the state it returns.
func (e *Engine) Run(ctx context.Context, reportName, filter string) (string, error) {
	resp, err := e.client.run(ctx, RunRequest{Report: reportName, Filter: filter, State: e.state})
	if err != nil {
		return "", err
	}
	if resp.State != nil {
		e.state = resp.State
	}
	if resp.Error != nil {
		return "", &EngineError{Type: resp.Error.Type, Messages: resp.Error.Messages}
	}
	return resp.Output, nil
}

// RestoreState replaces the state sent with subsequent calls.
func (e *Engine) RestoreState(state []string) error {
	e.state = append([]string(nil), state...)
	return nil
}

// SaveState returns the most recent state received from the engine service.
func (e *Engine) SaveState() ([]string, error) {
	return append([]string(nil), e.state...), nil
}

// run posts the request, retrying transport errors and gateway statuses with
// exponential backoff.
func (c *Client) run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	var lastErr error
	backoff := c.cfg.BaseBackoff

	for attempt := range c.cfg.MaxRetries {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("run report %q: %w", req.Report, ctx.Err())
			}
			backoff *= 2
		}

		resp, retry, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("run report %q: %w", req.Report, lastErr)
}

// post performs one request. The returned flag reports whether the failure is
// worth retrying.
func (c *Client) post(ctx context.Context, body []byte) (*RunResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+RunPath, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("post: %w", err)
	}
	defer httpResp.Body.Close()

	switch httpResp.StatusCode {
	case http.StatusOK:
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, true, fmt.Errorf("engine returned status %d", httpResp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, false, fmt.Errorf("engine returned status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var resp RunResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, MaxResponseSize)).Decode(&resp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	return &resp, false, nil
}

// IsEngineError reports whether err carries a failure reported by the engine
// service rather than a transport problem.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}
