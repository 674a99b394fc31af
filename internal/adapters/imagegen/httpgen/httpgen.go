// Package httpgen calls a JSON text-to-image endpoint over HTTP. Any backend
// whose response matches one of the envelopes understood by
// imagegen.DecodeImage works.
package httpgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/pkg/errs"
)

const (
	defaultTimeout = 120 * time.Second
	// maxResponseBytes bounds the body we are willing to buffer.
	maxResponseBytes = 32 << 20
)

// Client implements imagegen.Generator.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithModel adds a model field to every request.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithTimeout sets the overall HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client posting to endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model         string  `json:"model,omitempty"`
	Prompt        string  `json:"prompt"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	GuidanceScale float64 `json:"guidance_scale"`
	Seed          int64   `json:"seed"`
	N             int     `json:"n"`
}

// Generate posts the request and decodes the first image in the response.
func (c *Client) Generate(ctx context.Context, req imagegen.Request) ([]byte, error) {
	const op = "httpgen.Generate"
	if err := req.Validate(); err != nil {
		return nil, errs.Wrap(op, err)
	}

	body, err := json.Marshal(generateRequest{
		Model:         c.model,
		Prompt:        req.Prompt,
		Width:         req.Width,
		Height:        req.Height,
		GuidanceScale: req.GuidanceScale,
		Seed:          req.Seed,
		N:             1,
	})
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrInternal, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(raw)))
	}

	img, err := imagegen.DecodeImage(raw)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return img, nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
