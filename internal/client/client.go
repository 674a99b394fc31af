// Package client is a typed HTTP client for the Levitate API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/okian/levitate/internal/domain/types"
)

// DefaultTimeout covers a full generation round trip.
const DefaultTimeout = 3 * time.Minute

// ErrNoBaseURL is returned by New for an empty base URL.
var ErrNoBaseURL = errors.New("client: base URL is required")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("levitate: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("levitate: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to one Levitate server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{baseURL: baseURL, http: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Status calls GET /api/status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", "", nil, &out)
	return out, err
}

// UploadFile uploads the track at path under its base name.
func (c *Client) UploadFile(ctx context.Context, path string) (types.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.UploadResponse{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Upload sends r as multipart field "file" named filename.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (types.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return types.UploadResponse{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return types.UploadResponse{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return types.UploadResponse{}, fmt.Errorf("build multipart body: %w", err)
	}

	var out types.UploadResponse
	err = c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), &body, &out)
	return out, err
}

// Generate runs the pipeline for a stored track.
func (c *Client) Generate(ctx context.Context, key string) (types.GenerateResponse, error) {
	payload, err := json.Marshal(types.GenerateRequest{Key: key})
	if err != nil {
		return types.GenerateResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	var out types.GenerateResponse
	err = c.do(ctx, http.MethodPost, "/api/generate", "application/json", bytes.NewReader(payload), &out)
	return out, err
}

// ListMusic calls GET /api/music.
func (c *Client) ListMusic(ctx context.Context) (types.MusicList, error) {
	var out types.MusicList
	err := c.do(ctx, http.MethodGet, "/api/music", "", nil, &out)
	return out, err
}

// PlaybackURL returns a short-lived link to a track.
func (c *Client) PlaybackURL(ctx context.Context, key string) (string, error) {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	var out types.PlaybackResponse
	err := c.do(ctx, http.MethodGet, "/api/music/play/"+strings.Join(segments, "/"), "", nil, &out)
	return out.URL, err
}

// Generations returns up to limit history records. Zero uses the server
// default.
func (c *Client) Generations(ctx context.Context, limit int) (types.GenerationsResponse, error) {
	path := "/api/generations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out types.GenerationsResponse
	err := c.do(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError understands both {code,message} and the {files,error}
// shape of a failed listing.
func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
