package httpgen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/pkg/errs"
)

func TestClient_Generate(t *testing.T) {
	img := []byte("\x89PNG http")
	b64 := base64.StdEncoding.EncodeToString(img)

	tests := []struct {
		name         string
		status       int
		responseBody string
		wantErr      error
	}{
		{name: "openai style", status: http.StatusOK, responseBody: `{"data":[{"b64_json":"` + b64 + `"}]}`},
		{name: "stability style", status: http.StatusOK, responseBody: `{"artifacts":[{"base64":"` + b64 + `"}]}`},
		{name: "server error", status: http.StatusBadGateway, responseBody: `upstream down`, wantErr: errs.ErrRemote},
		{name: "error field", status: http.StatusOK, responseBody: `{"error":"nsfw"}`, wantErr: imagegen.ErrBackendReport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got generateRequest
			var auth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				auth = r.Header.Get("Authorization")
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer srv.Close()

			c := New(srv.URL+"/v1/images", WithAPIKey("k-123"), WithModel("sdxl"), WithTimeout(5*time.Second))
			out, err := c.Generate(context.Background(), imagegen.Request{
				Prompt: "glowing forest", Width: 1024, Height: 1024, GuidanceScale: 8, Seed: 99,
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(out) != string(img) {
				t.Fatalf("image mismatch: %q", out)
			}
			if auth != "Bearer k-123" {
				t.Fatalf("authorization header = %q", auth)
			}
			if got.Prompt != "glowing forest" || got.Seed != 99 || got.Model != "sdxl" || got.Width != 1024 || got.N != 1 {
				t.Fatalf("request mismatch: %+v", got)
			}
		})
	}
}

func TestClient_GenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Generate(context.Background(), imagegen.Request{Prompt: "p", Width: 512, Height: 512})
	if !errors.Is(err, errs.ErrRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestClient_GenerateCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	// the handler must return before Close can finish
	defer func() {
		close(release)
		srv.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL).Generate(ctx, imagegen.Request{Prompt: "p", Width: 512, Height: 512})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
