// Package imagegen defines the text-to-image collaborator and the response
// decoding shared by its adapters.
package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/levitate/pkg/errs"
)

// MaxSeed is the largest seed accepted by the supported backends.
const MaxSeed = 2147483646

// Errors returned while decoding backend responses.
var (
	ErrNoImage       = errors.New("response carries no image")
	ErrBackendReport = errors.New("backend reported an error")
)

// Request describes one image generation call.
type Request struct {
	Prompt        string
	Width         int
	Height        int
	GuidanceScale float64
	Seed          int64
}

// Validate checks the request before it leaves the process.
func (r Request) Validate() error {
	const op = "imagegen.Request.Validate"
	switch {
	case strings.TrimSpace(r.Prompt) == "":
		return errs.WrapKind(op, errs.ErrValidation, errors.New("empty prompt"))
	case r.Width <= 0 || r.Height <= 0:
		return errs.WrapKind(op, errs.ErrValidation, fmt.Errorf("bad size %dx%d", r.Width, r.Height))
	case r.Seed < 0 || r.Seed > MaxSeed:
		return errs.WrapKind(op, errs.ErrValidation, fmt.Errorf("seed %d out of range", r.Seed))
	}
	return nil
}

// Generator turns a prompt into encoded image bytes (PNG for every backend
// we ship).
type Generator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) ([]byte, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }

// envelope covers the response shapes of the backends we talk to.
type envelope struct {
	Images    []string `json:"images"`
	Image     string   `json:"image"`
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error json.RawMessage `json:"error"`
}

// DecodeImage extracts the first base64 image from a JSON response body.
// It accepts images[0], artifacts[0].base64, image and data[0].b64_json, in
// that order. A non-null error field wins over any image.
func DecodeImage(body []byte) ([]byte, error) {
	const op = "imagegen.DecodeImage"
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("parse response: %w", err))
	}
	if msg := errorText(env.Error); msg != "" {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("%w: %s", ErrBackendReport, msg))
	}

	var encoded string
	switch {
	case len(env.Images) > 0:
		encoded = env.Images[0]
	case len(env.Artifacts) > 0:
		encoded = env.Artifacts[0].Base64
	case env.Image != "":
		encoded = env.Image
	case len(env.Data) > 0:
		encoded = env.Data[0].B64JSON
	}
	if encoded == "" {
		return nil, errs.WrapKind(op, errs.ErrRemote, ErrNoImage)
	}

	img, err := base64.StdEncoding.DecodeString(stripDataURL(encoded))
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("decode base64 image: %w", err))
	}
	return img, nil
}

// errorText flattens a string or {"message": ...} error field.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}
