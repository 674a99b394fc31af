// Package types contains the wire shapes shared by the HTTP API and its
// clients.
package types

import (
	"strings"
	"time"

	"github.com/okian/levitate/internal/domain/model"
)

// UploadResult describes a stored track.
type UploadResult struct {
	Key  string
	Size int64
}

// SignedObject is the payload behind a verified signed link.
type SignedObject struct {
	Data        []byte
	ContentType string
}

// UploadResponse is returned by POST /upload. S3Key repeats Key for older
// clients.
type UploadResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	S3Key  string `json:"s3_key"`
	Size   int64  `json:"size"`
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Key   string `json:"key,omitempty"`
	S3Key string `json:"s3_key,omitempty"`
}

// SourceKey returns Key, falling back to the legacy s3_key field.
func (r GenerateRequest) SourceKey() string {
	if k := strings.TrimSpace(r.Key); k != "" {
		return k
	}
	return strings.TrimSpace(r.S3Key)
}

// GenerateResponse is returned by POST /generate. Exactly one of
// ImageBase64 and ImageURL is set.
type GenerateResponse struct {
	ID          string              `json:"id"`
	Key         string              `json:"key"`
	Features    model.FeatureVector `json:"features"`
	Labels      model.Labels        `json:"labels"`
	Prompt      string              `json:"prompt"`
	Seed        int64               `json:"seed"`
	ImageBase64 string              `json:"image_base64,omitempty"`
	ImageURL    string              `json:"image_url,omitempty"`
	ImageKey    string              `json:"image_key,omitempty"`
}

// NewGenerateResponse converts a pipeline result.
func NewGenerateResponse(res *model.GenerationResult) GenerateResponse {
	return GenerateResponse{
		ID:          res.ID,
		Key:         res.SourceKey,
		Features:    res.Features,
		Labels:      res.Labels,
		Prompt:      res.Prompt,
		Seed:        res.Seed,
		ImageBase64: res.ImageBase64,
		ImageURL:    res.ImageURL,
		ImageKey:    res.ImageKey,
	}
}

// MusicFile is one entry of GET /music.
type MusicFile struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// MusicList is returned by GET /music. Error is set only when listing failed.
type MusicList struct {
	Files []MusicFile `json:"files"`
	Error string      `json:"error,omitempty"`
}

// NewMusicList converts stored objects, formatting times as RFC 3339 UTC.
func NewMusicList(objs []model.AudioObject) MusicList {
	files := make([]MusicFile, len(objs))
	for i, o := range objs {
		files[i] = MusicFile{Key: o.Key, Size: o.Size, LastModified: o.LastModified.UTC().Format(time.RFC3339)}
	}
	return MusicList{Files: files}
}

// PlaybackResponse is returned by GET /music/play/{key}.
type PlaybackResponse struct {
	URL string `json:"url"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GenerationsResponse is returned by GET /generations.
type GenerationsResponse struct {
	Enabled     bool                     `json:"enabled"`
	Generations []model.GenerationRecord `json:"generations"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
