// Package storage defines the object store port used for uploaded tracks
// and generated images, plus helpers shared by its adapters.
package storage

import (
	"context"
	"errors"
	"path"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is wrapped by adapters when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Object is a listing entry.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the blob store collaborator. Implementations must be safe
// for concurrent use.
type ObjectStore interface {
	// Fetch returns the full contents of bucket/key. Missing keys yield an
	// error matching ErrNotFound.
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	// Store writes data under bucket/key, replacing any previous object.
	Store(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// Presign returns a URL granting read access to bucket/key for ttl.
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	// List returns every object in bucket in no particular order.
	List(ctx context.Context, bucket string) ([]Object, error)
}

// SortNewestFirst orders objects by LastModified descending, then by key.
func SortNewestFirst(objs []Object) {
	slices.SortStableFunc(objs, func(a, b Object) int {
		if c := b.LastModified.Compare(a.LastModified); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
}

// FilterByExtension keeps objects whose key ends in one of exts
// (case-insensitive, with leading dot).
func FilterByExtension(objs []Object, exts []string) []Object {
	out := objs[:0:0]
	for _, o := range objs {
		ext := strings.ToLower(path.Ext(o.Key))
		if slices.Contains(exts, ext) {
			out = append(out, o)
		}
	}
	return out
}
