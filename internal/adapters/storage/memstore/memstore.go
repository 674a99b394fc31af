// Package memstore is an in-memory ObjectStore used for local runs and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/pkg/errs"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Store keeps objects in nested maps guarded by a single RWMutex.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]object
	signer  *storage.URLSigner
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSigner sets the signer used by Presign.
func WithSigner(s *storage.URLSigner) Option {
	return func(st *Store) {
		if s != nil {
			st.signer = s
		}
	}
}

// WithClock overrides the modification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(st *Store) {
		if now != nil {
			st.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		buckets: make(map[string]map[string]object),
		signer:  storage.NewURLSigner("levitate-dev", ""),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns a copy of the stored bytes.
func (s *Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "memstore.Fetch"
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.buckets[bucket][key]
	if !ok {
		return nil, errs.WrapKind(op, errs.ErrNotFound, storage.ErrNotFound)
	}
	out := make([]byte, len(o.data))
	copy(out, o.data)
	return out, nil
}

// Store saves a copy of data.
func (s *Store) Store(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	const op = "memstore.Store"
	if err := ctx.Err(); err != nil {
		return errs.Wrap(op, err)
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]object)
		s.buckets[bucket] = b
	}
	b[key] = object{data: buf, contentType: contentType, modified: s.now()}
	return nil
}

// Presign returns a signed link served by the objects route. The key must
// exist.
func (s *Store) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	const op = "memstore.Presign"
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(op, err)
	}
	s.mu.RLock()
	_, ok := s.buckets[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return "", errs.WrapKind(op, errs.ErrNotFound, storage.ErrNotFound)
	}
	return s.signer.Sign(bucket, key, ttl), nil
}

// List returns every object in bucket. Unknown buckets are empty.
func (s *Store) List(ctx context.Context, bucket string) ([]storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap("memstore.List", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Object, 0, len(s.buckets[bucket]))
	for k, o := range s.buckets[bucket] {
		out = append(out, storage.Object{Key: k, Size: int64(len(o.data)), LastModified: o.modified})
	}
	return out, nil
}

// ContentType reports the content type recorded for bucket/key.
func (s *Store) ContentType(bucket, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.buckets[bucket][key]
	return o.contentType, ok
}
