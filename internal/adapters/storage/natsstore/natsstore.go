// Package natsstore implements storage.ObjectStore on NATS JetStream
// object store buckets.
package natsstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/pkg/errs"
)

// ErrSignerRequired is returned by New without a URL signer.
var ErrSignerRequired = errors.New("signer is required")

// Store maps each logical bucket to a JetStream object store bucket, created
// on first use.
type Store struct {
	js     nats.JetStreamContext
	signer *storage.URLSigner

	mu      sync.Mutex
	buckets map[string]nats.ObjectStore
}

// New returns a store bound to js. Presign hands out links signed by signer,
// which the HTTP layer serves from the objects route.
func New(js nats.JetStreamContext, signer *storage.URLSigner) (*Store, error) {
	if js == nil {
		return nil, errs.NewKind("natsstore.New", errs.ErrValidation)
	}
	if signer == nil {
		return nil, errs.WrapKind("natsstore.New", errs.ErrValidation, ErrSignerRequired)
	}
	return &Store{js: js, signer: signer, buckets: make(map[string]nats.ObjectStore)}, nil
}

// bucket creates the bucket if needed. A bucket that already exists with a
// different configuration is bound as is.
func (s *Store) bucket(name string) (nats.ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ob, ok := s.buckets[name]; ok {
		return ob, nil
	}

	ob, err := s.js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      name,
		Description: fmt.Sprintf("levitate objects for %s", name),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		ob, err = s.js.ObjectStore(name)
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", name, err)
	}
	s.buckets[name] = ob
	return ob, nil
}

// Fetch reads the whole object.
func (s *Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "natsstore.Fetch"
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(op, err)
	}
	ob, err := s.bucket(bucket)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, err)
	}

	obj, err := ob.Get(key)
	if err != nil {
		return nil, mapErr(op, bucket, key, err)
	}
	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("read %s/%s: %w", bucket, key, readErr))
	}
	if closeErr != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("close %s/%s: %w", bucket, key, closeErr))
	}
	return data, nil
}

// Store puts data under key; the content type travels as a header.
func (s *Store) Store(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	const op = "natsstore.Store"
	if err := ctx.Err(); err != nil {
		return errs.Wrap(op, err)
	}
	ob, err := s.bucket(bucket)
	if err != nil {
		return errs.WrapKind(op, errs.ErrRemote, err)
	}

	meta := &nats.ObjectMeta{Name: key}
	if contentType != "" {
		meta.Headers = nats.Header{"Content-Type": []string{contentType}}
	}
	if _, err := ob.Put(meta, bytes.NewReader(data)); err != nil {
		return errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("put %s/%s: %w", bucket, key, err))
	}
	return nil
}

// Presign checks the object exists and signs a link to it.
func (s *Store) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	const op = "natsstore.Presign"
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(op, err)
	}
	ob, err := s.bucket(bucket)
	if err != nil {
		return "", errs.WrapKind(op, errs.ErrRemote, err)
	}
	if _, err := ob.GetInfo(key); err != nil {
		return "", mapErr(op, bucket, key, err)
	}
	return s.signer.Sign(bucket, key, ttl), nil
}

// List returns live objects in bucket.
func (s *Store) List(ctx context.Context, bucket string) ([]storage.Object, error) {
	const op = "natsstore.List"
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(op, err)
	}
	ob, err := s.bucket(bucket)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, err)
	}

	infos, err := ob.List()
	if errors.Is(err, nats.ErrNoObjectsFound) {
		return []storage.Object{}, nil
	}
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("list %s: %w", bucket, err))
	}
	out := make([]storage.Object, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		out = append(out, storage.Object{
			Key:          info.Name,
			Size:         int64(info.Size),
			LastModified: info.ModTime,
		})
	}
	return out, nil
}

func mapErr(op, bucket, key string, err error) error {
	if errors.Is(err, nats.ErrObjectNotFound) {
		return errs.WrapKind(op, errs.ErrNotFound, fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound))
	}
	return errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("%s/%s: %w", bucket, key, err))
}
