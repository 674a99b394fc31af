// Package s3store implements storage.ObjectStore on Amazon S3.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/pkg/errs"
)

// API is the subset of *s3.Client the store calls.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner is the subset of *s3.PresignClient the store calls.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store talks to S3 through API and Presigner.
type Store struct {
	api       API
	presigner Presigner
}

// New wraps existing clients.
func New(api API, presigner Presigner) *Store {
	return &Store{api: api, presigner: presigner}
}

// NewFromRegion loads the default AWS credential chain for region.
func NewFromRegion(ctx context.Context, region string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errs.WrapKind("s3store.NewFromRegion", errs.ErrInternal, fmt.Errorf("load aws config: %w", err))
	}
	client := s3.NewFromConfig(cfg)
	return New(client, s3.NewPresignClient(client)), nil
}

// Fetch downloads the object body.
func (s *Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "s3store.Fetch"
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapErr(op, bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err))
	}
	return data, nil
}

// Store uploads data with the given content type.
func (s *Store) Store(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return mapErr("s3store.Store", bucket, key, err)
	}
	return nil
}

// Presign returns a SigV4 presigned GET URL. S3 does not check that the key
// exists at signing time.
func (s *Store) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", mapErr("s3store.Presign", bucket, key, err)
	}
	return req.URL, nil
}

// List walks every page of the bucket listing.
func (s *Store) List(ctx context.Context, bucket string) ([]storage.Object, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})

	var out []storage.Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapErr("s3store.List", bucket, "", err)
		}
		for _, o := range page.Contents {
			out = append(out, storage.Object{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	if out == nil {
		out = []storage.Object{}
	}
	return out, nil
}

func mapErr(op, bucket, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(op, err)
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return errs.WrapKind(op, errs.ErrNotFound, fmt.Errorf("s3://%s/%s: %w", bucket, key, storage.ErrNotFound))
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return errs.WrapKind(op, errs.ErrNotFound, fmt.Errorf("s3://%s/%s: %s: %w", bucket, key, ae.ErrorCode(), storage.ErrNotFound))
		}
	}
	return errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("s3://%s/%s: %w", bucket, key, err))
}
