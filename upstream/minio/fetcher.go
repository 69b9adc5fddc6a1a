package minio

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/hupe1980/mediapool/upstream"
	"github.com/minio/minio-go/v7"
)

// Fetcher implements upstream.Fetcher for MinIO and S3-compatible storage.
type Fetcher struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewFetcher creates a new MinIO fetcher.
// prefix is prepended to all content ids (e.g. "feed/").
func NewFetcher(client *minio.Client, bucket, prefix string) *Fetcher {
	return &Fetcher{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Fetch implements upstream.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, key string, r upstream.ByteRange) ([]byte, error) {
	contentID, version := upstream.SplitKey(key)
	if contentID == "" {
		return nil, upstream.NewPermanent(key, upstream.ErrInvalidKey)
	}
	if err := r.Validate(); err != nil {
		return nil, upstream.NewPermanent(key, err)
	}

	opts := minio.GetObjectOptions{VersionID: version}
	if err := setRange(&opts, r); err != nil {
		return nil, upstream.NewPermanent(key, err)
	}

	obj, err := f.client.GetObject(ctx, f.bucket, path.Join(f.prefix, contentID), opts)
	if err != nil {
		return nil, classify(ctx, key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "InvalidRange" {
			return []byte{}, nil
		}
		return nil, classify(ctx, key, err)
	}
	return data, nil
}

func setRange(opts *minio.GetObjectOptions, r upstream.ByteRange) error {
	switch {
	case r.Full():
		return nil
	case r.Open():
		return opts.SetRange(r.Offset, 0)
	default:
		return opts.SetRange(r.Offset, r.Offset+r.Length-1)
	}
}

// classify maps MinIO errors onto upstream.NetworkError.
func classify(ctx context.Context, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchVersion", "NoSuchBucket":
		return upstream.NewPermanent(key, fmt.Errorf("%w: %w", upstream.ErrNotFound, err))
	case "SlowDown", "SlowDownRead", "RequestTimeout", "InternalError", "ServiceUnavailable", "XMinioServerNotInitialized":
		return upstream.NewTransient(key, err)
	}
	if kind, ok := upstream.StatusKind(resp.StatusCode); ok && resp.StatusCode != 0 {
		return &upstream.NetworkError{Kind: kind, Key: key, Err: err}
	}
	return upstream.Classify(key, err)
}
