package s3

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/mediapool/upstream"
)

// Client is the subset of the S3 API used by Fetcher.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher implements upstream.Fetcher for S3.
type Fetcher struct {
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// NewFetcher creates a new S3 fetcher.
// prefix is prepended to all content ids (e.g. "feed/").
func NewFetcher(client Client, bucket, prefix string, optFns ...func(*manager.Downloader)) *Fetcher {
	d := manager.NewDownloader(client, func(d *manager.Downloader) {
		// Retrying belongs to the read-through layer.
		d.PartBodyMaxRetries = 0
	})
	for _, fn := range optFns {
		fn(d)
	}
	return &Fetcher{
		downloader: d,
		bucket:     bucket,
		prefix:     prefix,
	}
}

func (f *Fetcher) objectKey(contentID string) string {
	return path.Join(f.prefix, contentID)
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

	in := &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.objectKey(contentID)),
	}
	if version != "" {
		in.VersionId = aws.String(version)
	}
	if h := r.Header(); h != "" {
		in.Range = aws.String(h)
	}

	var initial []byte
	if !r.Open() {
		initial = make([]byte, 0, r.Length)
	}
	buf := manager.NewWriteAtBuffer(initial)

	n, err := f.downloader.Download(ctx, buf, in)
	if err != nil {
		if isInvalidRangeError(err) {
			return []byte{}, nil
		}
		return nil, classify(ctx, key, err)
	}
	return buf.Bytes()[:n], nil
}

// classify maps S3 errors onto upstream.NetworkError.
func classify(ctx context.Context, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return upstream.NewPermanent(key, fmt.Errorf("%w: %w", upstream.ErrNotFound, err))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown",
			"RequestTimeout", "RequestTimeTooSkewed",
			"InternalError", "ServiceUnavailable", "ServiceException", "InternalServiceException":
			return upstream.NewTransient(key, err)
		case "NoSuchKey", "NotFound", "NoSuchVersion", "NoSuchBucket":
			return upstream.NewPermanent(key, fmt.Errorf("%w: %w", upstream.ErrNotFound, err))
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		if kind, ok := upstream.StatusKind(status.HTTPStatusCode()); ok {
			return &upstream.NetworkError{Kind: kind, Key: key, Err: err}
		}
	}

	if apiErr != nil && apiErr.ErrorFault() == smithy.FaultServer {
		return upstream.NewTransient(key, err)
	}
	return upstream.Classify(key, err)
}

func isInvalidRangeError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidRange"
	}
	return false
}
