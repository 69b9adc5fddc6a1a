package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/mediapool/upstream"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const objectData = "0123456789abcdefghij"

// fakeS3 serves a single object at /media/feed/clip and S3 XML errors otherwise.
func fakeS3(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var lastVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastVersion = r.URL.Query().Get("versionId")
		switch r.URL.Path {
		case "/media/feed/clip":
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			http.ServeContent(w, r, "clip", time.Unix(1700000000, 0), bytes.NewReader([]byte(objectData)))
		case "/media/feed/secret":
			writeS3Error(w, http.StatusForbidden, "AccessDenied")
		default:
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &lastVersion
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>` + code + `</Code><Message>` + code + `</Message></Error>`))
}

func newTestFetcher(t *testing.T, srv *httptest.Server) *Fetcher {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return NewFetcher(client, "media", "feed/")
}

func TestFetcher_Ranges(t *testing.T) {
	srv, lastVersion := fakeS3(t)
	f := newTestFetcher(t, srv)
	ctx := context.Background()

	got, err := f.Fetch(ctx, "clip", upstream.FullRange)
	require.NoError(t, err)
	assert.Equal(t, objectData, string(got))

	got, err = f.Fetch(ctx, upstream.MediaKey("clip", "v2"), upstream.ByteRange{Offset: 10, Length: 3})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, "v2", *lastVersion)

	got, err = f.Fetch(ctx, "clip", upstream.ByteRange{Offset: 15})
	require.NoError(t, err)
	assert.Equal(t, "fghij", string(got))
}

func TestFetcher_Errors(t *testing.T) {
	srv, _ := fakeS3(t)
	f := newTestFetcher(t, srv)
	ctx := context.Background()

	_, err := f.Fetch(ctx, "missing", upstream.FullRange)
	assert.True(t, upstream.IsPermanent(err), "got %v", err)
	assert.ErrorIs(t, err, upstream.ErrNotFound)

	_, err = f.Fetch(ctx, "secret", upstream.FullRange)
	assert.True(t, upstream.IsPermanent(err), "got %v", err)

	_, err = f.Fetch(ctx, "~v1", upstream.FullRange)
	assert.ErrorIs(t, err, upstream.ErrInvalidKey)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		err  error
		kind upstream.Kind
	}{
		{minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, upstream.Permanent},
		{minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, upstream.Permanent},
		{minio.ErrorResponse{Code: "SlowDown", StatusCode: 503}, upstream.Transient},
		{minio.ErrorResponse{Code: "Whatever", StatusCode: 502}, upstream.Transient},
		{minio.ErrorResponse{Code: "Whatever", StatusCode: 429}, upstream.Transient},
		{errors.New("malformed"), upstream.Permanent},
		{fmt.Errorf("get object: %w", context.DeadlineExceeded), upstream.Transient},
	}
	for _, tt := range tests {
		var ne *upstream.NetworkError
		require.ErrorAs(t, classify(ctx, "k", tt.err), &ne)
		assert.Equal(t, tt.kind, ne.Kind, tt.err.Error())
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, classify(canceled, "k", errors.New("x")), context.Canceled)
}

// TestFetcher_Integration requires a running MinIO instance.
// Skip if not available.
func TestFetcher_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	bucket := "test-mediapool"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	data := []byte(strings.Repeat("frame", 100))
	_, err = client.PutObject(ctx, bucket, "it/clip", bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	require.NoError(t, err)

	f := NewFetcher(client, bucket, "it/")
	got, err := f.Fetch(ctx, "clip", upstream.ByteRange{Offset: 5, Length: 10})
	require.NoError(t, err)
	assert.Equal(t, data[5:15], got)

	require.NoError(t, client.RemoveObject(ctx, bucket, "it/clip", minio.RemoveObjectOptions{}))
}
