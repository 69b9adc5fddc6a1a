package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/mediapool"
	"github.com/hupe1980/mediapool/upstream"
	"github.com/hupe1980/mediapool/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
upstream:
  type: s3
  bucket: media
  prefix: feed/
  table: versions
cache:
  dir: /tmp/feed-cache
  capacity: 1048576
  compression: zstd
feed:
  radius: 2
  content_ids: [a, b, c]
retry:
  max_attempts: 5
  initial_backoff: 100ms
  max_backoff: 2s
logging:
  level: debug
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Upstream.Type)
	assert.Equal(t, "media", cfg.Upstream.Bucket)
	assert.Equal(t, "versions", cfg.Upstream.Table)
	assert.Equal(t, "us-east-1", cfg.Upstream.Region, "default kept")
	assert.Equal(t, int64(1<<20), cfg.Cache.Capacity)
	assert.Equal(t, 2, cfg.Feed.Radius)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Feed.ContentIDs)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxBackoff)

	logger, err := cfg.Logging.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, mediapool.DefaultCacheCapacity, cfg.Cache.Capacity)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown upstream", "upstream: {type: ftp}", "unsupported upstream type"},
		{"http without endpoint", "upstream: {type: http}", "upstream.endpoint"},
		{"s3 without bucket", "upstream: {type: s3}", "upstream.bucket"},
		{"minio without endpoint", "upstream: {type: minio, bucket: b}", "upstream.endpoint"},
		{"table without s3", "upstream: {type: memory, table: t}", "only supported with s3"},
		{"zero capacity", "cache: {capacity: 0}", "cache.capacity"},
		{"bad compression", "cache: {compression: brotli}", "cache.compression"},
		{"zero radius", "feed: {radius: 0}", "feed.radius"},
		{"bad level", "logging: {level: loud}", "logging.level"},
		{"malformed yaml", "upstream: [", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParsePages(t *testing.T) {
	pages, err := parsePages("0, 1,2,-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, -1}, pages)

	pages, err = parsePages("")
	require.NoError(t, err)
	assert.Empty(t, pages)

	_, err = parsePages("1,x")
	assert.Error(t, err)
}

func TestNewUpstream_Memory(t *testing.T) {
	ctx := context.Background()
	fetcher, resolver, err := newUpstream(ctx, UpstreamConfig{Type: "memory", ObjectBytes: 10})
	require.NoError(t, err)

	keys, err := upstream.ResolveKeys(ctx, resolver, []string{"ab", "cd"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "cd"}, keys)

	b, err := fetcher.Fetch(ctx, "ab", upstream.ByteRange{Offset: 8, Length: 4})
	require.NoError(t, err)
	assert.Equal(t, "ab", string(b))

	_, err = fetcher.Fetch(ctx, "", upstream.FullRange)
	assert.ErrorIs(t, err, upstream.ErrInvalidKey)
}

func TestRun_Memory(t *testing.T) {
	path := writeConfig(t, `
upstream:
  type: memory
  object_bytes: 1024
feed:
  content_ids: [a, b, c, d]
logging:
  level: error
`)
	require.NoError(t, run(path, "0,1,2,3", time.Millisecond))
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Dir = t.TempDir()
	cfg.Cache.Compression = "lz4"

	fetcher, _, err := newUpstream(context.Background(), cfg.Upstream)
	require.NoError(t, err)

	feed, err := mediapool.Open(context.Background(), fetcher, window.Keys{"x"}, cfg.Options(mediapool.NoopLogger())...)
	require.NoError(t, err)
	defer feed.Close()

	_, err = feed.Read(context.Background(), "x", upstream.FullRange)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.CacheStats().Entries)
}
