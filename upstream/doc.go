// Package upstream defines the network read contract used to fill the media
// cache, and the fetchers that implement it.
//
// A Fetcher returns the bytes of one byte range of one object. It never
// retries: every failure is reported once, as a *NetworkError that says
// whether trying again could help.
//
//	data, err := f.Fetch(ctx, upstream.MediaKey("clip-42", "v3"), upstream.ByteRange{Length: 64 << 10})
//	if upstream.IsTransient(err) {
//		// retry with backoff
//	}
//
// Implementations:
//
//   - HTTPFetcher: plain HTTP(S) origin or CDN with Range requests
//   - MemoryFetcher: in-process objects with failure injection, for tests
//   - upstream/s3: Amazon S3 (aws-sdk-go-v2)
//   - upstream/minio: MinIO and other S3-compatible stores
package upstream
