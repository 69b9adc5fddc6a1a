// Package s3 implements upstream.Fetcher for Amazon S3.
//
// Media keys map to objects as <prefix>/<contentID>; the rotation suffix of a
// key is sent as the object VersionId, so a rotated key addresses a distinct,
// immutable object version.
//
// Ranged reads go through the feature/s3/manager Downloader, which issues a
// single GetObject for ranged requests and parallel part requests for whole
// objects.
//
// Usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	f := mps3.NewFetcher(client, "media-bucket", "feed/")
//
// Current versions can be looked up in DynamoDB with VersionResolver:
//
//	r := mps3.NewVersionResolver(dynamodb.NewFromConfig(cfg), "media-versions")
//	keys, err := upstream.ResolveKeys(ctx, r, contentIDs, 0)
//
// Table schema:
//   - Partition key: content_id (string)
//   - Attribute: version (string) - current S3 object version id
package s3
