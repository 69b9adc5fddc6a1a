package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/mediapool/upstream"
)

// DDBClient is the subset of the DynamoDB API used by VersionResolver.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// VersionResolver implements upstream.Resolver by looking up the current
// object version of a content id in DynamoDB. Items without a version
// resolve to the bare content id.
type VersionResolver struct {
	client    DDBClient
	tableName string

	// KeyAttr is the partition key attribute. Defaults to "content_id".
	KeyAttr string
	// VersionAttr holds the version id. Defaults to "version".
	VersionAttr string
	// ConsistentRead requests strongly consistent reads.
	ConsistentRead bool
}

// NewVersionResolver creates a resolver backed by tableName.
func NewVersionResolver(client DDBClient, tableName string) *VersionResolver {
	return &VersionResolver{
		client:      client,
		tableName:   tableName,
		KeyAttr:     "content_id",
		VersionAttr: "version",
	}
}

// Resolve implements upstream.Resolver.
func (r *VersionResolver) Resolve(ctx context.Context, contentID string) (string, error) {
	resp, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			r.KeyAttr: &types.AttributeValueMemberS{Value: contentID},
		},
		ProjectionExpression:     aws.String("#v"),
		ExpressionAttributeNames: map[string]string{"#v": r.VersionAttr},
		ConsistentRead:           aws.Bool(r.ConsistentRead),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve version of %q: %w", contentID, err)
	}
	if len(resp.Item) == 0 {
		return contentID, nil
	}

	switch v := resp.Item[r.VersionAttr].(type) {
	case nil:
		return contentID, nil
	case *types.AttributeValueMemberS:
		return upstream.MediaKey(contentID, v.Value), nil
	case *types.AttributeValueMemberN:
		return upstream.MediaKey(contentID, v.Value), nil
	default:
		return "", fmt.Errorf("invalid %s attribute for %q in DynamoDB", r.VersionAttr, contentID)
	}
}
