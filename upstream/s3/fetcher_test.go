package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/hupe1980/mediapool/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func body(s string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(s)),
		ContentLength: aws.Int64(int64(len(s))),
	}
}

func TestFetcher_RangedRead(t *testing.T) {
	mockClient := new(MockS3Client)
	f := NewFetcher(mockClient, "media", "feed/")

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Bucket == "media" && *in.Key == "feed/clip-1" &&
			aws.ToString(in.Range) == "bytes=0-4" && aws.ToString(in.VersionId) == "v7"
	})).Return(body("hello"), nil).Once()

	got, err := f.Fetch(context.Background(), upstream.MediaKey("clip-1", "v7"), upstream.ByteRange{Length: 5})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	mockClient.AssertExpectations(t)
}

func TestFetcher_FullObject(t *testing.T) {
	mockClient := new(MockS3Client)
	f := NewFetcher(mockClient, "media", "")

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Key == "clip-2" && in.VersionId == nil && strings.HasPrefix(aws.ToString(in.Range), "bytes=0-")
	})).Return(body("whole object"), nil).Once()

	got, err := f.Fetch(context.Background(), "clip-2", upstream.FullRange)
	require.NoError(t, err)
	assert.Equal(t, "whole object", string(got))
}

func TestFetcher_InvalidRangeIsEmpty(t *testing.T) {
	mockClient := new(MockS3Client)
	f := NewFetcher(mockClient, "media", "")

	mockClient.On("GetObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "InvalidRange"}).Once()

	got, err := f.Fetch(context.Background(), "clip", upstream.ByteRange{Offset: 1 << 30, Length: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func statusError(code int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
		Err:      errors.New("http error"),
	}
}

func TestFetcher_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     upstream.Kind
		notFound bool
	}{
		{"no such key", &types.NoSuchKey{}, upstream.Permanent, true},
		{"not found", &types.NotFound{}, upstream.Permanent, true},
		{"no such version", &smithy.GenericAPIError{Code: "NoSuchVersion"}, upstream.Permanent, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, upstream.Permanent, false},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, upstream.Transient, false},
		{"internal", &smithy.GenericAPIError{Code: "InternalError"}, upstream.Transient, false},
		{"server fault", &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, upstream.Transient, false},
		{"status 503", statusError(503), upstream.Transient, false},
		{"status 403", statusError(403), upstream.Permanent, false},
		{"truncated body", io.ErrUnexpectedEOF, upstream.Transient, false},
		{"client timeout", fmt.Errorf("operation error S3: GetObject: %w", context.DeadlineExceeded), upstream.Transient, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := new(MockS3Client)
			f := NewFetcher(mockClient, "media", "")
			mockClient.On("GetObject", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			_, err := f.Fetch(context.Background(), "clip", upstream.ByteRange{Length: 10})

			var ne *upstream.NetworkError
			require.ErrorAs(t, err, &ne)
			assert.Equal(t, tt.kind, ne.Kind)
			assert.Equal(t, tt.notFound, errors.Is(err, upstream.ErrNotFound))
			mockClient.AssertNumberOfCalls(t, "GetObject", 1)
		})
	}
}

func TestFetcher_ContextCanceled(t *testing.T) {
	mockClient := new(MockS3Client)
	f := NewFetcher(mockClient, "media", "")

	ctx, cancel := context.WithCancel(context.Background())
	mockClient.On("GetObject", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, errors.New("request canceled")).Once()

	_, err := f.Fetch(ctx, "clip", upstream.ByteRange{Length: 10})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, upstream.IsTransient(err))
}

func TestFetcher_InvalidKey(t *testing.T) {
	f := NewFetcher(new(MockS3Client), "media", "")
	_, err := f.Fetch(context.Background(), "~v1", upstream.FullRange)
	assert.True(t, upstream.IsPermanent(err))
	assert.ErrorIs(t, err, upstream.ErrInvalidKey)
}

func TestFetcher_NegativeOffset(t *testing.T) {
	mockClient := new(MockS3Client)
	f := NewFetcher(mockClient, "media", "")

	_, err := f.Fetch(context.Background(), "clip", upstream.ByteRange{Offset: -1, Length: 4})
	assert.True(t, upstream.IsPermanent(err))
	assert.ErrorIs(t, err, upstream.ErrInvalidRange)
	mockClient.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything)
}
