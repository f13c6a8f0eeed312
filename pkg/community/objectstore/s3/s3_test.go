package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/community-admin/pkg/community"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := New(Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return backend
}

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
		assert.Equal(t, community.DefaultPutExpirySec, backend.config.DefaultPutExpirySec)
		assert.Equal(t, community.DefaultGetExpirySec, backend.config.DefaultGetExpirySec)
	})

	t.Run("CustomEndpoint", func(t *testing.T) {
		backend := newTestBackend(t)
		assert.Equal(t, "http://localhost:9000", backend.config.Endpoint)
		assert.True(t, backend.config.UsePathStyle)
	})
}

func TestS3Backend_SignedPutURL(t *testing.T) {
	backend := newTestBackend(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return fixed }
	ctx := context.Background()

	signed, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{
		Key:              "uploads/photo.jpg",
		ContentType:      "image/jpeg",
		Metadata:         map[string]string{"owner": "c1"},
		ExpiresInSeconds: community.Seconds(60),
	})
	require.NoError(t, err)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Equal(t, "/test-bucket/uploads/photo.jpg", u.Path)
	assert.Equal(t, "60", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Contains(t, strings.ToLower(u.Query().Get("X-Amz-SignedHeaders")), "content-type")

	assert.Equal(t, "PUT", signed.Method)
	assert.Equal(t, 60, signed.ExpiresIn)
	assert.Equal(t, fixed.Add(time.Minute), signed.ExpiresAt)
	assert.Equal(t, "image/jpeg", signed.Headers["Content-Type"])
	assert.NotContains(t, signed.Headers, "Host")

	t.Run("DefaultExpiry", func(t *testing.T) {
		signed, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{Key: "k", ContentType: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, community.DefaultPutExpirySec, signed.ExpiresIn)
	})

	t.Run("ContentTypeSignedWithoutMetadata", func(t *testing.T) {
		signed, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{
			Key: "k", ContentType: "text/plain", ExpiresInSeconds: community.Seconds(60),
		})
		require.NoError(t, err)

		u, err := url.Parse(signed.URL)
		require.NoError(t, err)
		signedHeaders := strings.Split(strings.ToLower(u.Query().Get("X-Amz-SignedHeaders")), ";")
		assert.Contains(t, signedHeaders, "content-type")
		assert.Equal(t, map[string]string{"Content-Type": "text/plain"}, signed.Headers)

		other, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{
			Key: "k", ContentType: "image/png", ExpiresInSeconds: community.Seconds(60),
		})
		require.NoError(t, err)
		o, err := url.Parse(other.URL)
		require.NoError(t, err)
		assert.NotEqual(t, u.Query().Get("X-Amz-Signature"), o.Query().Get("X-Amz-Signature"))
	})

	t.Run("InvalidExpiry", func(t *testing.T) {
		for _, sec := range []int{0, -1} {
			_, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{
				Key: "k", ContentType: "text/plain", ExpiresInSeconds: community.Seconds(sec),
			})
			assert.ErrorIs(t, err, community.ErrInvalidExpiry)
		}
	})
}

func TestS3Backend_SignedGetURL(t *testing.T) {
	backend := newTestBackend(t)

	signed, err := backend.GenerateSignedGetURL(context.Background(), community.SignedGetURLRequest{
		Key:      "artifacts/a1",
		Filename: "logo.png",
	})
	require.NoError(t, err)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename="logo.png"`, u.Query().Get("response-content-disposition"))
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, community.DefaultGetExpirySec, signed.ExpiresIn)
}

func TestS3Backend_MissingCredentials(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent/credentials")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI", "")
	t.Setenv("AWS_CONTAINER_CREDENTIALS_FULL_URI", "")
	t.Setenv("AWS_WEB_IDENTITY_TOKEN_FILE", "")

	backend, err := New(Config{Bucket: "test-bucket"})
	require.NoError(t, err)

	_, err = backend.GenerateSignedPutURL(context.Background(), community.SignedPutURLRequest{Key: "k", ContentType: "text/plain"})
	assert.ErrorIs(t, err, community.ErrCredentialsMissing)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"NoSuchKey", &types.NoSuchKey{}, community.ErrObjectNotFound},
		{"NotFound", &types.NotFound{}, community.ErrObjectNotFound},
		{"AccessDenied", &smithy.GenericAPIError{Code: "AccessDenied"}, community.ErrAccessDenied},
		{"Forbidden", &smithy.GenericAPIError{Code: "Forbidden"}, community.ErrAccessDenied},
		{"Throttled", &smithy.GenericAPIError{Code: "SlowDown"}, community.ErrStoreUnavailable},
		{"Transport", fmt.Errorf("dial tcp: connection refused"), community.ErrStoreUnavailable},
		{"Canceled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("get", "k", tt.err)
			assert.ErrorIs(t, err, tt.want)

			var storageErr *community.StorageError
			require.ErrorAs(t, err, &storageErr)
			assert.Equal(t, "k", storageErr.Key)
		})
	}
}

// TestS3Backend_Integration tests actual S3/MinIO operations
// This test requires a running MinIO instance or S3 credentials
func TestS3Backend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("AWS_S3_ENDPOINT")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	bucket := os.Getenv("AWS_S3_BUCKET")
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		t.Skip("Skipping integration test: S3/MinIO environment variables not set")
	}

	backend, err := New(Config{
		Bucket:                 bucket,
		Region:                 "us-east-1",
		AccessKeyID:            accessKey,
		SecretAccessKey:        secretKey,
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err, "Failed to create S3 backend")

	ctx := context.Background()
	key := fmt.Sprintf("test/integration/%d/file.txt", time.Now().UnixNano())
	data := []byte("Hello from S3 integration test!")

	require.NoError(t, backend.PutObject(ctx, key, bytes.NewReader(data), "text/plain", map[string]string{"owner": "c1"}))

	t.Run("Stream", func(t *testing.T) {
		stream, err := backend.GetObjectStream(ctx, key)
		require.NoError(t, err)
		defer stream.Close()

		got, err := io.ReadAll(stream.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Equal(t, int64(len(data)), stream.ContentLength)
	})

	t.Run("Head", func(t *testing.T) {
		meta, found, err := backend.HeadObject(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "text/plain", meta.ContentType)
		assert.NotEmpty(t, meta.ETag)
	})

	t.Run("Missing", func(t *testing.T) {
		_, found, err := backend.HeadObject(ctx, "nonexistent/object.txt")
		require.NoError(t, err)
		assert.False(t, found)

		_, err = backend.GetObjectStream(ctx, "nonexistent/object.txt")
		assert.ErrorIs(t, err, community.ErrObjectNotFound)
	})
}
