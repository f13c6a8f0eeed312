package memory_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/community-admin/pkg/community"
	"github.com/tendant/community-admin/pkg/community/objectstore/memory"
	"github.com/tendant/community-admin/pkg/community/presigned"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time            { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newBackend(clock *fakeClock) *memory.Backend {
	return memory.New(memory.Config{
		Bucket:              "test-bucket",
		BaseURL:             "http://localhost:3000/objects",
		SecretKey:           "test-secret-key-with-at-least-32-bytes",
		DefaultPutExpirySec: 300,
		DefaultGetExpirySec: 600,
		Clock:               clock.Now,
	})
}

func TestMemoryBackend_PutAndStream(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(&fakeClock{now: time.Unix(1_700_000_000, 0)})

	err := backend.PutObject(ctx, "artifacts/a1.png", strings.NewReader("png-bytes"), "image/png", map[string]string{"owner": "admin"})
	require.NoError(t, err)

	t.Run("StreamReturnsBytes", func(t *testing.T) {
		stream, err := backend.GetObjectStream(ctx, "artifacts/a1.png")
		require.NoError(t, err)
		defer stream.Close()

		data, err := io.ReadAll(stream.Body)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "image/png", stream.ContentType)
		assert.Equal(t, int64(len("png-bytes")), stream.ContentLength)
	})

	t.Run("SecondReadOpensFreshStream", func(t *testing.T) {
		first, err := backend.GetObjectStream(ctx, "artifacts/a1.png")
		require.NoError(t, err)
		_, _ = io.ReadAll(first.Body)
		require.NoError(t, first.Close())

		second, err := backend.GetObjectStream(ctx, "artifacts/a1.png")
		require.NoError(t, err)
		defer second.Close()
		data, err := io.ReadAll(second.Body)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
	})

	t.Run("MissingKey", func(t *testing.T) {
		_, err := backend.GetObjectStream(ctx, "artifacts/missing.png")
		require.Error(t, err)
		assert.True(t, errors.Is(err, community.ErrObjectNotFound))
	})

	t.Run("Head", func(t *testing.T) {
		meta, found, err := backend.HeadObject(ctx, "artifacts/a1.png")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "image/png", meta.ContentType)
		assert.Equal(t, int64(9), meta.ContentLength)
		assert.Equal(t, "admin", meta.Metadata["owner"])

		_, found, err = backend.HeadObject(ctx, "artifacts/missing.png")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestMemoryBackend_SignedPutURLRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	backend := newBackend(clock)

	signed, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{
		Key:              "k",
		ContentType:      "text/plain",
		ExpiresInSeconds: community.Seconds(60),
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, signed.Method)
	assert.Equal(t, 60, signed.ExpiresIn)
	assert.Equal(t, clock.now.Add(60*time.Second).UTC(), signed.ExpiresAt)
	assert.Equal(t, "text/plain", signed.Headers["Content-Type"])

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Equal(t, "/objects/upload/k", u.Path)

	grant := presigned.Grant{Method: http.MethodPut, Key: "k", ContentType: "text/plain"}
	assert.NoError(t, backend.ValidateGrant(u.Query(), grant))

	t.Run("OtherKeyRejected", func(t *testing.T) {
		other := grant
		other.Key = "k2"
		assert.ErrorIs(t, backend.ValidateGrant(u.Query(), other), presigned.ErrInvalidSignature)
	})

	t.Run("OtherContentTypeRejected", func(t *testing.T) {
		other := grant
		other.ContentType = "application/json"
		assert.ErrorIs(t, backend.ValidateGrant(u.Query(), other), presigned.ErrInvalidSignature)
	})

	t.Run("OtherMethodRejected", func(t *testing.T) {
		other := grant
		other.Method = http.MethodGet
		assert.ErrorIs(t, backend.ValidateGrant(u.Query(), other), presigned.ErrInvalidSignature)
	})

	t.Run("ExpiredAfterWindow", func(t *testing.T) {
		clock.Advance(60 * time.Second)
		assert.NoError(t, backend.ValidateGrant(u.Query(), grant))

		clock.Advance(time.Second)
		assert.ErrorIs(t, backend.ValidateGrant(u.Query(), grant), presigned.ErrExpired)
	})
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(&fakeClock{now: time.Unix(1_700_000_000, 0)})

	t.Run("ZeroRejected", func(t *testing.T) {
		_, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{
			Key: "k", ContentType: "text/plain", ExpiresInSeconds: community.Seconds(0),
		})
		assert.ErrorIs(t, err, community.ErrInvalidExpiry)
	})

	t.Run("NegativeRejected", func(t *testing.T) {
		_, err := backend.GenerateSignedGetURL(ctx, community.SignedGetURLRequest{
			Key: "k", ExpiresInSeconds: community.Seconds(-5),
		})
		assert.ErrorIs(t, err, community.ErrInvalidExpiry)
	})

	t.Run("OmittedUsesDefault", func(t *testing.T) {
		put, err := backend.GenerateSignedPutURL(ctx, community.SignedPutURLRequest{Key: "k", ContentType: "text/plain"})
		require.NoError(t, err)
		assert.Equal(t, 300, put.ExpiresIn)

		get, err := backend.GenerateSignedGetURL(ctx, community.SignedGetURLRequest{Key: "k"})
		require.NoError(t, err)
		assert.Equal(t, 600, get.ExpiresIn)
	})
}

func TestMemoryBackend_MissingSecret(t *testing.T) {
	backend := memory.New(memory.Config{BaseURL: "http://localhost/objects"})

	_, err := backend.GenerateSignedPutURL(context.Background(), community.SignedPutURLRequest{Key: "k", ContentType: "text/plain"})
	require.Error(t, err)
	assert.ErrorIs(t, err, community.ErrCredentialsMissing)
	assert.False(t, backend.IsSignedURLEnabled())
}

func TestMemoryBackend_MaxObjectBytes(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(memory.Config{MaxObjectBytes: 3})

	err := backend.PutObject(ctx, "k", strings.NewReader("abcd"), "text/plain", nil)
	assert.ErrorIs(t, err, community.ErrObjectTooLarge)
	_, found, err := backend.HeadObject(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, backend.PutObject(ctx, "k", strings.NewReader("abc"), "text/plain", nil))
}
