package memory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tendant/community-admin/pkg/community"
	"github.com/tendant/community-admin/pkg/community/presigned"
)

const backendName = "memory"

// Config options for the in-memory backend
type Config struct {
	Bucket string
	// BaseURL is where presigned.Handlers are mounted, e.g. http://localhost:3000/objects
	BaseURL string
	// SecretKey signs grants; without it URL generation fails with
	// community.ErrCredentialsMissing
	SecretKey           string
	DefaultPutExpirySec int
	DefaultGetExpirySec int
	// MaxObjectBytes rejects larger PutObject bodies; zero means no limit
	MaxObjectBytes int64
	// Clock overrides time.Now for signing and validation
	Clock func() time.Time
}

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of community.ObjectRepository
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	config  Config
	signer  *presigned.Signer
}

// New creates a new in-memory storage backend
func New(config Config) *Backend {
	if config.DefaultPutExpirySec == 0 {
		config.DefaultPutExpirySec = community.DefaultPutExpirySec
	}
	if config.DefaultGetExpirySec == 0 {
		config.DefaultGetExpirySec = community.DefaultGetExpirySec
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Backend{
		objects: make(map[string]object),
		config:  config,
		signer: presigned.New(
			presigned.WithSecretKey(config.SecretKey),
			presigned.WithClock(config.Clock),
		),
	}
}

// GetObjectStream returns a reader over a copy of the stored bytes
func (b *Backend) GetObjectStream(ctx context.Context, key string) (*community.ObjectStream, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, &community.StorageError{Backend: backendName, Key: key, Op: "get", Err: community.ErrObjectNotFound}
	}

	data := make([]byte, len(obj.data))
	copy(data, obj.data)

	return &community.ObjectStream{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   obj.contentType,
		ContentLength: int64(len(data)),
	}, nil
}

// HeadObject retrieves metadata for an object in memory
func (b *Backend) HeadObject(ctx context.Context, key string) (*community.ObjectMeta, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, false, nil
	}

	metadata := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		metadata[k] = v
	}

	return &community.ObjectMeta{
		Key:           key,
		ContentType:   obj.contentType,
		ContentLength: int64(len(obj.data)),
		UpdatedAt:     obj.updatedAt,
		Metadata:      metadata,
	}, true, nil
}

// PutObject stores the full body under key
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	if b.config.MaxObjectBytes > 0 {
		body = io.LimitReader(body, b.config.MaxObjectBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return &community.StorageError{Backend: backendName, Key: key, Op: "put", Err: err}
	}
	if b.config.MaxObjectBytes > 0 && int64(len(data)) > b.config.MaxObjectBytes {
		return &community.StorageError{Backend: backendName, Key: key, Op: "put", Err: community.ErrObjectTooLarge}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	stored := make(map[string]string, len(metadata))
	for k, v := range metadata {
		stored[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = object{
		data:        data,
		contentType: contentType,
		metadata:    stored,
		updatedAt:   b.config.Clock(),
	}
	return nil
}

// GenerateSignedGetURL returns an HMAC-signed download URL
func (b *Backend) GenerateSignedGetURL(ctx context.Context, req community.SignedGetURLRequest) (*community.SignedURL, error) {
	grant := presigned.Grant{Method: http.MethodGet, Key: req.Key, Filename: req.Filename}
	return b.sign("download", grant, req.ExpiresInSeconds, b.config.DefaultGetExpirySec)
}

// GenerateSignedPutURL returns an HMAC-signed upload URL bound to the
// content type and metadata
func (b *Backend) GenerateSignedPutURL(ctx context.Context, req community.SignedPutURLRequest) (*community.SignedURL, error) {
	grant := presigned.Grant{Method: http.MethodPut, Key: req.Key, ContentType: req.ContentType, Metadata: req.Metadata}
	signed, err := b.sign("upload", grant, req.ExpiresInSeconds, b.config.DefaultPutExpirySec)
	if err != nil {
		return nil, err
	}

	signed.Headers = map[string]string{"Content-Type": req.ContentType}
	for k, v := range req.Metadata {
		signed.Headers[presigned.MetadataHeaderPrefix+k] = v
	}
	return signed, nil
}

func (b *Backend) sign(route string, grant presigned.Grant, requested *int, def int) (*community.SignedURL, error) {
	expiresIn, err := community.ResolveExpiry(requested, def)
	if err != nil {
		return nil, err
	}
	if !b.signer.IsEnabled() {
		return nil, &community.StorageError{Backend: backendName, Key: grant.Key, Op: "presign", Err: community.ErrCredentialsMissing}
	}

	signedURL, expiresAt, err := b.signer.SignURL(b.config.BaseURL+"/"+route, grant, time.Duration(expiresIn)*time.Second)
	if err != nil {
		return nil, &community.StorageError{Backend: backendName, Key: grant.Key, Op: "presign", Err: err}
	}

	return &community.SignedURL{
		URL:         signedURL,
		Method:      grant.Method,
		Key:         grant.Key,
		ContentType: grant.ContentType,
		ExpiresIn:   expiresIn,
		ExpiresAt:   time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// IsSignedURLEnabled reports whether grants are validated
func (b *Backend) IsSignedURLEnabled() bool {
	return b.signer.IsEnabled()
}

// ValidateGrant checks a request's signature against the grant it claims
func (b *Backend) ValidateGrant(query url.Values, g presigned.Grant) error {
	return b.signer.ValidateQuery(query, g)
}
