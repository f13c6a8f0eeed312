// Package minio implements community.ObjectRepository with minio-go.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/community-admin/pkg/community"
)

const backendName = "minio"

// Config options for the MinIO backend
type Config struct {
	// Endpoint may carry a scheme; https implies UseSSL
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	// Region is required for offline presigning; defaults to us-east-1
	Region string

	DefaultPutExpirySec int
	DefaultGetExpirySec int

	CreateBucketIfNotExist bool
}

// Backend stores objects in a MinIO (or S3-compatible) bucket
type Backend struct {
	client *minio.Client
	config Config
	now    func() time.Time
}

// New creates the client. Nothing is sent over the network unless
// CreateBucketIfNotExist is set.
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.DefaultPutExpirySec == 0 {
		config.DefaultPutExpirySec = community.DefaultPutExpirySec
	}
	if config.DefaultGetExpirySec == 0 {
		config.DefaultGetExpirySec = community.DefaultGetExpirySec
	}

	endpoint := config.Endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			config.UseSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	client.SetAppInfo("community-admin", "1.0")

	if config.CreateBucketIfNotExist {
		exists, err := client.BucketExists(ctx, config.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", config.Bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", config.Bucket, err)
			}
		}
	}

	return &Backend{client: client, config: config, now: time.Now}, nil
}

// GetObjectStream opens the object. minio-go defers the request until the
// first read, so the object is stat'ed up front to surface a missing key.
func (b *Backend) GetObjectStream(ctx context.Context, key string) (*community.ObjectStream, error) {
	obj, err := b.client.GetObject(ctx, b.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError("get", key, err)
	}

	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, mapError("get", key, err)
	}

	return &community.ObjectStream{
		Body:          obj,
		ContentType:   info.ContentType,
		ContentLength: info.Size,
	}, nil
}

func (b *Backend) HeadObject(ctx context.Context, key string) (*community.ObjectMeta, bool, error) {
	info, err := b.client.StatObject(ctx, b.config.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		mapped := mapError("head", key, err)
		if errors.Is(mapped, community.ErrObjectNotFound) {
			return nil, false, nil
		}
		return nil, false, mapped
	}

	metadata := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		metadata[k] = v
	}

	return &community.ObjectMeta{
		Key:           key,
		ContentType:   info.ContentType,
		ContentLength: info.Size,
		UpdatedAt:     info.LastModified,
		ETag:          info.ETag,
		Metadata:      metadata,
	}, true, nil
}

func (b *Backend) GenerateSignedGetURL(ctx context.Context, req community.SignedGetURLRequest) (*community.SignedURL, error) {
	expiresIn, err := community.ResolveExpiry(req.ExpiresInSeconds, b.config.DefaultGetExpirySec)
	if err != nil {
		return nil, err
	}
	if err := b.checkCredentials(req.Key); err != nil {
		return nil, err
	}

	params := url.Values{}
	if req.Filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=\"%s\"", req.Filename))
	}

	now := b.now()
	u, err := b.client.PresignedGetObject(ctx, b.config.Bucket, req.Key, time.Duration(expiresIn)*time.Second, params)
	if err != nil {
		return nil, mapError("presign_get", req.Key, err)
	}

	return &community.SignedURL{
		URL:       u.String(),
		Method:    http.MethodGet,
		Key:       req.Key,
		ExpiresIn: expiresIn,
		ExpiresAt: now.Add(time.Duration(expiresIn) * time.Second).UTC(),
	}, nil
}

// GenerateSignedPutURL signs Content-Type and x-amz-meta-* as headers, so
// an upload with a different type or metadata fails the signature check.
func (b *Backend) GenerateSignedPutURL(ctx context.Context, req community.SignedPutURLRequest) (*community.SignedURL, error) {
	expiresIn, err := community.ResolveExpiry(req.ExpiresInSeconds, b.config.DefaultPutExpirySec)
	if err != nil {
		return nil, err
	}
	if err := b.checkCredentials(req.Key); err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", req.ContentType)
	for k, v := range req.Metadata {
		headers.Set("X-Amz-Meta-"+k, v)
	}

	now := b.now()
	u, err := b.client.PresignHeader(ctx, http.MethodPut, b.config.Bucket, req.Key, time.Duration(expiresIn)*time.Second, nil, headers)
	if err != nil {
		return nil, mapError("presign_put", req.Key, err)
	}

	replay := make(map[string]string, len(headers))
	for k := range headers {
		replay[k] = headers.Get(k)
	}

	return &community.SignedURL{
		URL:         u.String(),
		Method:      http.MethodPut,
		Key:         req.Key,
		ContentType: req.ContentType,
		Headers:     replay,
		ExpiresIn:   expiresIn,
		ExpiresAt:   now.Add(time.Duration(expiresIn) * time.Second).UTC(),
	}, nil
}

// PutObject streams body with an unknown size; minio-go switches to
// multipart as needed.
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.client.PutObject(ctx, b.config.Bucket, key, body, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return mapError("put", key, err)
	}
	return nil
}

func (b *Backend) checkCredentials(key string) error {
	if b.config.AccessKeyID == "" || b.config.SecretAccessKey == "" {
		return &community.StorageError{Backend: backendName, Key: key, Op: "presign", Err: community.ErrCredentialsMissing}
	}
	return nil
}

func mapError(op, key string, err error) error {
	var cause error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		cause = err
	default:
		resp := minio.ToErrorResponse(err)
		switch {
		case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
			cause = community.ErrObjectNotFound
		case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
			cause = fmt.Errorf("%w: %v", community.ErrAccessDenied, err)
		default:
			cause = fmt.Errorf("%w: %v", community.ErrStoreUnavailable, err)
		}
	}
	return &community.StorageError{Backend: backendName, Key: key, Op: op, Err: cause}
}
