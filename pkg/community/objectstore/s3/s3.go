package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/tendant/community-admin/pkg/community"
)

const backendName = "s3"

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	DefaultPutExpirySec int // Lifetime of upload grants (default: 900)
	DefaultGetExpirySec int // Lifetime of download grants (default: 3600)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend is an S3-compatible implementation of community.ObjectRepository
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	uploader      *manager.Uploader
	credentials   aws.CredentialsProvider
	config        Config
	now           func() time.Time
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
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

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		uploader:      manager.NewUploader(client),
		credentials:   awsCfg.Credentials,
		config:        config,
		now:           time.Now,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.config.Bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) && apiErrorCode(err) != "NoSuchBucket" {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.config.Bucket)}
	if b.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		switch apiErrorCode(err) {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return nil
		}
		return err
	}
	return nil
}

// GetObjectStream opens the object body. The caller closes it.
func (b *Backend) GetObjectStream(ctx context.Context, key string) (*community.ObjectStream, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("get", key, err)
	}

	return &community.ObjectStream{
		Body:          result.Body,
		ContentType:   aws.ToString(result.ContentType),
		ContentLength: aws.ToInt64(result.ContentLength),
	}, nil
}

// HeadObject retrieves metadata for an object in S3
func (b *Backend) HeadObject(ctx context.Context, key string) (*community.ObjectMeta, bool, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		mapped := mapError("head", key, err)
		if errors.Is(mapped, community.ErrObjectNotFound) {
			return nil, false, nil
		}
		return nil, false, mapped
	}

	contentType := aws.ToString(result.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata := make(map[string]string, len(result.Metadata))
	for k, v := range result.Metadata {
		metadata[k] = v
	}

	return &community.ObjectMeta{
		Key:           key,
		ContentType:   contentType,
		ContentLength: aws.ToInt64(result.ContentLength),
		UpdatedAt:     aws.ToTime(result.LastModified),
		ETag:          strings.Trim(aws.ToString(result.ETag), "\""),
		Metadata:      metadata,
	}, true, nil
}

// GenerateSignedGetURL returns a presigned download URL
func (b *Backend) GenerateSignedGetURL(ctx context.Context, req community.SignedGetURLRequest) (*community.SignedURL, error) {
	expiresIn, err := community.ResolveExpiry(req.ExpiresInSeconds, b.config.DefaultGetExpirySec)
	if err != nil {
		return nil, err
	}
	if err := b.checkCredentials(ctx, req.Key); err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(req.Key),
	}
	if req.Filename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=\"%s\"", req.Filename))
	}

	now := b.now()
	result, err := b.presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = time.Duration(expiresIn) * time.Second
	})
	if err != nil {
		return nil, &community.StorageError{Backend: backendName, Key: req.Key, Op: "presign_get", Err: fmt.Errorf("%w: %v", community.ErrCredentialsMissing, err)}
	}

	return &community.SignedURL{
		URL:       result.URL,
		Method:    http.MethodGet,
		Key:       req.Key,
		ExpiresIn: expiresIn,
		ExpiresAt: now.Add(time.Duration(expiresIn) * time.Second).UTC(),
	}, nil
}

// GenerateSignedPutURL returns a presigned upload URL. Content type, SSE and
// metadata are signed headers the client must replay.
func (b *Backend) GenerateSignedPutURL(ctx context.Context, req community.SignedPutURLRequest) (*community.SignedURL, error) {
	expiresIn, err := community.ResolveExpiry(req.ExpiresInSeconds, b.config.DefaultPutExpirySec)
	if err != nil {
		return nil, err
	}
	if err := b.checkCredentials(ctx, req.Key); err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.config.Bucket),
		Key:         aws.String(req.Key),
		ContentType: aws.String(req.ContentType),
	}
	if len(req.Metadata) > 0 {
		input.Metadata = req.Metadata
	}
	b.applySSE(input)

	now := b.now()
	result, err := b.presignClient.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = time.Duration(expiresIn) * time.Second
		// Content-Type is only signed when the header is on the request.
		opts.ClientOptions = append(opts.ClientOptions, func(o *s3.Options) {
			o.APIOptions = append(o.APIOptions, smithyhttp.SetHeaderValue("Content-Type", req.ContentType))
		})
	})
	if err != nil {
		return nil, &community.StorageError{Backend: backendName, Key: req.Key, Op: "presign_put", Err: fmt.Errorf("%w: %v", community.ErrCredentialsMissing, err)}
	}

	headers := replayHeaders(result.SignedHeader)
	headers["Content-Type"] = req.ContentType

	return &community.SignedURL{
		URL:         result.URL,
		Method:      http.MethodPut,
		Key:         req.Key,
		ContentType: req.ContentType,
		Headers:     headers,
		ExpiresIn:   expiresIn,
		ExpiresAt:   now.Add(time.Duration(expiresIn) * time.Second).UTC(),
	}, nil
}

// PutObject uploads content directly to S3
func (b *Backend) PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}
	b.applySSE(input)

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return mapError("put", key, err)
	}
	return nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

func (b *Backend) checkCredentials(ctx context.Context, key string) error {
	if b.credentials == nil {
		return &community.StorageError{Backend: backendName, Key: key, Op: "presign", Err: community.ErrCredentialsMissing}
	}
	if _, err := b.credentials.Retrieve(ctx); err != nil {
		return &community.StorageError{Backend: backendName, Key: key, Op: "presign", Err: fmt.Errorf("%w: %v", community.ErrCredentialsMissing, err)}
	}
	return nil
}

// replayHeaders lists the signed headers a client must send, minus Host
// which every HTTP client sets on its own.
func replayHeaders(signed http.Header) map[string]string {
	headers := make(map[string]string, len(signed))
	for k, v := range signed {
		if strings.EqualFold(k, "Host") || len(v) == 0 {
			continue
		}
		headers[http.CanonicalHeaderKey(k)] = v[0]
	}
	return headers
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// mapError folds SDK errors into the community error taxonomy
func mapError(op, key string, err error) error {
	var cause error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		cause = err
	default:
		switch apiErrorCode(err) {
		case "NoSuchKey", "NotFound":
			cause = community.ErrObjectNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			cause = fmt.Errorf("%w: %v", community.ErrAccessDenied, err)
		default:
			cause = fmt.Errorf("%w: %v", community.ErrStoreUnavailable, err)
		}
	}
	return &community.StorageError{Backend: backendName, Key: key, Op: op, Err: cause}
}
