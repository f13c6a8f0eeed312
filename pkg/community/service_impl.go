package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User-facing messages returned with NotFoundError.
const (
	MsgArtifactNotFound = "Artefato não encontrado"
	MsgObjectNotFound   = "Arquivo não encontrado no storage"
	MsgContentNotFound  = "Conteúdo não encontrado"
	MsgMediaNotFound    = "Mídia não encontrada"
)

// Option configures the service
type Option func(*service)

// WithArtifacts sets the artifact collection
func WithArtifacts(repo DocumentRepository[*Artifact]) Option {
	return func(s *service) {
		s.artifacts = repo
	}
}

// WithContents sets the content collection
func WithContents(repo DocumentRepository[*Content]) Option {
	return func(s *service) {
		s.contents = repo
	}
}

// WithObjectStore sets the object repository
func WithObjectStore(store ObjectRepository) Option {
	return func(s *service) {
		s.objects = store
	}
}

// WithLogger sets the logger used for warnings. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	artifacts DocumentRepository[*Artifact]
	contents  DocumentRepository[*Content]
	objects   ObjectRepository
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Service from the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.artifacts == nil {
		return nil, errors.New("artifact repository is required")
	}
	if s.contents == nil {
		return nil, errors.New("content repository is required")
	}
	if s.objects == nil {
		return nil, errors.New("object repository is required")
	}

	return s, nil
}

func (s *service) DownloadArtifact(ctx context.Context, artifactID string) (*Download, error) {
	if strings.TrimSpace(artifactID) == "" {
		return nil, fmt.Errorf("%w: artifact id is required", ErrInvalidInput)
	}

	artifact, found, err := s.artifacts.FindOneByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Resource: "artifact", ID: artifactID, Message: MsgArtifactNotFound}
	}

	return s.open(ctx, artifact.Key, artifact.Filename, artifact.ContentType)
}

func (s *service) DownloadMedia(ctx context.Context, req DownloadMediaRequest) (*Download, error) {
	if strings.TrimSpace(req.ContentID) == "" || strings.TrimSpace(req.MediaID) == "" {
		return nil, fmt.Errorf("%w: content_id and media_id are required", ErrInvalidInput)
	}

	content, found, err := s.contents.FindOneByID(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Resource: "content", ID: req.ContentID, Message: MsgContentNotFound}
	}

	media, ok := content.FindMedia(req.MediaID)
	if !ok {
		return nil, &NotFoundError{Resource: "media", ID: req.MediaID, Message: MsgMediaNotFound}
	}
	if n := countMedia(content.Media, req.MediaID); n > 1 {
		s.logger.WarnContext(ctx, "Duplicate media id in content, using first match",
			"content_id", req.ContentID, "media_id", req.MediaID, "count", n)
	}

	return s.open(ctx, media.Key, media.Filename, media.ContentType)
}

// open fetches the bytes at key and pairs them with the entity's metadata.
func (s *service) open(ctx context.Context, key, filename, contentType string) (*Download, error) {
	stream, err := s.objects.GetObjectStream(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, &NotFoundError{Resource: "object", ID: key, Message: MsgObjectNotFound, Err: err}
		}
		return nil, err
	}

	return &Download{
		Body:          stream.Body,
		Filename:      filename,
		ContentType:   contentType,
		ContentLength: stream.ContentLength,
	}, nil
}

func (s *service) GenerateSignedPutURL(ctx context.Context, req GenerateSignedPutURLRequest) (*SignedPutURLResult, error) {
	if strings.TrimSpace(req.Key) == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.ContentType) == "" {
		return nil, fmt.Errorf("%w: contentType is required", ErrInvalidInput)
	}

	signed, err := s.objects.GenerateSignedPutURL(ctx, SignedPutURLRequest{
		Key:              req.Key,
		ContentType:      req.ContentType,
		Metadata:         req.Metadata,
		ExpiresInSeconds: req.ExpiresInSeconds,
	})
	if err != nil {
		return nil, err
	}

	return &SignedPutURLResult{
		SignedURL: signed.URL,
		Key:       req.Key,
		ExpiresIn: signed.ExpiresIn,
		Headers:   signed.Headers,
	}, nil
}

func (s *service) GenerateArtifactDownloadURL(ctx context.Context, artifactID string, expiresInSeconds *int) (*SignedURL, error) {
	if strings.TrimSpace(artifactID) == "" {
		return nil, fmt.Errorf("%w: artifact id is required", ErrInvalidInput)
	}

	artifact, found, err := s.artifacts.FindOneByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Resource: "artifact", ID: artifactID, Message: MsgArtifactNotFound}
	}

	return s.objects.GenerateSignedGetURL(ctx, SignedGetURLRequest{
		Key:              artifact.Key,
		ExpiresInSeconds: expiresInSeconds,
		Filename:         artifact.Filename,
	})
}

func (s *service) ConfirmArtifact(ctx context.Context, req ConfirmArtifactRequest) (*Artifact, error) {
	if req.Key == "" || req.Filename == "" || req.ContentType == "" {
		return nil, fmt.Errorf("%w: key, filename and contentType are required", ErrInvalidInput)
	}

	meta, found, err := s.objects.HeadObject(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Resource: "object", ID: req.Key, Message: MsgObjectNotFound, Err: ErrObjectNotFound}
	}

	return s.artifacts.InsertOne(ctx, &Artifact{
		Key:         req.Key,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        meta.ContentLength,
		CreatedAt:   s.now().UTC(),
	})
}

// AttachMedia appends a media entry to a content. The read-modify-write is
// not atomic: two concurrent attaches to the same content can lose one entry.
func (s *service) AttachMedia(ctx context.Context, contentID string, media Media) (*Content, error) {
	if contentID == "" || media.Key == "" || media.Filename == "" || media.ContentType == "" {
		return nil, fmt.Errorf("%w: content id, key, filename and contentType are required", ErrInvalidInput)
	}

	content, found, err := s.contents.FindOneByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Resource: "content", ID: contentID, Message: MsgContentNotFound}
	}

	if media.MediaID == "" {
		media.MediaID = uuid.NewString()
	}
	if _, exists := content.FindMedia(media.MediaID); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateMedia, media.MediaID)
	}

	_, found, err = s.objects.HeadObject(ctx, media.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Resource: "object", ID: media.Key, Message: MsgObjectNotFound, Err: ErrObjectNotFound}
	}

	updated, found, err := s.contents.UpdateOne(ctx, contentID, Patch{
		"media":     append(content.Media, media),
		"updatedAt": s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Resource: "content", ID: contentID, Message: MsgContentNotFound}
	}
	return updated, nil
}

func countMedia(media []Media, mediaID string) int {
	n := 0
	for _, m := range media {
		if m.MediaID == mediaID {
			n++
		}
	}
	return n
}
