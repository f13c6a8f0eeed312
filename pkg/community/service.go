package community

import (
	"context"
	"io"
)

// Service defines the use cases built on top of the repositories
type Service interface {
	// Download operations
	DownloadArtifact(ctx context.Context, artifactID string) (*Download, error)
	DownloadMedia(ctx context.Context, req DownloadMediaRequest) (*Download, error)

	// URL grant operations
	GenerateSignedPutURL(ctx context.Context, req GenerateSignedPutURLRequest) (*SignedPutURLResult, error)
	GenerateArtifactDownloadURL(ctx context.Context, artifactID string, expiresInSeconds *int) (*SignedURL, error)

	// Confirmation of client uploads
	ConfirmArtifact(ctx context.Context, req ConfirmArtifactRequest) (*Artifact, error)
	AttachMedia(ctx context.Context, contentID string, media Media) (*Content, error)
}

// Download is a stream plus the presentation metadata taken from the entity.
type Download struct {
	Body          io.ReadCloser
	Filename      string
	ContentType   string
	ContentLength int64
}

// Close releases the underlying stream.
func (d *Download) Close() error {
	if d == nil || d.Body == nil {
		return nil
	}
	return d.Body.Close()
}

// DownloadMediaRequest identifies one media entry of one content.
type DownloadMediaRequest struct {
	ContentID string
	MediaID   string
}

// GenerateSignedPutURLRequest contains parameters for minting an upload grant
type GenerateSignedPutURLRequest struct {
	Key              string            `json:"key"`
	ContentType      string            `json:"contentType"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ExpiresInSeconds *int              `json:"expiresIn,omitempty"`
}

// SignedPutURLResult is returned to the caller of GenerateSignedPutURL
type SignedPutURLResult struct {
	SignedURL string            `json:"signedUrl"`
	Key       string            `json:"key"`
	ExpiresIn int               `json:"expiresIn"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// ConfirmArtifactRequest registers an object uploaded through a signed URL
type ConfirmArtifactRequest struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}
