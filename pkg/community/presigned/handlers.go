package presigned

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/community-admin/pkg/community"
)

// MetadataHeaderPrefix carries user metadata on signed PUT requests, the
// same header convention S3 uses.
const MetadataHeaderPrefix = "X-Amz-Meta-"

// SignatureValidator is implemented by object stores that mint HMAC grants
type SignatureValidator interface {
	IsSignedURLEnabled() bool
	ValidateGrant(query url.Values, g Grant) error
}

// Store is the subset of an object repository the endpoints need
type Store interface {
	GetObjectStream(ctx context.Context, key string) (*community.ObjectStream, error)
	PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error
}

// DefaultMaxUploadBytes caps a single upload when no limit is configured
const DefaultMaxUploadBytes int64 = 100 << 20

// Handlers serves the URLs minted by stores without a native signing scheme
type Handlers struct {
	store          Store
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption configures Handlers
type HandlerOption func(*Handlers)

// WithMaxUploadBytes caps the request body accepted by HandleUpload
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates presigned URL handlers for store
func NewHandlers(store Store, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{store: store, logger: logger, maxUploadBytes: DefaultMaxUploadBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for /upload/* and /download/*
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Put("/upload/*", h.HandleUpload)
	r.Get("/download/*", h.HandleDownload)
	return r
}

// HandleUpload handles PUT requests to presigned upload URLs.
// URL format: PUT /upload/{objectKey...}?signature={hmac}&expires={timestamp}
// The Content-Type and X-Amz-Meta-* headers must match the grant.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	objectKey, ok := h.objectKey(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	metadata := metadataFromHeaders(r.Header)

	if validator, ok := h.store.(SignatureValidator); ok && validator.IsSignedURLEnabled() {
		grant := Grant{Method: http.MethodPut, Key: objectKey, ContentType: contentType, Metadata: metadata}
		if err := validator.ValidateGrant(r.URL.Query(), grant); err != nil {
			h.logger.Warn("Presigned upload signature validation failed", "object_key", objectKey, "error", err)
			writeError(w, r, authStatus(err), err.Error())
			return
		}
	}

	if r.ContentLength > h.maxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	body := http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := h.store.PutObject(r.Context(), objectKey, body, contentType, metadata); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, community.ErrObjectTooLarge) {
			h.logger.Warn("Presigned upload too large", "object_key", objectKey, "limit", h.maxUploadBytes)
			writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		h.logger.Error("Presigned upload failed", "object_key", objectKey, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to upload file")
		return
	}

	h.logger.Info("Presigned upload succeeded", "object_key", objectKey)
	w.WriteHeader(http.StatusOK)
}

// HandleDownload handles GET requests to presigned download URLs.
// URL format: GET /download/{objectKey...}?signature={hmac}&expires={timestamp}&filename={name}
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	objectKey, ok := h.objectKey(w, r)
	if !ok {
		return
	}
	filename := r.URL.Query().Get("filename")

	if validator, ok := h.store.(SignatureValidator); ok && validator.IsSignedURLEnabled() {
		grant := Grant{Method: http.MethodGet, Key: objectKey, Filename: filename}
		if err := validator.ValidateGrant(r.URL.Query(), grant); err != nil {
			h.logger.Warn("Presigned download signature validation failed", "object_key", objectKey, "error", err)
			writeError(w, r, authStatus(err), err.Error())
			return
		}
	}

	stream, err := h.store.GetObjectStream(r.Context(), objectKey)
	if err != nil {
		if errors.Is(err, community.ErrObjectNotFound) {
			writeError(w, r, http.StatusNotFound, "object not found")
			return
		}
		h.logger.Error("Presigned download failed", "object_key", objectKey, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to download file")
		return
	}
	defer stream.Close()

	if stream.ContentType != "" {
		w.Header().Set("Content-Type", stream.ContentType)
	}
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}

	if _, err := io.Copy(w, stream.Body); err != nil {
		h.logger.Error("Presigned download copy error", "object_key", objectKey, "error", err)
	}
}

func (h *Handlers) objectKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "*")
	objectKey, err := url.PathUnescape(raw)
	if err != nil || objectKey == "" {
		writeError(w, r, http.StatusBadRequest, "object key is required in URL path")
		return "", false
	}
	return objectKey, true
}

func metadataFromHeaders(header http.Header) map[string]string {
	var metadata map[string]string
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if !strings.HasPrefix(canonical, MetadataHeaderPrefix) || len(values) == 0 {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata[strings.ToLower(strings.TrimPrefix(canonical, MetadataHeaderPrefix))] = values[0]
	}
	return metadata
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingSignature), errors.Is(err, ErrMissingExpiration):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidExpiration):
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}
