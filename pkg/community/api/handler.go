package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/community-admin/pkg/community"
	"github.com/tendant/community-admin/pkg/community/metrics"
)

// Download kinds used as metric labels
const (
	kindArtifact = "artifact"
	kindMedia    = "media"
)

// Handler serves the download and signed URL endpoints
type Handler struct {
	service community.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithMetrics records downloads and grants on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithLogger sets the handler logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(service community.Service, opts ...Option) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the public endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/artifact/download", h.DownloadArtifact)
	r.Get("/artifact/url", h.ArtifactURL)
	r.Get("/download-media", h.DownloadMedia)
	r.Post("/generate-signed-put-url", h.GenerateSignedPutURL)
	r.Post("/artifacts", h.ConfirmArtifact)
	r.Post("/contents/{content_id}/media", h.AttachMedia)
	return r
}

// DownloadArtifact streams an artifact.
// GET /artifact/download?key={artifactId}
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	artifactID := r.URL.Query().Get("key")
	if artifactID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "key is required")
		return
	}

	download, err := h.service.DownloadArtifact(r.Context(), artifactID)
	h.metrics.ObserveDownload(kindArtifact, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stream(w, r, kindArtifact, download)
}

// DownloadMedia streams one media entry of a content.
// GET /download-media?content_id={id}&media_id={id}
func (h *Handler) DownloadMedia(w http.ResponseWriter, r *http.Request) {
	contentID := r.URL.Query().Get("content_id")
	mediaID := r.URL.Query().Get("media_id")
	if contentID == "" || mediaID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "content_id and media_id are required")
		return
	}

	download, err := h.service.DownloadMedia(r.Context(), community.DownloadMediaRequest{
		ContentID: contentID,
		MediaID:   mediaID,
	})
	h.metrics.ObserveDownload(kindMedia, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stream(w, r, kindMedia, download)
}

// stream copies the download to the client. Once the first byte is written
// the status is fixed, so a copy failure can only abort the connection.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, kind string, download *community.Download) {
	defer download.Close()

	contentType := download.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(download.Filename))
	if download.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(download.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, download.Body)
	h.metrics.AddStreamedBytes(kind, n)
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Info("Client went away during download", "kind", kind, "bytes", n)
			return
		}
		h.logger.Error("Download stream interrupted", "kind", kind, "filename", download.Filename, "bytes", n, "error", err)
		panic(http.ErrAbortHandler)
	}
}

// GenerateSignedPutURL issues an upload grant.
// POST /generate-signed-put-url {key, contentType, metadata?, expiresIn?}
func (h *Handler) GenerateSignedPutURL(w http.ResponseWriter, r *http.Request) {
	var req community.GenerateSignedPutURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.GenerateSignedPutURL(r.Context(), req)
	h.metrics.ObserveGrant(http.MethodPut, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Signed PUT URL issued", "key", result.Key, "expires_in", result.ExpiresIn)
	render.JSON(w, r, result)
}

// ArtifactURL issues a download grant for an artifact.
// GET /artifact/url?key={artifactId}&expires_in={seconds}
func (h *Handler) ArtifactURL(w http.ResponseWriter, r *http.Request) {
	artifactID := r.URL.Query().Get("key")
	if artifactID == "" {
		writeJSONError(w, r, http.StatusBadRequest, "key is required")
		return
	}

	var expiresIn *int
	if raw := r.URL.Query().Get("expires_in"); raw != "" {
		sec, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, r, http.StatusBadRequest, "expires_in must be an integer")
			return
		}
		expiresIn = &sec
	}

	signed, err := h.service.GenerateArtifactDownloadURL(r.Context(), artifactID, expiresIn)
	h.metrics.ObserveGrant(http.MethodGet, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, signed)
}

// ConfirmArtifact registers an object uploaded through a signed URL.
// POST /artifacts {key, filename, contentType}
func (h *Handler) ConfirmArtifact(w http.ResponseWriter, r *http.Request) {
	var req community.ConfirmArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	artifact, err := h.service.ConfirmArtifact(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, artifact)
}

// AttachMedia appends an uploaded object to a content's media.
// POST /contents/{content_id}/media {media_id?, key, filename, contentType}
func (h *Handler) AttachMedia(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "content_id")

	var media community.Media
	if err := json.NewDecoder(r.Body).Decode(&media); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	content, err := h.service.AttachMedia(r.Context(), contentID, media)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, content)
}

func contentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '\r', '\n':
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf("attachment; filename=\"%s\"", clean)
}
