package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/community-admin/pkg/community"
)

// CollectionHandler exposes CRUD over one document collection for the admin
// panel. List filters are taken from the query string and compared as
// strings.
type CollectionHandler[T community.Entity] struct {
	name   string
	repo   community.DocumentRepository[T]
	newDoc func() T
	logger *slog.Logger
}

func NewCollectionHandler[T community.Entity](name string, repo community.DocumentRepository[T], newDoc func() T, logger *slog.Logger) *CollectionHandler[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollectionHandler[T]{name: name, repo: repo, newDoc: newDoc, logger: logger}
}

// Routes returns the router for one collection
func (h *CollectionHandler[T]) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *CollectionHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	filter := community.Filter{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			filter[key] = values[0]
		}
	}

	docs, err := h.repo.FindMany(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, docs)
}

func (h *CollectionHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, found, err := h.repo.FindOneByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !found {
		writeError(w, r, h.logger, &community.NotFoundError{Resource: h.name, ID: id, Message: h.name + " not found"})
		return
	}
	render.JSON(w, r, doc)
}

func (h *CollectionHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	doc := h.newDoc()
	if err := json.NewDecoder(r.Body).Decode(doc); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := community.ValidateEntity(doc); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	created, err := h.repo.InsertOne(r.Context(), doc)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Document created", "collection", h.name, "id", created.GetID())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

func (h *CollectionHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch community.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, found, err := h.repo.UpdateOne(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !found {
		writeError(w, r, h.logger, &community.NotFoundError{Resource: h.name, ID: id, Message: h.name + " not found"})
		return
	}
	render.JSON(w, r, updated)
}

func (h *CollectionHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.repo.DeleteOne(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !deleted {
		writeError(w, r, h.logger, &community.NotFoundError{Resource: h.name, ID: id, Message: h.name + " not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
