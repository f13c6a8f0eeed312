package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/community-admin/pkg/community"
	"github.com/tendant/community-admin/pkg/community/config"
	"github.com/tendant/community-admin/pkg/community/metrics"
)

func setupRouter(t *testing.T) (http.Handler, *config.Stores, community.ObjectRepository) {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		Environment:   "testing",
		PublicBaseURL: "http://localhost:3000",
		DocStore:      config.DocStoreConfig{Type: config.DocStoreMemory},
		ObjectStore: config.ObjectStoreConfig{
			Type:                config.ObjectStoreMemory,
			SigningSecret:       "test-secret",
			DefaultPutExpirySec: 900,
			DefaultGetExpirySec: 3600,
		},
	}

	stores, err := cfg.OpenStores(ctx)
	require.NoError(t, err)
	objects, err := cfg.BuildObjectRepository(ctx)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := config.BuildService(stores, objects, logger)
	require.NoError(t, err)

	return newRouter(stores, objects, svc, metrics.New(), logger, 1<<20), stores, objects
}

func TestRouter_EndToEnd(t *testing.T) {
	router, stores, _ := setupRouter(t)
	ctx := context.Background()

	// sign an upload
	req := httptest.NewRequest(http.MethodPost, "/generate-signed-put-url",
		strings.NewReader(`{"key":"uploads/logo.png","contentType":"image/png"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var grant community.SignedPutURLResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grant))
	assert.True(t, strings.HasPrefix(grant.SignedURL, "http://localhost:3000/objects/upload/uploads/logo.png?"))
	assert.Equal(t, 900, grant.ExpiresIn)

	// upload through the local endpoint
	req = httptest.NewRequest(http.MethodPut, strings.TrimPrefix(grant.SignedURL, "http://localhost:3000"),
		strings.NewReader("PNGDATA"))
	req.Header.Set("Content-Type", "image/png")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// register it
	req = httptest.NewRequest(http.MethodPost, "/artifacts",
		strings.NewReader(`{"key":"uploads/logo.png","filename":"logo.png","contentType":"image/png"}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var artifact community.Artifact
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &artifact))

	// download it
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/artifact/download?key="+artifact.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PNGDATA", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// and it is visible to the admin panel
	stored, found, err := stores.Artifacts.FindOneByID(ctx, artifact.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), stored.Size)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/artifacts/"+artifact.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `community_admin_downloads_total{kind="artifact",outcome="ok"} 1`)
}

func TestRouter_AdminCollections(t *testing.T) {
	router, _, _ := setupRouter(t)

	for _, path := range []string{"/admin/communities", "/admin/members", "/admin/contents", "/admin/promos", "/admin/artifacts"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `[]`, w.Body.String(), path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/communities",
		strings.NewReader(`{"id":"c1","name":"Runners","slug":"runners"}`)))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestEnvCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"env"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "DOCSTORE_TYPE")
	assert.Contains(t, out.String(), "OBJECTSTORE_TYPE")
}

func TestSignPutCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: testing
log_level: error
objectstore:
  type: memory
  signing_secret: test-secret
`), 0o600))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "sign-put", "--key", "uploads/a.pdf", "--content-type", "application/pdf", "--expires-in", "60"})

	require.NoError(t, cmd.Execute())

	var result community.SignedPutURLResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "uploads/a.pdf", result.Key)
	assert.Equal(t, 60, result.ExpiresIn)
	assert.Equal(t, "application/pdf", result.Headers["Content-Type"])
}

func TestDownloadCommand_RequiresOneTarget(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"download"})
	assert.Error(t, cmd.Execute())
}
