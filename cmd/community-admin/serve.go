package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/community-admin/pkg/community"
	"github.com/tendant/community-admin/pkg/community/api"
	"github.com/tendant/community-admin/pkg/community/config"
	"github.com/tendant/community-admin/pkg/community/metrics"
	"github.com/tendant/community-admin/pkg/community/presigned"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, objects, svc, closeStores, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()

			server := app.DefaultApp()

			app.RoutesHealthz(server.R)
			app.RoutesHealthzReady(server.R)

			server.R.Mount("/", newRouter(stores, objects, svc, metrics.New(), rt.logger, rt.cfg.ObjectStore.MaxUploadBytes))

			rt.logger.Info("Starting community-admin",
				"docstore", rt.cfg.DocStore.Type,
				"objectstore", rt.cfg.ObjectStore.Type,
				"environment", rt.cfg.Environment,
			)
			server.Run()
			return nil
		},
	}
}

// newRouter assembles every endpoint the server exposes besides health checks
func newRouter(stores *config.Stores, objects community.ObjectRepository, svc community.Service, m *metrics.Metrics, logger *slog.Logger, maxUploadBytes int64) chi.Router {
	r := chi.NewRouter()
	r.Use(api.RequestIDMiddleware)
	r.Use(api.LoggingMiddleware(logger))
	r.Use(m.Middleware)

	r.Method("GET", "/metrics", m.Handler())

	r.Mount("/", api.NewHandler(svc, api.WithMetrics(m), api.WithLogger(logger)).Routes())

	r.Route("/admin", func(r chi.Router) {
		r.Mount("/communities", api.NewCollectionHandler("community", stores.Communities,
			func() *community.Community { return &community.Community{} }, logger).Routes())
		r.Mount("/members", api.NewCollectionHandler("member", stores.Members,
			func() *community.Member { return &community.Member{} }, logger).Routes())
		r.Mount("/contents", api.NewCollectionHandler("content", stores.Contents,
			func() *community.Content { return &community.Content{} }, logger).Routes())
		r.Mount("/promos", api.NewCollectionHandler("promo", stores.Promos,
			func() *community.Promo { return &community.Promo{} }, logger).Routes())
		r.Mount("/artifacts", api.NewCollectionHandler("artifact", stores.Artifacts,
			func() *community.Artifact { return &community.Artifact{} }, logger).Routes())
	})

	// Stores without native signing serve their own grants
	if local, ok := objects.(presigned.Store); ok {
		if _, signs := objects.(presigned.SignatureValidator); signs {
			r.Mount(config.LocalObjectsPath, presigned.NewHandlers(local, logger, presigned.WithMaxUploadBytes(maxUploadBytes)).Routes())
		}
	}

	return r
}
