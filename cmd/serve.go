package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phototrail/database"
	"phototrail/handlers"
	"phototrail/repository"
)

// serveCommand creates the command that runs the read-only web viewer.
func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only photo viewing API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.Init(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}

			photoHandler := &handlers.PhotoHandler{
				Repo:   repository.NewPhotoRepository(db),
				Logger: logger,
			}

			corsHandler := cors.New(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         300,
			})

			r := chi.NewRouter()
			r.Use(middleware.RequestID)
			r.Use(middleware.RealIP)
			r.Use(middleware.Logger)
			r.Use(middleware.Recoverer)
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(corsHandler.Handler)

			r.Route("/api", func(r chi.Router) {
				r.Get("/photos", photoHandler.ListPhotos)
				r.Get("/photos/{photo_id}", photoHandler.GetPhoto)

				displaysSubDir := filepath.Base(cfg.DisplaysPath)
				r.Get(fmt.Sprintf("/%s/*", displaysSubDir),
					handlers.AssetServer(cfg.MediaStoragePath, displaysSubDir, fmt.Sprintf("/api/%s/", displaysSubDir), logger))

				mapsSubDir := filepath.Base(cfg.MapsPath)
				r.Get(fmt.Sprintf("/%s/*", mapsSubDir),
					handlers.AssetServer(cfg.MediaStoragePath, mapsSubDir, fmt.Sprintf("/api/%s/", mapsSubDir), logger))
			})

			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			serverAddr := ":" + port
			log.Printf("Server listening on %s", serverAddr)

			server := &http.Server{
				Addr:         serverAddr,
				Handler:      r,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  120 * time.Second,
			}
			return server.ListenAndServe()
		},
	}
}
