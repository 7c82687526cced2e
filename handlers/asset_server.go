package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const assetCacheDuration = 24 * time.Hour

// AssetServer serves generated artifacts (display copies, map snapshots) from
// one subdirectory of the media store. The route prefix is stripped from the
// request path and the remainder must resolve inside that subdirectory:
//
//	r.Get("/displays/*", AssetServer(cfg.MediaStoragePath, "displays", "/api/displays/", logger))
//	r.Get("/maps/*", AssetServer(cfg.MediaStoragePath, "maps", "/api/maps/", logger))
func AssetServer(baseStoragePath, subDir, routePrefix string, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	assetDir := filepath.Clean(filepath.Join(baseStoragePath, subDir))
	if !strings.HasPrefix(assetDir, baseStoragePath) {
		logger.Fatal("asset subdirectory escapes the media store",
			zap.String("sub_dir", subDir),
			zap.String("base", baseStoragePath),
			zap.String("resolved", assetDir))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		relPath := strings.TrimPrefix(r.URL.Path, routePrefix)
		if relPath == "" || strings.Contains(relPath, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		assetPath := filepath.Clean(filepath.Join(assetDir, relPath))
		if !strings.HasPrefix(assetPath, assetDir) {
			logger.Warn("asset request resolved outside its directory",
				zap.String("request", r.URL.Path),
				zap.String("resolved", assetPath))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if _, err := os.Stat(assetPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			logger.Error("failed to stat asset", zap.String("path", assetPath), zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(assetCacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(assetCacheDuration).Format(http.TimeFormat))
		http.ServeFile(w, r, assetPath)
	}
}
