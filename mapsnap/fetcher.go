package mapsnap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// searchResponse models the one field of the maps/search result the pipeline
// consumes: the local map snapshot image URL.
type searchResponse struct {
	LocalMap struct {
		Image string `json:"image"`
	} `json:"local_map"`
}

// Fetcher retrieves a map snapshot for a coordinate pair from an external
// search service and caches it on disk, keyed by photo identifier.
type Fetcher struct {
	httpClient   *http.Client
	endpoint     string
	apiKey       string
	locationBias string
	cacheDir     string
	logger       *zap.Logger
}

func NewFetcher(endpoint, apiKey, locationBias, cacheDir string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		httpClient:   &http.Client{Timeout: timeout},
		endpoint:     endpoint,
		apiKey:       apiKey,
		locationBias: locationBias,
		cacheDir:     cacheDir,
		logger:       logger,
	}
}

// CachePath returns the deterministic artifact location for a photo
// identifier. Re-runs overwrite the same file instead of accumulating
// duplicates.
func (f *Fetcher) CachePath(id string) string {
	return filepath.Join(f.cacheDir, "map_"+id+".webp")
}

// Fetch performs one search query and, if the result carries a map image,
// downloads it into the snapshot cache. The snapshot is optional enrichment,
// so every failure stage degrades to nil.
func (f *Fetcher) Fetch(ctx context.Context, lat, lon float64, id string) *string {
	imageURL := f.search(ctx, lat, lon)
	if imageURL == "" {
		return nil
	}

	path, err := f.download(ctx, imageURL, id)
	if err != nil {
		f.logger.Warn("map snapshot download failed",
			zap.String("id", id),
			zap.Error(err))
		return nil
	}
	return &path
}

func (f *Fetcher) search(ctx context.Context, lat, lon float64) string {
	params := url.Values{}
	params.Set("api_key", f.apiKey)
	params.Set("engine", "google")
	params.Set("q", strconv.FormatFloat(lat, 'f', -1, 64)+", "+strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("location", f.locationBias)
	params.Set("google_domain", "google.com")
	params.Set("gl", "us")
	params.Set("hl", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+params.Encode(), http.NoBody)
	if err != nil {
		f.logger.Warn("failed to build map search request", zap.Error(err))
		return ""
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("map search request failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("map search returned non-200 status", zap.Int("status", resp.StatusCode))
		return ""
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		f.logger.Warn("failed to decode map search response", zap.Error(err))
		return ""
	}
	return decoded.LocalMap.Image
}

func (f *Fetcher) download(ctx context.Context, imageURL, id string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to build snapshot download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("snapshot download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("snapshot download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot cache directory %s: %w", f.cacheDir, err)
	}

	path := f.CachePath(id)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write snapshot file %s: %w", path, err)
	}
	return path, nil
}
