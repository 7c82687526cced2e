package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDisplaysSubDir = "displays"
	DefaultMapsSubDir     = "maps"
)

const (
	defaultDisplayMaxSize  = 1600
	defaultIngestWorkers   = 1
	defaultHTTPTimeoutSecs = 30
)

const (
	defaultCaptionModel    = "claude-3-5-sonnet-20241022"
	defaultCaptionEndpoint = "https://api.anthropic.com/v1/messages"
	defaultGeocodeEndpoint = "https://nominatim.openstreetmap.org/reverse"
	defaultSearchEndpoint  = "https://serpapi.com/search.json"
	defaultSearchLocation  = "Austin, Texas, United States"

	defaultCaptionSystemPrompt = "You are reviewing vacation photos to create captions for a website about a recently taken trip."
)

type Config struct {
	// source directory (first-level subdirectories name photographers)
	RootDirectory string

	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // primary root for generated assets
	DisplaysPath     string // full-calculated path for web display copies
	MapsPath         string // full-calculated path for cached map snapshots

	// display copy settings
	DisplayMaxSize int

	// ingestion settings
	IngestWorkers int
	HTTPTimeout   time.Duration

	// captioning service
	AnthropicAPIKey     string
	CaptionModel        string
	CaptionEndpoint     string
	CaptionSystemPrompt string

	// map/search service
	SerpAPIKey         string
	SearchEndpoint     string
	SearchLocationBias string

	// reverse geocoding service
	GeocodeEndpoint string
	GeocodeLanguage string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	root := getEnvOrDefault("PHOTO_ROOT", "photos")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for photo root '%s': %w", root, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "photos.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	displaysSubDir := getEnvOrDefault("DISPLAYS_SUBDIR", DefaultDisplaysSubDir)
	mapsSubDir := getEnvOrDefault("MAPS_SUBDIR", DefaultMapsSubDir)

	cfg := Config{
		RootDirectory:    absRoot,
		DatabasePath:     dbPath,
		MediaStoragePath: absMediaStorage,
		DisplaysPath:     filepath.Join(absMediaStorage, displaysSubDir),
		MapsPath:         filepath.Join(absMediaStorage, mapsSubDir),

		DisplayMaxSize: getEnvIntOrDefault("DISPLAY_MAX_SIZE", defaultDisplayMaxSize),
		IngestWorkers:  getEnvIntOrDefault("INGEST_WORKERS", defaultIngestWorkers),
		HTTPTimeout:    time.Duration(getEnvIntOrDefault("HTTP_TIMEOUT_SECONDS", defaultHTTPTimeoutSecs)) * time.Second,

		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		CaptionModel:        getEnvOrDefault("CAPTION_MODEL", defaultCaptionModel),
		CaptionEndpoint:     getEnvOrDefault("CAPTION_ENDPOINT", defaultCaptionEndpoint),
		CaptionSystemPrompt: getEnvOrDefault("CAPTION_SYSTEM_PROMPT", defaultCaptionSystemPrompt),

		SerpAPIKey:         os.Getenv("SERPAPI_KEY"),
		SearchEndpoint:     getEnvOrDefault("SEARCH_ENDPOINT", defaultSearchEndpoint),
		SearchLocationBias: getEnvOrDefault("SEARCH_LOCATION_BIAS", defaultSearchLocation),

		GeocodeEndpoint: getEnvOrDefault("GEOCODE_ENDPOINT", defaultGeocodeEndpoint),
		GeocodeLanguage: getEnvOrDefault("GEOCODE_LANGUAGE", "en"),
	}

	return cfg, nil
}

// ValidateForIngest reports every missing required field at once, so a
// misconfigured run fails before any file is processed.
func (c Config) ValidateForIngest() error {
	var missing []string
	if c.RootDirectory == "" {
		missing = append(missing, "PHOTO_ROOT")
	}
	if c.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if c.SerpAPIKey == "" {
		missing = append(missing, "SERPAPI_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
