package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PHOTO_ROOT", "")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("INGEST_WORKERS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.RootDirectory)
	assert.Equal(t, "photos.db", cfg.DatabasePath)
	assert.Equal(t, defaultCaptionModel, cfg.CaptionModel)
	assert.Equal(t, defaultGeocodeEndpoint, cfg.GeocodeEndpoint)
	assert.Equal(t, defaultIngestWorkers, cfg.IngestWorkers)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PHOTO_ROOT", t.TempDir())
	t.Setenv("DATABASE_PATH", "trip.db")
	t.Setenv("INGEST_WORKERS", "4")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "trip.db", cfg.DatabasePath)
	assert.Equal(t, 4, cfg.IngestWorkers)
	assert.Equal(t, "10s", cfg.HTTPTimeout.String())
}

func TestValidateForIngest(t *testing.T) {
	cfg := Config{
		RootDirectory:   "/photos",
		AnthropicAPIKey: "key",
		SerpAPIKey:      "key",
	}
	assert.NoError(t, cfg.ValidateForIngest())

	cfg.AnthropicAPIKey = ""
	cfg.SerpAPIKey = ""
	err := cfg.ValidateForIngest()
	require.Error(t, err)
	// every missing field is reported at once
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	assert.Contains(t, err.Error(), "SERPAPI_KEY")
}
