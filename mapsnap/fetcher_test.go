package mapsnap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSearchEndpoint = "https://serpapi.test/search.json"
	testImageURL       = "https://maps.test/snapshot.webp"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	cacheDir := filepath.Join(t.TempDir(), "maps")
	fetcher := NewFetcher(testSearchEndpoint, "test-key", "Austin, Texas, United States", cacheDir, 5*time.Second, zap.NewNop())
	httpmock.ActivateNonDefault(fetcher.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return fetcher
}

func registerSearchResponder(statusCode int, body string) {
	httpmock.RegisterResponder(http.MethodGet, testSearchEndpoint,
		httpmock.NewStringResponder(statusCode, body))
}

func TestFetch_WritesDeterministicArtifact(t *testing.T) {
	fetcher := newTestFetcher(t)

	registerSearchResponder(http.StatusOK,
		fmt.Sprintf(`{"local_map": {"image": "%s"}}`, testImageURL))
	httpmock.RegisterResponder(http.MethodGet, testImageURL,
		httpmock.NewBytesResponder(http.StatusOK, []byte("webp-bytes")))

	path := fetcher.Fetch(context.Background(), 30.27, -97.74, "daniel_img1")

	require.NotNil(t, path)
	assert.Equal(t, fetcher.CachePath("daniel_img1"), *path)

	content, err := os.ReadFile(*path)
	require.NoError(t, err)
	assert.Equal(t, []byte("webp-bytes"), content)

	// a second run for the same photo reuses the same artifact name
	again := fetcher.Fetch(context.Background(), 30.27, -97.74, "daniel_img1")
	require.NotNil(t, again)
	assert.Equal(t, *path, *again)
}

func TestFetch_NoLocalMapInResults(t *testing.T) {
	fetcher := newTestFetcher(t)

	registerSearchResponder(http.StatusOK, `{"search_metadata": {"status": "Success"}}`)

	assert.Nil(t, fetcher.Fetch(context.Background(), 30.27, -97.74, "daniel_img1"))
}

func TestFetch_SearchFailure(t *testing.T) {
	fetcher := newTestFetcher(t)

	registerSearchResponder(http.StatusBadGateway, `{"error": "upstream"}`)

	assert.Nil(t, fetcher.Fetch(context.Background(), 30.27, -97.74, "daniel_img1"))
}

func TestFetch_DownloadFailure(t *testing.T) {
	fetcher := newTestFetcher(t)

	registerSearchResponder(http.StatusOK,
		fmt.Sprintf(`{"local_map": {"image": "%s"}}`, testImageURL))
	httpmock.RegisterResponder(http.MethodGet, testImageURL,
		httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	path := fetcher.Fetch(context.Background(), 30.27, -97.74, "daniel_img1")

	assert.Nil(t, path)
	assert.NoFileExists(t, fetcher.CachePath("daniel_img1"))
}
