package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"phototrail/caption"
	"phototrail/config"
	"phototrail/database"
	"phototrail/models"
	"phototrail/repository"
)

type stubGeocoder struct {
	mu    sync.Mutex
	name  *string
	calls int
}

func (s *stubGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.name
}

type stubFetcher struct {
	mu    sync.Mutex
	path  *string
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, lat, lon float64, id string) *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.path
}

type stubCaptioner struct {
	mu       sync.Mutex
	result   *caption.Result
	err      error
	requests []caption.Request
}

func (s *stubCaptioner) Generate(ctx context.Context, req caption.Request) (*caption.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func okCaptioner() *stubCaptioner {
	return &stubCaptioner{result: &caption.Result{
		Caption:          "A photo from the trip.",
		PointsOfInterest: []caption.PointOfInterest{{Name: "Town Square", Description: "Central plaza."}},
	}}
}

type pipelineEnv struct {
	cfg       config.Config
	db        *gorm.DB
	repo      *repository.PhotoRepository
	geocoder  *stubGeocoder
	fetcher   *stubFetcher
	captioner *stubCaptioner
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	root := t.TempDir()
	mediaRoot := t.TempDir()

	db, err := database.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	return &pipelineEnv{
		cfg: config.Config{
			RootDirectory:    root,
			MediaStoragePath: mediaRoot,
			DisplaysPath:     filepath.Join(mediaRoot, "displays"),
			MapsPath:         filepath.Join(mediaRoot, "maps"),
			DisplayMaxSize:   400,
			IngestWorkers:    1,
			AnthropicAPIKey:  "test-key",
			SerpAPIKey:       "test-key",
		},
		db:        db,
		repo:      repository.NewPhotoRepository(db),
		geocoder:  &stubGeocoder{},
		fetcher:   &stubFetcher{},
		captioner: okCaptioner(),
	}
}

func (e *pipelineEnv) coordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(e.cfg, e.repo, e.geocoder, e.fetcher, e.captioner, nil)
	require.NoError(t, err)
	return c
}

// writeSourceFile drops a stand-in image into the source tree. The content is
// not decodable, which the extractor treats the same as an image without EXIF.
func (e *pipelineEnv) writeSourceFile(t *testing.T, relPath string) {
	t.Helper()
	abs := filepath.Join(e.cfg.RootDirectory, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte("stand-in image bytes"), 0644))
}

func TestRun_IngestsNewPhotos(t *testing.T) {
	env := newPipelineEnv(t)
	env.writeSourceFile(t, "daniel/img1.jpg")
	env.writeSourceFile(t, "christina/img2.png")
	env.writeSourceFile(t, "daniel/notes.txt") // not a candidate

	report, err := env.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.RunID)

	photos, err := env.repo.ListPhotos(repository.PhotoFilter{})
	require.NoError(t, err)
	require.Len(t, photos, 2)

	byPath := map[string]models.Photo{}
	for _, p := range photos {
		byPath[p.FilePath] = p
	}
	require.Contains(t, byPath, "daniel/img1.jpg")
	require.Contains(t, byPath, "christina/img2.png")
	assert.Equal(t, "daniel", byPath["daniel/img1.jpg"].Photographer)
	assert.Equal(t, "christina", byPath["christina/img2.png"].Photographer)
	require.NotNil(t, byPath["daniel/img1.jpg"].Caption)
	assert.Equal(t, "A photo from the trip.", *byPath["daniel/img1.jpg"].Caption)
	require.Len(t, byPath["daniel/img1.jpg"].Points, 1)
}

// staggeringCaptioner holds each call open briefly and records how many were
// in flight at once, so worker overlap is observable.
type staggeringCaptioner struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
}

func (s *staggeringCaptioner) Generate(ctx context.Context, req caption.Request) (*caption.Result, error) {
	s.mu.Lock()
	s.inFlight++
	s.calls++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	return &caption.Result{Caption: "A photo from the trip.", PointsOfInterest: []caption.PointOfInterest{}}, nil
}

func TestRun_ParallelWorkers(t *testing.T) {
	env := newPipelineEnv(t)
	env.cfg.IngestWorkers = 4

	captioner := &staggeringCaptioner{}
	coordinator, err := NewCoordinator(env.cfg, env.repo, env.geocoder, env.fetcher, captioner, nil)
	require.NoError(t, err)

	photographers := []string{"daniel", "christina", "daniel", "maya"}
	for i := 0; i < 8; i++ {
		env.writeSourceFile(t, filepath.ToSlash(filepath.Join(photographers[i%len(photographers)], "img"+strconv.Itoa(i)+".jpg")))
	}
	// one path is already known and must be skipped, not reprocessed
	env.writeSourceFile(t, "daniel/known.jpg")
	_, err = env.repo.InsertPhotoWithPoints(&models.Photo{
		FilePath:     "daniel/known.jpg",
		Photographer: "daniel",
	}, nil)
	require.NoError(t, err)

	report, err := coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, report.Discovered)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 8, report.Processed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 8, captioner.calls)

	// never more files in flight than workers, and the pool actually overlaps
	assert.LessOrEqual(t, captioner.maxSeen, 4)
	assert.GreaterOrEqual(t, captioner.maxSeen, 2)

	var count int64
	require.NoError(t, env.db.Model(&models.Photo{}).Count(&count).Error)
	assert.EqualValues(t, 9, count)

	// every candidate landed exactly once
	photos, err := env.repo.ListPhotos(repository.PhotoFilter{})
	require.NoError(t, err)
	seen := map[string]int{}
	for _, p := range photos {
		seen[p.FilePath]++
	}
	assert.Len(t, seen, 9)
	for path, n := range seen {
		assert.Equal(t, 1, n, "duplicate row for %s", path)
	}
}

func TestRun_ChangeDetectionSkipsKnownPaths(t *testing.T) {
	env := newPipelineEnv(t)
	env.writeSourceFile(t, "daniel/img1.jpg")
	env.writeSourceFile(t, "daniel/img2.jpg")

	_, err := env.repo.InsertPhotoWithPoints(&models.Photo{
		FilePath:     "daniel/img1.jpg",
		Photographer: "daniel",
	}, nil)
	require.NoError(t, err)

	report, err := env.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Processed)

	// only img2 reached the captioning service
	require.Len(t, env.captioner.requests, 1)
	assert.True(t, filepath.IsAbs(env.captioner.requests[0].ImagePath))
	assert.Equal(t, "img2.jpg", filepath.Base(env.captioner.requests[0].ImagePath))
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	env := newPipelineEnv(t)
	env.writeSourceFile(t, "daniel/img1.jpg")
	env.writeSourceFile(t, "christina/img2.jpg")

	first, err := env.coordinator(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)

	second, err := env.coordinator(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Processed)

	var count int64
	require.NoError(t, env.db.Model(&models.Photo{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestRun_MissingGPSSkipsEnrichment(t *testing.T) {
	env := newPipelineEnv(t)
	env.writeSourceFile(t, "daniel/img1.jpg")

	report, err := env.coordinator(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	// no coordinates, so neither optional enrichment is attempted
	assert.Equal(t, 0, env.geocoder.calls)
	assert.Equal(t, 0, env.fetcher.calls)

	photos, err := env.repo.ListPhotos(repository.PhotoFilter{})
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Nil(t, photos[0].Latitude)
	assert.Nil(t, photos[0].Longitude)
	assert.Nil(t, photos[0].LocationName)
}

func TestRun_CaptionFailureStoresSentinel(t *testing.T) {
	env := newPipelineEnv(t)
	env.writeSourceFile(t, "daniel/img1.jpg")
	env.captioner = &stubCaptioner{err: assert.AnError}

	report, err := env.coordinator(t).Run(context.Background())
	require.NoError(t, err)

	// a failed caption still commits the photo, marked with the sentinel
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Failed)

	photos, err := env.repo.ListPhotos(repository.PhotoFilter{})
	require.NoError(t, err)
	require.Len(t, photos, 1)
	require.NotNil(t, photos[0].Caption)
	assert.Equal(t, CaptionFailedSentinel, *photos[0].Caption)
	assert.Empty(t, photos[0].Points)
}

func TestNewCoordinator_FailsFastOnMissingConfig(t *testing.T) {
	env := newPipelineEnv(t)
	env.cfg.AnthropicAPIKey = ""
	env.cfg.SerpAPIKey = ""

	_, err := NewCoordinator(env.cfg, env.repo, env.geocoder, env.fetcher, env.captioner, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	assert.Contains(t, err.Error(), "SERPAPI_KEY")
}
