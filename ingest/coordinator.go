package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/facette/natsort"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"phototrail/caption"
	"phototrail/config"
	"phototrail/exifdata"
	"phototrail/media"
	"phototrail/models"
)

// CaptionFailedSentinel marks photos whose caption generation exhausted its
// retry budget, distinguishing "tried and failed" from "not yet attempted".
const CaptionFailedSentinel = "[caption unavailable]"

// Geocoder resolves coordinates to a place name; nil means no result.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) *string
}

// SnapshotFetcher retrieves a cached map snapshot path; nil means no snapshot.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, lat, lon float64, id string) *string
}

// Captioner generates a structured caption for one photo.
type Captioner interface {
	Generate(ctx context.Context, req caption.Request) (*caption.Result, error)
}

// Repository is the slice of the persistence layer the coordinator needs.
type Repository interface {
	ListKnownPaths() (map[string]struct{}, error)
	InsertPhotoWithPoints(photo *models.Photo, points []models.PointOfInterest) (uint, error)
}

// Report summarizes one ingestion run.
type Report struct {
	RunID      string `json:"run_id"`
	Discovered int    `json:"discovered"`
	Skipped    int    `json:"skipped"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
}

// Coordinator walks the photo source tree and drives each new file through
// extraction, enrichment, captioning and persistence. Commits are per-file, so
// an interrupted run loses at most the in-flight file.
type Coordinator struct {
	cfg       config.Config
	repo      Repository
	geocoder  Geocoder
	snapshots SnapshotFetcher
	captioner Captioner
	logger    *zap.Logger

	mu     sync.Mutex
	report Report
}

// NewCoordinator wires the pipeline. Required configuration is validated here,
// before any file is touched.
func NewCoordinator(cfg config.Config, repo Repository, geocoder Geocoder, snapshots SnapshotFetcher, captioner Captioner, logger *zap.Logger) (*Coordinator, error) {
	if err := cfg.ValidateForIngest(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:       cfg,
		repo:      repo,
		geocoder:  geocoder,
		snapshots: snapshots,
		captioner: captioner,
		logger:    logger,
	}, nil
}

// Run executes one incremental pass over the source tree. Per-file failures
// are counted and logged but never abort the run; only an unreachable store or
// an unwalkable source tree is fatal.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	c.mu.Lock()
	c.report = Report{RunID: runID}
	c.mu.Unlock()
	logger := c.logger.With(zap.String("run_id", runID))

	known, err := c.repo.ListKnownPaths()
	if err != nil {
		return nil, fmt.Errorf("cannot load known photo paths, store unavailable: %w", err)
	}

	candidates, err := c.discover()
	if err != nil {
		return nil, err
	}

	pending := make([]string, 0, len(candidates))
	c.mu.Lock()
	c.report.Discovered = len(candidates)
	for _, rel := range candidates {
		if _, ok := known[rel]; ok {
			c.report.Skipped++
			continue
		}
		pending = append(pending, rel)
	}
	skipped := c.report.Skipped
	c.mu.Unlock()

	workers := c.cfg.IngestWorkers
	if workers <= 0 {
		workers = 1
	}
	logger.Info("ingestion run starting",
		zap.Int("discovered", len(candidates)),
		zap.Int("skipped", skipped),
		zap.Int("pending", len(pending)),
		zap.Int("workers", workers))

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for rel := range jobs {
				c.processFile(ctx, logger, rel)
			}
		}()
	}

dispatch:
	for _, rel := range pending {
		select {
		case <-ctx.Done():
			// stop cleanly between files; committed work stays committed
			break dispatch
		case jobs <- rel:
		}
	}
	close(jobs)
	wg.Wait()

	report := c.snapshotReport()
	logger.Info("ingestion run finished",
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	if err := ctx.Err(); err != nil {
		return &report, err
	}
	return &report, nil
}

// discover walks the source tree and returns slash-relative candidate paths in
// natural order.
func (c *Coordinator) discover() ([]string, error) {
	root := c.cfg.RootDirectory
	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isCandidate(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		candidates = append(candidates, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source tree %s: %w", root, err)
	}
	natsort.Sort(candidates)
	return candidates, nil
}

func isCandidate(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

func (c *Coordinator) processFile(ctx context.Context, logger *zap.Logger, relPath string) {
	absPath := filepath.Join(c.cfg.RootDirectory, filepath.FromSlash(relPath))
	photographer := filepath.Base(filepath.Dir(absPath))
	logger = logger.With(zap.String("file", relPath))

	meta, err := exifdata.Extract(absPath)
	if err != nil {
		logger.Error("failed to read photo metadata", zap.Error(err))
		c.fail()
		return
	}

	lat, lon := exifdata.ResolveCoordinates(meta.GPS)
	if meta.GPS != nil && lat == nil {
		logger.Warn("GPS block present but incomplete, continuing without coordinates")
	}

	var locationName, mapPath *string
	if lat != nil && lon != nil {
		// geocoding and the map snapshot are independent lookups
		var lookups sync.WaitGroup
		lookups.Add(2)
		go func() {
			defer lookups.Done()
			locationName = c.geocoder.ReverseGeocode(ctx, *lat, *lon)
		}()
		go func() {
			defer lookups.Done()
			mapPath = c.snapshots.Fetch(ctx, *lat, *lon, artifactID(relPath))
		}()
		lookups.Wait()
	}

	if _, err := media.GenerateDisplayCopy(absPath, c.cfg.DisplaysPath, relPath, c.cfg.DisplayMaxSize); err != nil {
		logger.Warn("failed to generate display copy", zap.Error(err))
	}

	capText := CaptionFailedSentinel
	var points []models.PointOfInterest
	result, err := c.captioner.Generate(ctx, caption.Request{
		ImagePath:    absPath,
		Photographer: photographer,
		LocationName: locationName,
		MapImagePath: mapPath,
	})
	if err != nil {
		logger.Warn("caption generation failed, storing sentinel", zap.Error(err))
	} else {
		capText = result.Caption
		points = make([]models.PointOfInterest, 0, len(result.PointsOfInterest))
		for _, p := range result.PointsOfInterest {
			points = append(points, models.PointOfInterest{Name: p.Name, Description: p.Description})
		}
	}

	exifBlob, err := json.Marshal(meta.Fields)
	if err != nil {
		exifBlob = []byte("{}")
	}

	photo := &models.Photo{
		FilePath:     relPath,
		Caption:      &capText,
		DateTaken:    unixOrNil(meta.DateTaken),
		Latitude:     lat,
		Longitude:    lon,
		LocationName: locationName,
		ExifData:     string(exifBlob),
		Photographer: photographer,
	}
	if _, err := c.repo.InsertPhotoWithPoints(photo, points); err != nil {
		logger.Error("failed to persist photo", zap.Error(err))
		c.fail()
		return
	}

	c.succeed()
	logger.Info("photo ingested",
		zap.Uint("photo_id", photo.ID),
		zap.Int("points_of_interest", len(points)),
		zap.Bool("located", lat != nil))
}

// artifactID derives the cache identifier for a source file. Flattening the
// relative path keeps the name deterministic and unique across photographers.
func artifactID(relPath string) string {
	flat := strings.ReplaceAll(relPath, "/", "_")
	return strings.TrimSuffix(flat, filepath.Ext(flat))
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ts := t.Unix()
	return &ts
}

func (c *Coordinator) fail() {
	c.mu.Lock()
	c.report.Failed++
	c.mu.Unlock()
}

func (c *Coordinator) succeed() {
	c.mu.Lock()
	c.report.Processed++
	c.mu.Unlock()
}

func (c *Coordinator) snapshotReport() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}
