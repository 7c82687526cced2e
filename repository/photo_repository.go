package repository

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"phototrail/models"
)

// Sort orders accepted by ListPhotos.
const (
	SortDate     = "date"
	SortLocation = "location"
)

// PhotoFilter narrows and orders the read-side photo listing.
type PhotoFilter struct {
	Location string // substring match on location_name
	SortBy   string // SortDate or SortLocation; anything else keeps insertion order
}

// PhotoRepository handles database operations for Photo entities
type PhotoRepository struct {
	DB *gorm.DB
}

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

// ListKnownPaths returns every file_path already ingested. The coordinator
// snapshots this set once per run for change detection.
func (r *PhotoRepository) ListKnownPaths() (map[string]struct{}, error) {
	var paths []string
	if err := r.DB.Model(&models.Photo{}).Pluck("file_path", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to list known photo paths: %w", err)
	}
	known := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		known[p] = struct{}{}
	}
	return known, nil
}

// InsertPhotoWithPoints persists a photo and all of its points of interest as
// one atomic unit. Any failure rolls the whole photo back; a photo must never
// exist with only some of its points.
func (r *PhotoRepository) InsertPhotoWithPoints(photo *models.Photo, points []models.PointOfInterest) (uint, error) {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Points").Create(photo).Error; err != nil {
			return fmt.Errorf("failed to insert photo %s: %w", photo.FilePath, err)
		}
		if len(points) == 0 {
			return nil
		}
		for i := range points {
			points[i].PhotoID = photo.ID
		}
		if err := tx.Create(&points).Error; err != nil {
			return fmt.Errorf("failed to insert points of interest for %s: %w", photo.FilePath, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return photo.ID, nil
}

// GetByID retrieves one photo with its points of interest.
func (r *PhotoRepository) GetByID(id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.Preload("Points").First(&photo, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo %d: %w", id, err)
	}
	return &photo, nil
}

// ListPhotos serves the read-side listing: optional location substring filter
// and date/location ordering, points of interest attached.
func (r *PhotoRepository) ListPhotos(filter PhotoFilter) ([]models.Photo, error) {
	queryBuilder := sq.Select("*").From("photos")
	if filter.Location != "" {
		queryBuilder = queryBuilder.Where(sq.Like{"location_name": "%" + filter.Location + "%"})
	}
	switch filter.SortBy {
	case SortDate:
		queryBuilder = queryBuilder.OrderBy("date_taken")
	case SortLocation:
		queryBuilder = queryBuilder.OrderBy("location_name")
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build photo list query: %w", err)
	}

	var photos []models.Photo
	if err := r.DB.Raw(sqlStr, args...).Scan(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	if len(photos) == 0 {
		return []models.Photo{}, nil
	}
	if err := r.attachPoints(photos); err != nil {
		return nil, err
	}
	return photos, nil
}

func (r *PhotoRepository) attachPoints(photos []models.Photo) error {
	ids := make([]uint, len(photos))
	index := make(map[uint]*models.Photo, len(photos))
	for i := range photos {
		ids[i] = photos[i].ID
		index[photos[i].ID] = &photos[i]
	}

	var points []models.PointOfInterest
	if err := r.DB.Where("photo_id IN ?", ids).Order("id").Find(&points).Error; err != nil {
		return fmt.Errorf("failed to load points of interest: %w", err)
	}
	for _, p := range points {
		if photo, ok := index[p.PhotoID]; ok {
			photo.Points = append(photo.Points, p)
		}
	}
	return nil
}
