package models

// Photo represents one ingested image. Rows are write-once: the ingestion run
// creates them fully enriched and nothing updates them afterwards.
type Photo struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	FilePath string `gorm:"not null;index" json:"file_path"` // relative to the photo source root, slash-separated

	Caption      *string  `json:"caption,omitempty"`                 // Nullable, sentinel on generation failure
	DateTaken    *int64   `gorm:"index" json:"date_taken,omitempty"` // Nullable, Unix timestamp
	Latitude     *float64 `json:"latitude,omitempty"`                // Nullable, decimal degrees
	Longitude    *float64 `json:"longitude,omitempty"`               // Nullable, decimal degrees
	LocationName *string  `gorm:"index" json:"location_name,omitempty"`

	// ExifData is an opaque audit snapshot of everything the extractor saw;
	// it is never re-parsed downstream.
	ExifData     string `json:"exif_data,omitempty"`
	Photographer string `gorm:"not null" json:"photographer"` // immediate parent directory name

	// Relationships
	Points []PointOfInterest `gorm:"foreignKey:PhotoID" json:"points_of_interest,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Photo) TableName() string {
	return "photos"
}

// PointOfInterest is a named place attached to a Photo. It has no lifecycle of
// its own: rows are created in the same transaction as their owning Photo.
type PointOfInterest struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PhotoID     uint   `gorm:"not null;index" json:"photo_id"`
	Name        string `gorm:"not null;check:name <> ''" json:"name"` // a web-searchable phrase
	Description string `json:"description"`
}

// TableName explicitly sets the table name for GORM.
func (PointOfInterest) TableName() string {
	return "points_of_interest"
}
