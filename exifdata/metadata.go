package exifdata

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// Rational is a raw EXIF rational exactly as stored on disk, before any
// conversion to decimal.
type Rational struct {
	Num int64
	Den int64
}

// GPSInfo carries the raw GPS fields needed by the coordinate resolver.
// Missing components are represented by nil slices / empty refs rather than
// zero values, so the resolver can tell absence from the equator.
type GPSInfo struct {
	Latitude     []Rational // degrees, minutes, seconds
	LatitudeRef  string     // "N" or "S"
	Longitude    []Rational
	LongitudeRef string // "E" or "W"
}

// Metadata is the normalized result of reading one image file.
type Metadata struct {
	// Fields maps every EXIF tag name to its printable value; persisted as the
	// audit blob on the photo record.
	Fields    map[string]string
	DateTaken *time.Time
	GPS       *GPSInfo
}

type fieldCollector map[string]string

func (c fieldCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	// tag values might have null chars at the end
	c[string(name)] = strings.TrimRight(tag.String(), "\x00")
	return nil
}

// Extract reads EXIF metadata from the image at path. A file without an EXIF
// block yields an empty Metadata, not an error; an unreadable file is an error
// for the caller to report.
func Extract(path string) (*Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exifdata: failed to open %s: %w", path, err)
	}
	defer file.Close()

	meta := &Metadata{Fields: map[string]string{}}

	exifData, err := exif.Decode(file)
	if err != nil {
		// not fatal, the file may simply lack EXIF data
		return meta, nil
	}

	_ = exifData.Walk(fieldCollector(meta.Fields))

	if dt, err := exifData.DateTime(); err == nil {
		meta.DateTaken = &dt
	}

	meta.GPS = extractGPS(exifData)
	return meta, nil
}

func extractGPS(exifData *exif.Exif) *GPSInfo {
	gps := &GPSInfo{
		Latitude:     getRationals(exifData, exif.GPSLatitude),
		LatitudeRef:  getString(exifData, exif.GPSLatitudeRef),
		Longitude:    getRationals(exifData, exif.GPSLongitude),
		LongitudeRef: getString(exifData, exif.GPSLongitudeRef),
	}
	if gps.Latitude == nil && gps.Longitude == nil && gps.LatitudeRef == "" && gps.LongitudeRef == "" {
		return nil
	}
	return gps
}

// getRationals reads a multi-component rational tag, returning nil if the tag
// is absent or any component cannot be read.
func getRationals(exifData *exif.Exif, tagName exif.FieldName) []Rational {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	out := make([]Rational, 0, int(tag.Count))
	for i := 0; i < int(tag.Count); i++ {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return nil
		}
		out = append(out, Rational{Num: num, Den: den})
	}
	return out
}

func getString(exifData *exif.Exif, tagName exif.FieldName) string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return ""
	}
	val, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimRight(val, "\x00")
}
