package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const displayJpegQuality = 85

// DisplayName flattens a slash-relative source path into the deterministic
// file name used inside the display cache, so re-runs overwrite rather than
// accumulate copies.
func DisplayName(relPath string) string {
	flat := strings.ReplaceAll(relPath, "/", "_")
	return strings.TrimSuffix(flat, filepath.Ext(flat)) + ".jpg"
}

// GenerateDisplayCopy writes a bounded JPEG copy of the source image into the
// display cache for the web viewer. The copy is derived data; callers treat
// failures as non-fatal.
func GenerateDisplayCopy(srcPath, displayDir, relPath string, maxSize int) (string, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", srcPath, err)
	}

	display := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	if err := os.MkdirAll(displayDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create display cache directory %s: %w", displayDir, err)
	}

	savePath := filepath.Join(displayDir, DisplayName(relPath))
	if err := imaging.Save(display, savePath, imaging.JPEGQuality(displayJpegQuality)); err != nil {
		return "", fmt.Errorf("failed to save display copy for %s: %w", srcPath, err)
	}
	return savePath, nil
}
