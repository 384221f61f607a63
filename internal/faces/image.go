package faces

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidImage      = errors.New("image could not be decoded")
)

var allowedExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// AllowedFile reports whether filename has a png, jpg or jpeg extension, in any case.
func AllowedFile(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DefaultMaxPixels is the decode budget used when none is configured.
const DefaultMaxPixels = 25_000_000

// Normalize decodes an uploaded image, applies EXIF orientation, bounds the
// longer side to maxDim and re-encodes it as JPEG. Images whose header
// declares more than maxPixels pixels are refused before any pixel data is
// decoded; maxPixels <= 0 means DefaultMaxPixels.
func Normalize(data []byte, maxDim, maxPixels int) ([]byte, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("faces: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ReferenceKey names a student's reference image. The nanosecond stamp keeps a
// re-registration from overwriting the blob an in-flight verification reads.
func ReferenceKey(studentID string, now time.Time) string {
	return fmt.Sprintf("reference/student_%s_%d.jpg", studentID, now.UnixNano())
}

// ProbePrefix is the key prefix of transient probe images.
const ProbePrefix = "probes/"

// ProbeKey names the probe image of one attendance attempt.
func ProbeKey(studentID, sessionID string, now time.Time) string {
	return fmt.Sprintf("%sattendance_%s_%s_%s_%s.jpg", ProbePrefix, studentID, sessionID,
		now.Format("20060102_150405"), uuid.NewString()[:8])
}
