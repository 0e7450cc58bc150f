package transform

import (
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode wraps any failure to decode image bytes.
	ErrDecode = errors.New("transform: decode image")
	// ErrUnsupportedFormat is returned when an image cannot be written in the requested format.
	ErrUnsupportedFormat = errors.New("transform: unsupported output format")
)

// Decode reads an image from r. Orientation tags are ignored so that pixels match storage.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Open decodes the image stored at path.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	return img, nil
}

// FormatFor picks the output format from the file extension.
func FormatFor(path string) (imaging.Format, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return 0, fmt.Errorf("%w: webp", ErrUnsupportedFormat)
	}
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return format, nil
}

// Save writes img to path in the format implied by its extension.
func Save(img image.Image, path string) error {
	if _, err := FormatFor(path); err != nil {
		return err
	}
	return imaging.Save(img, path, imaging.JPEGQuality(95))
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format imaging.Format) error {
	return imaging.Encode(w, img, format, imaging.JPEGQuality(95))
}
