// Package metadata reads catalog metadata (capture date, GPS position, originating
// device or software) from image files.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"go.uber.org/zap"
)

const (
	// Unknown is the sentinel stored for location and source when nothing could be read.
	Unknown = "Unknown"
	// DateLayout is the catalog date format.
	DateLayout = "2006-01-02"

	exifDateTimeLayout = "2006:01:02 15:04:05"
)

var errMissingGPS = errors.New("metadata: gps latitude/longitude not present")

// Record is the extraction result. All five fields are always populated.
type Record struct {
	Filename   string `json:"filename"`
	FileSizeKB int64  `json:"fileSize"`
	DateTime   string `json:"dateTime"`
	Location   string `json:"location"`
	Source     string `json:"source"`
}

// ExtractorConfig describes optional dependencies of an Extractor.
type ExtractorConfig struct {
	Clock  func() time.Time
	Logger *zap.Logger
}

// Extractor decodes EXIF metadata with per-field fallbacks.
type Extractor struct {
	clock  func() time.Time
	logger *zap.Logger
}

// NewExtractor constructs an Extractor, defaulting the clock and logger.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{clock: clock, logger: logger}
}

// Extract never fails: any decoding problem leaves the affected fields at their defaults.
func (e *Extractor) Extract(path string) Record {
	record := Record{Filename: filepath.Base(path)}
	if info, err := os.Stat(path); err == nil {
		record.FileSizeKB = info.Size() / 1024
	} else {
		e.logger.Warn("metadata stat failed", zap.String("path", path), zap.Error(err))
	}

	if x, err := decodeFile(path); err != nil {
		e.logger.Warn("metadata exif decode failed", zap.String("path", path), zap.Error(err))
	} else {
		if date, err := captureDate(x); err == nil {
			record.DateTime = date
		}
		if location, err := gpsLocation(x); err == nil {
			record.Location = location
		} else if !errors.Is(err, errMissingGPS) {
			e.logger.Warn("metadata gps conversion failed", zap.String("path", path), zap.Error(err))
		}
		record.Source = sourceApplication(x)
	}

	return e.applyDefaults(record)
}

func (e *Extractor) applyDefaults(record Record) Record {
	if record.DateTime == "" {
		record.DateTime = e.clock().Format(DateLayout)
	}
	if record.Location == "" {
		record.Location = Unknown
	}
	if record.Source == "" {
		record.Source = Unknown
	}
	return record
}

func decodeFile(path string) (x *exif.Exif, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	// goexif can panic on some truncated tiff structures.
	defer func() {
		if r := recover(); r != nil {
			x = nil
			err = fmt.Errorf("metadata: exif decoder panic: %v", r)
		}
	}()
	return exif.Decode(file)
}

func captureDate(x *exif.Exif) (string, error) {
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return "", err
	}
	raw, err := tag.StringVal()
	if err != nil {
		return "", err
	}
	return ReformatCaptureDate(raw)
}

// ReformatCaptureDate converts an EXIF "YYYY:MM:DD HH:MM:SS" stamp into YYYY-MM-DD.
func ReformatCaptureDate(raw string) (string, error) {
	parsed, err := time.Parse(exifDateTimeLayout, strings.TrimRight(strings.TrimSpace(raw), "\x00"))
	if err != nil {
		return "", err
	}
	return parsed.Format(DateLayout), nil
}

func gpsLocation(x *exif.Exif) (string, error) {
	latTag, latErr := x.Get(exif.GPSLatitude)
	lonTag, lonErr := x.Get(exif.GPSLongitude)
	if latErr != nil || lonErr != nil {
		return "", errMissingGPS
	}
	lat, err := tagDegrees(latTag)
	if err != nil {
		return "", fmt.Errorf("latitude: %w", err)
	}
	lon, err := tagDegrees(lonTag)
	if err != nil {
		return "", fmt.Errorf("longitude: %w", err)
	}
	return FormatLocation(lat, lon), nil
}

func tagDegrees(tag *tiff.Tag) (float64, error) {
	var parts [3]Rational
	for i := range parts {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return 0, err
		}
		parts[i] = Rational{Num: num, Den: den}
	}
	return DecimalDegrees(parts[0], parts[1], parts[2])
}

// sourceApplication walks the raw TIFF fields independently of the date/GPS lookups.
func sourceApplication(x *exif.Exif) string {
	fields := sourceWalker{}
	if err := x.Walk(fields); err != nil {
		return ""
	}
	if software := fields[exif.Software]; software != "" {
		return software
	}
	cameraMake, cameraModel := fields[exif.Make], fields[exif.Model]
	if cameraMake == "" {
		return ""
	}
	return strings.TrimSpace(cameraMake + " " + cameraModel)
}

type sourceWalker map[exif.FieldName]string

func (w sourceWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	switch name {
	case exif.Software, exif.Make, exif.Model:
		if tag.Format() != tiff.StringVal {
			return nil
		}
		value, err := tag.StringVal()
		if err != nil {
			return nil
		}
		w[name] = strings.TrimSpace(strings.TrimRight(value, "\x00"))
	}
	return nil
}
