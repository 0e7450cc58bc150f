// Package library ties the flat image store on disk to the catalog backend.
package library

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/catalog"
	"github.com/MarcoPoloResearchLab/gallery/internal/editor"
	"github.com/MarcoPoloResearchLab/gallery/internal/export"
	"github.com/MarcoPoloResearchLab/gallery/internal/metadata"
	"github.com/MarcoPoloResearchLab/gallery/internal/transform"
)

var (
	errMissingRoot     = errors.New("store root is required")
	errMissingBackend  = errors.New("catalog backend is required")
	errMissingExporter = errors.New("exporter is required")
	errMissingSource   = errors.New("source file is required")
	errInvalidFilename = errors.New("filename must be a plain file name")

	// ErrInvalidDate is returned when an import date override is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
)

const (
	opLibraryNew = "library.new"
	opImport     = "library.import"
	opDelete     = "library.delete"
	opView       = "library.view"
	opExport     = "library.export"
	opOverwrite  = "library.overwrite"
)

// ServiceError carries a stable "<operation>.<reason>" code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Config is the explicit store context: where images live and which catalog owns them.
type Config struct {
	Root      string
	Backend   catalog.Backend
	Logger    *zap.Logger
	Extractor *metadata.Extractor
	Clock     func() time.Time
}

// Library manages the flat store directory. It never creates subdirectories and
// never renames stored files.
type Library struct {
	root      string
	backend   catalog.Backend
	logger    *zap.Logger
	extractor *metadata.Extractor
}

func New(cfg Config) (*Library, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, newServiceError(opLibraryNew, "missing_root", errMissingRoot)
	}
	if cfg.Backend == nil {
		return nil, newServiceError(opLibraryNew, "missing_backend", errMissingBackend)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = metadata.NewExtractor(metadata.ExtractorConfig{Clock: cfg.Clock, Logger: logger})
	}
	return &Library{
		root:      cfg.Root,
		backend:   cfg.Backend,
		logger:    logger,
		extractor: extractor,
	}, nil
}

func (l *Library) Root() string {
	return l.root
}

func (l *Library) Backend() catalog.Backend {
	return l.backend
}

// Metadata extracts catalog metadata from any file, stored or not.
func (l *Library) Metadata(path string) metadata.Record {
	return l.extractor.Extract(path)
}

// Overrides replace extracted values on import. Empty fields keep the extracted value.
type Overrides struct {
	Description string
	Tags        []string
	Location    string
	DateTime    string
}

// Import extracts metadata from srcPath, copies the file into the store unless a
// file with the same name is already there, and registers it with the catalog.
func (l *Library) Import(ctx context.Context, srcPath string, overrides Overrides) (metadata.Record, error) {
	if strings.TrimSpace(srcPath) == "" {
		return metadata.Record{}, newServiceError(opImport, "missing_source", errMissingSource)
	}
	if overrides.DateTime != "" {
		if _, err := time.Parse(metadata.DateLayout, overrides.DateTime); err != nil {
			return metadata.Record{}, newServiceError(opImport, "invalid_date", fmt.Errorf("%w: %q", ErrInvalidDate, overrides.DateTime))
		}
	}
	info, err := os.Stat(srcPath)
	if err != nil {
		l.logError(opImport, "source_unreadable", err, zap.String("path", srcPath))
		return metadata.Record{}, newServiceError(opImport, "source_unreadable", err)
	}
	if info.IsDir() {
		return metadata.Record{}, newServiceError(opImport, "source_is_directory", errMissingSource)
	}

	record := l.extractor.Extract(srcPath)
	if overrides.Location != "" {
		record.Location = overrides.Location
	}
	if overrides.DateTime != "" {
		record.DateTime = overrides.DateTime
	}

	if err := os.MkdirAll(l.root, 0o755); err != nil {
		l.logError(opImport, "store_unavailable", err, zap.String("root", l.root))
		return record, newServiceError(opImport, "store_unavailable", err)
	}
	dest := l.PathFor(record.Filename)
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		if err := export.CopyFile(srcPath, dest); err != nil {
			l.logError(opImport, "copy_failed", err, zap.String("destination", dest))
			return record, newServiceError(opImport, "copy_failed", err)
		}
	} else if err != nil {
		l.logError(opImport, "store_unavailable", err, zap.String("destination", dest))
		return record, newServiceError(opImport, "store_unavailable", err)
	} else {
		l.logger.Info("store already holds file, skipping copy", zap.String("filename", record.Filename))
	}

	if err := l.backend.AddPhoto(ctx, catalog.NewPhoto{
		Filename:    record.Filename,
		Location:    record.Location,
		DateTime:    record.DateTime,
		Description: overrides.Description,
		Tags:        catalog.JoinTags(overrides.Tags),
		FileSizeKB:  record.FileSizeKB,
	}); err != nil {
		l.logError(opImport, "catalog_rejected", err, zap.String("filename", record.Filename))
		return record, newServiceError(opImport, "catalog_rejected", err)
	}
	l.logger.Info("imported photo",
		zap.String("filename", record.Filename),
		zap.String("date", record.DateTime),
		zap.String("location", record.Location),
	)
	return record, nil
}

// Delete removes the catalog record and then, best effort, the stored file.
func (l *Library) Delete(ctx context.Context, photo catalog.PhotoRecord) error {
	if err := l.backend.DeletePhoto(ctx, photo.ID); err != nil {
		l.logError(opDelete, "catalog_rejected", err, zap.Int64("photo_id", photo.ID))
		return newServiceError(opDelete, "catalog_rejected", err)
	}
	if photo.Filename == "" {
		return nil
	}
	if err := os.Remove(l.PathFor(photo.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logError(opDelete, "file_remove_failed", err,
			zap.Int64("photo_id", photo.ID),
			zap.String("filename", photo.Filename),
		)
	}
	return nil
}

// View records one view of the photo.
func (l *Library) View(ctx context.Context, photo catalog.PhotoRecord) error {
	if err := l.backend.ViewPhoto(ctx, photo.ID); err != nil {
		l.logError(opView, "catalog_rejected", err, zap.Int64("photo_id", photo.ID))
		return newServiceError(opView, "catalog_rejected", err)
	}
	return nil
}

// Find returns the catalog record with the given id.
func (l *Library) Find(ctx context.Context, id int64) (catalog.PhotoRecord, bool, error) {
	photos, err := l.backend.ListPhotos(ctx)
	if err != nil {
		return catalog.PhotoRecord{}, false, err
	}
	for _, photo := range photos {
		if photo.ID == id {
			return photo, true, nil
		}
	}
	return catalog.PhotoRecord{}, false, nil
}

// PathFor maps a stored filename to its path inside the store.
func (l *Library) PathFor(filename string) string {
	return filepath.Join(l.root, filepath.Base(filename))
}

// OpenImage decodes a stored image straight from disk.
func (l *Library) OpenImage(filename string) (image.Image, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	return transform.Open(l.PathFor(filename))
}

// OverwriteImage replaces a stored image in place, keeping its name and format.
func (l *Library) OverwriteImage(filename string, img image.Image) error {
	if err := checkFilename(filename); err != nil {
		return newServiceError(opOverwrite, "invalid_filename", err)
	}
	dest := l.PathFor(filename)
	if _, err := transform.FormatFor(dest); err != nil {
		return newServiceError(opOverwrite, "unsupported_format", err)
	}

	tmp, err := os.CreateTemp(l.root, ".edit-*"+filepath.Ext(dest))
	if err != nil {
		l.logError(opOverwrite, "temp_file_failed", err, zap.String("filename", filename))
		return newServiceError(opOverwrite, "temp_file_failed", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	mode := os.FileMode(0o644)
	if info, err := os.Stat(dest); err == nil {
		mode = info.Mode().Perm()
	}
	_ = os.Chmod(tmpPath, mode)

	if err := transform.Save(img, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		l.logError(opOverwrite, "encode_failed", err, zap.String("filename", filename))
		return newServiceError(opOverwrite, "encode_failed", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		l.logError(opOverwrite, "replace_failed", err, zap.String("filename", filename))
		return newServiceError(opOverwrite, "replace_failed", err)
	}
	return nil
}

// Export hands the stored file to exporter under its catalog filename.
func (l *Library) Export(ctx context.Context, photo catalog.PhotoRecord, exporter export.Exporter) (string, error) {
	if exporter == nil {
		return "", newServiceError(opExport, "missing_exporter", errMissingExporter)
	}
	location, err := exporter.Export(ctx, photo.Filename, l.PathFor(photo.Filename))
	if err != nil {
		l.logError(opExport, "export_failed", err, zap.Int64("photo_id", photo.ID))
		return "", newServiceError(opExport, "export_failed", err)
	}
	return location, nil
}

// Edit opens an edit session on a stored image.
func (l *Library) Edit(filename string, cfg editor.SessionConfig) (*editor.Session, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = l.logger
	}
	return editor.Open(l.PathFor(filename), cfg)
}

// SaveEdit writes the session's committed image over the stored file.
func (l *Library) SaveEdit(filename string, session *editor.Session) error {
	return l.OverwriteImage(filename, session.Commit())
}

func (l *Library) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	l.logger.Error("library error", attrs...)
}

func checkFilename(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return fmt.Errorf("%w: %q", errInvalidFilename, filename)
	}
	return nil
}
