// Package export copies stored photos to a destination outside the image store.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const s3Scheme = "s3://"

var (
	errMissingTarget = errors.New("export target is required")
	errMissingBucket = errors.New("export bucket is required")
	errMissingName   = errors.New("export name is required")
)

// Exporter writes the file at srcPath under name and returns where it went.
type Exporter interface {
	Export(ctx context.Context, name, srcPath string) (string, error)
}

// ForTarget picks a MinIO exporter for "s3://bucket[/prefix]" targets and a
// directory exporter for everything else.
func ForTarget(target string, cfg MinioConfig) (Exporter, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errMissingTarget
	}
	if rest, ok := strings.CutPrefix(target, s3Scheme); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		cfg.Bucket = bucket
		cfg.Prefix = prefix
		return NewMinioExporter(cfg)
	}
	return NewDirExporter(target)
}

// DirExporter copies files into a local directory, keeping mode and modification time.
type DirExporter struct {
	dir string
}

func NewDirExporter(dir string) (*DirExporter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errMissingTarget
	}
	return &DirExporter{dir: dir}, nil
}

func (e *DirExporter) Export(ctx context.Context, name, srcPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", errMissingName
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	dest := filepath.Join(e.dir, base)
	if err := CopyFile(srcPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// CopyFile copies src to dst, replacing dst, and carries over permissions and mtime.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy contents: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("set destination mode: %w", err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("set destination times: %w", err)
	}
	return nil
}
