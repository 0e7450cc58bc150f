package export

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeSource(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o640); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestDirExporterCopiesContentsModeAndTime(t *testing.T) {
	src := writeSource(t, t.TempDir(), "sunset.jpg", "jpeg-bytes")
	stamp := time.Date(2020, time.May, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(src, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	target := filepath.Join(t.TempDir(), "exports")
	exporter, err := ForTarget(target, MinioConfig{})
	if err != nil {
		t.Fatalf("for target: %v", err)
	}
	dest, err := exporter.Export(context.Background(), "sunset.jpg", src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if dest != filepath.Join(target, "sunset.jpg") {
		t.Fatalf("unexpected destination %q", dest)
	}

	contents, err := os.ReadFile(dest)
	if err != nil || string(contents) != "jpeg-bytes" {
		t.Fatalf("unexpected exported contents %q (%v)", contents, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat export: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("expected mode 0640, got %v", info.Mode().Perm())
	}
	if !info.ModTime().Equal(stamp) {
		t.Fatalf("expected modification time %v, got %v", stamp, info.ModTime())
	}
}

func TestDirExporterMissingSource(t *testing.T) {
	exporter, err := NewDirExporter(t.TempDir())
	if err != nil {
		t.Fatalf("new dir exporter: %v", err)
	}
	if _, err := exporter.Export(context.Background(), "gone.jpg", filepath.Join(t.TempDir(), "gone.jpg")); err == nil {
		t.Fatalf("expected error for missing source")
	}
}

func TestForTargetRequiresBucketAndEndpoint(t *testing.T) {
	if _, err := ForTarget("", MinioConfig{}); err == nil {
		t.Fatalf("expected error for empty target")
	}
	if _, err := ForTarget("s3://", MinioConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	if _, err := ForTarget("s3://photos", MinioConfig{}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}

type recordedPut struct {
	method      string
	path        string
	contentType string
}

func TestMinioExporterUploadsUnderPrefix(t *testing.T) {
	var (
		mu   sync.Mutex
		puts []recordedPut
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{method: r.Method, path: r.URL.Path, contentType: r.Header.Get("Content-Type")})
		mu.Unlock()
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	src := writeSource(t, t.TempDir(), "harbor.png", "png-bytes")
	exporter, err := ForTarget("s3://gallery/backups/2024", MinioConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Fatalf("for target: %v", err)
	}
	location, err := exporter.Export(context.Background(), "harbor.png", src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if location != "s3://gallery/backups/2024/harbor.png" {
		t.Fatalf("unexpected location %q", location)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(puts) != 1 {
		t.Fatalf("expected a single request, got %+v", puts)
	}
	if puts[0].method != http.MethodPut || puts[0].path != "/gallery/backups/2024/harbor.png" {
		t.Fatalf("unexpected request %+v", puts[0])
	}
	if puts[0].contentType != "image/png" {
		t.Fatalf("unexpected content type %q", puts[0].contentType)
	}
}
