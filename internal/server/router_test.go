package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/batch"
	"github.com/MarcoPoloResearchLab/gallery/internal/catalog"
	"github.com/MarcoPoloResearchLab/gallery/internal/journal"
	"github.com/MarcoPoloResearchLab/gallery/internal/library"
)

type testEnv struct {
	handler  http.Handler
	backend  *catalog.MemoryBackend
	library  *library.Library
	realtime *RealtimeDispatcher
}

func seedPhotos() []catalog.PhotoRecord {
	return []catalog.PhotoRecord{
		{ID: 1, Filename: "harbor.png", DateTime: "2024-05-02", Location: "Lisbon", Description: "Harbor at dusk", Tags: "sea,boats"},
		{ID: 2, Filename: "ridge.png", DateTime: "2023-11-20", Location: "Zermatt", Description: "Snowy ridge", Tags: "mountain", ViewCount: 4},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := catalog.NewMemoryBackend(seedPhotos()...)
	root := t.TempDir()
	for _, name := range []string{"harbor.png", "ridge.png"} {
		img := imaging.New(12, 8, color.NRGBA{R: 90, G: 140, B: 200, A: 255})
		if err := imaging.Save(img, filepath.Join(root, name)); err != nil {
			t.Fatalf("seed image: %v", err)
		}
	}
	lib, err := library.New(library.Config{Root: root, Backend: backend})
	if err != nil {
		t.Fatalf("new library: %v", err)
	}

	history, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = history.Close() })

	executor, err := batch.NewExecutor(batch.ExecutorConfig{Store: lib, Backend: backend, Recorder: history})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Library:           lib,
		Executor:          executor,
		Realtime:          dispatcher,
		History:           history,
		Logger:            zap.NewNop(),
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return &testEnv{handler: handler, backend: backend, library: lib, realtime: dispatcher}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodePhotos(t *testing.T, recorder *httptest.ResponseRecorder) []catalog.PhotoRecord {
	t.Helper()
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload photoListResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode photos: %v", err)
	}
	return payload.Photos
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	code, _ := payload["error"].(string)
	return code
}

func TestNewHTTPHandlerRequiresLibraryAndExecutor(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected missing library error")
	}
}

func TestListPhotosVariants(t *testing.T) {
	env := newTestEnv(t)

	if photos := decodePhotos(t, env.do(t, http.MethodGet, "/api/photos", nil)); len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}

	photos := decodePhotos(t, env.do(t, http.MethodGet, "/api/photos?search_kind=Tag&q=mountain", nil))
	if len(photos) != 1 || photos[0].ID != 2 {
		t.Fatalf("unexpected tag search result %+v", photos)
	}

	photos = decodePhotos(t, env.do(t, http.MethodGet, "/api/photos?q=dusk&search_kind=description", nil))
	if len(photos) != 1 || photos[0].ID != 1 {
		t.Fatalf("unexpected description search result %+v", photos)
	}

	photos = decodePhotos(t, env.do(t, http.MethodGet, "/api/photos?sort=date&ascending=false", nil))
	if len(photos) != 2 || photos[0].ID != 1 {
		t.Fatalf("expected newest first, got %+v", photos)
	}

	if recorder := env.do(t, http.MethodGet, "/api/photos?sort=colour", nil); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown sort, got %d", recorder.Code)
	}
}

func TestListPhotosReportsCatalogFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.FailOn(catalog.CommandGetAllPhotos, nil)

	recorder := env.do(t, http.MethodGet, "/api/photos", nil)
	if recorder.Code != http.StatusBadGateway || errorCode(t, recorder) != "catalog_unavailable" {
		t.Fatalf("expected bad gateway, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestPhotoMutations(t *testing.T) {
	env := newTestEnv(t)

	if recorder := env.do(t, http.MethodPost, "/api/photos/2/view", nil); recorder.Code != http.StatusNoContent {
		t.Fatalf("view: expected 204, got %d", recorder.Code)
	}
	if photo, _ := env.backend.Photo(2); photo.ViewCount != 5 {
		t.Fatalf("expected view count 5, got %d", photo.ViewCount)
	}

	if recorder := env.do(t, http.MethodPost, "/api/photos/1/tags", tagRequestPayload{Tag: "  "}); recorder.Code != http.StatusBadRequest {
		t.Fatalf("empty tag: expected 400, got %d", recorder.Code)
	}
	if recorder := env.do(t, http.MethodPost, "/api/photos/1/tags", tagRequestPayload{Tag: "dusk"}); recorder.Code != http.StatusNoContent {
		t.Fatalf("add tag: expected 204, got %d", recorder.Code)
	}
	if photo, _ := env.backend.Photo(1); photo.Tags != "sea,boats,dusk" {
		t.Fatalf("unexpected tags %q", photo.Tags)
	}

	update := updateRequestPayload{Location: "Porto", Description: "Quay", Tags: []string{"river", "quay"}}
	if recorder := env.do(t, http.MethodPatch, "/api/photos/1", update); recorder.Code != http.StatusNoContent {
		t.Fatalf("update: expected 204, got %d", recorder.Code)
	}
	if photo, _ := env.backend.Photo(1); photo.Location != "Porto" || photo.Tags != "river,quay" {
		t.Fatalf("unexpected updated record %+v", photo)
	}

	if recorder := env.do(t, http.MethodPost, "/api/photos/abc/view", nil); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad id rejected, got %d", recorder.Code)
	}
}

func TestDeletePhotoRemovesRecordAndFile(t *testing.T) {
	env := newTestEnv(t)

	if recorder := env.do(t, http.MethodDelete, "/api/photos/99", nil); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown photo, got %d", recorder.Code)
	}

	if recorder := env.do(t, http.MethodDelete, "/api/photos/2", nil); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if _, ok := env.backend.Photo(2); ok {
		t.Fatalf("expected record removed")
	}
	if _, err := os.Stat(env.library.PathFor("ridge.png")); !os.IsNotExist(err) {
		t.Fatalf("expected stored file removed, got %v", err)
	}
}

func TestImportPhoto(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(t.TempDir(), "meadow.png")
	if err := imaging.Save(imaging.New(4, 4, color.NRGBA{G: 200, A: 255}), src); err != nil {
		t.Fatalf("write source: %v", err)
	}

	recorder := env.do(t, http.MethodPost, "/api/photos/import", importRequestPayload{Path: src, Tags: []string{"green"}})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	photos, _ := env.backend.ListPhotos(t.Context())
	if len(photos) != 3 || photos[2].Filename != "meadow.png" || photos[2].Tags != "green" {
		t.Fatalf("unexpected catalog after import %+v", photos)
	}

	if recorder := env.do(t, http.MethodPost, "/api/photos/import", importRequestPayload{}); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected missing path rejected, got %d", recorder.Code)
	}

	recorder = env.do(t, http.MethodPost, "/api/photos/import", importRequestPayload{Path: src, Date: "June 2024"})
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_date" {
		t.Fatalf("expected malformed date rejected, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestPreviewReturnsTransformedPNG(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/api/photos/1/preview", previewRequestPayload{Operation: "rotate=90"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("unexpected content type %q", got)
	}
	img, _, err := image.Decode(recorder.Body)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 12 {
		t.Fatalf("expected rotated 8x12 preview, got %v", img.Bounds())
	}

	stored, err := env.library.OpenImage("harbor.png")
	if err != nil || stored.Bounds().Dx() != 12 {
		t.Fatalf("expected stored image untouched, got %v (%v)", stored, err)
	}

	if recorder := env.do(t, http.MethodPost, "/api/photos/1/preview", previewRequestPayload{Operation: "crop=0,0,0,0"}); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid crop rejected, got %d", recorder.Code)
	}
}

func TestMetadataEndpoint(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodGet, "/api/metadata?path="+env.library.PathFor("harbor.png"), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if payload["filename"] != "harbor.png" || payload["location"] != "Unknown" {
		t.Fatalf("unexpected metadata %+v", payload)
	}

	if recorder := env.do(t, http.MethodGet, "/api/metadata", nil); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected missing path rejected, got %d", recorder.Code)
	}
}
