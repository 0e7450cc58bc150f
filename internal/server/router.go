package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/batch"
	"github.com/MarcoPoloResearchLab/gallery/internal/catalog"
	"github.com/MarcoPoloResearchLab/gallery/internal/journal"
	"github.com/MarcoPoloResearchLab/gallery/internal/library"
	"github.com/MarcoPoloResearchLab/gallery/internal/transform"
)

const defaultHeartbeatInterval = 15 * time.Second

var (
	errMissingLibrary  = errors.New("library dependency required")
	errMissingExecutor = errors.New("batch executor dependency required")
)

type BatchRunner interface {
	Run(ctx context.Context, photos []catalog.PhotoRecord, ops []batch.Operation, progress batch.ProgressFunc) (batch.Result, error)
}

type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]journal.BatchRun, error)
}

type Dependencies struct {
	Library           *library.Library
	Executor          BatchRunner
	Realtime          *RealtimeDispatcher
	History           HistoryReader
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Library == nil {
		return nil, errMissingLibrary
	}
	if deps.Executor == nil {
		return nil, errMissingExecutor
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		library:   deps.Library,
		backend:   deps.Library.Backend(),
		executor:  deps.Executor,
		realtime:  realtime,
		history:   deps.History,
		logger:    logger,
		heartbeat: heartbeat,
	}

	api := router.Group("/api")
	api.GET("/photos", handler.handleListPhotos)
	api.POST("/photos/import", handler.handleImportPhoto)
	api.POST("/photos/:id/view", handler.handleViewPhoto)
	api.POST("/photos/:id/tags", handler.handleAddTag)
	api.PATCH("/photos/:id", handler.handleUpdatePhoto)
	api.DELETE("/photos/:id", handler.handleDeletePhoto)
	api.POST("/photos/:id/preview", handler.handlePreview)
	api.GET("/metadata", handler.handleMetadata)
	api.POST("/batch", handler.handleRunBatch)
	api.GET("/batch/stream", handler.handleBatchStream)
	api.GET("/batch/history", handler.handleBatchHistory)

	return router, nil
}

// corsMiddleware admits cross-origin browsers only from the configured origins.
// With none configured, requests carrying a foreign Origin header are refused.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return sameOriginMiddleware()
	}
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func sameOriginMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		parsed, err := url.Parse(origin)
		if err != nil || !strings.EqualFold(parsed.Host, c.Request.Host) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin_not_allowed"})
			return
		}
		c.Next()
	}
}

type httpHandler struct {
	library   *library.Library
	backend   catalog.Backend
	executor  BatchRunner
	realtime  *RealtimeDispatcher
	history   HistoryReader
	logger    *zap.Logger
	heartbeat time.Duration
}

type photoListResponse struct {
	Photos []catalog.PhotoRecord `json:"photos"`
}

func (h *httpHandler) handleListPhotos(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		photos []catalog.PhotoRecord
		err    error
	)
	switch {
	case c.Query("q") != "":
		kind := catalog.SearchKindForLabel(c.Query("search_kind"))
		photos, err = h.backend.Search(ctx, kind, c.Query("q"))
	case c.Query("sort") != "":
		kind, ok := catalog.ParseSortKind(c.Query("sort"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sort"})
			return
		}
		ascending := true
		if raw := c.Query("ascending"); raw != "" {
			parsed, parseErr := strconv.ParseBool(raw)
			if parseErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_ascending"})
				return
			}
			ascending = parsed
		}
		photos, err = h.backend.Sort(ctx, kind, ascending)
	default:
		photos, err = h.backend.ListPhotos(ctx)
	}
	if err != nil {
		h.respondError(c, "list_photos", err)
		return
	}
	c.JSON(http.StatusOK, photoListResponse{Photos: photos})
}

type importRequestPayload struct {
	Path        string   `json:"path"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Location    string   `json:"location"`
	Date        string   `json:"date"`
}

func (h *httpHandler) handleImportPhoto(c *gin.Context) {
	var request importRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Path) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	record, err := h.library.Import(c.Request.Context(), request.Path, library.Overrides{
		Description: request.Description,
		Tags:        request.Tags,
		Location:    request.Location,
		DateTime:    request.Date,
	})
	if errors.Is(err, library.ErrInvalidDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	if err != nil {
		h.respondError(c, "import_photo", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleViewPhoto(c *gin.Context) {
	id, ok := photoID(c)
	if !ok {
		return
	}
	if err := h.library.View(c.Request.Context(), catalog.PhotoRecord{ID: id}); err != nil {
		h.respondError(c, "view_photo", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type tagRequestPayload struct {
	Tag string `json:"tag"`
}

func (h *httpHandler) handleAddTag(c *gin.Context) {
	id, ok := photoID(c)
	if !ok {
		return
	}
	var request tagRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Tag) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_tag"})
		return
	}
	if err := h.backend.AddTag(c.Request.Context(), id, strings.TrimSpace(request.Tag)); err != nil {
		h.respondError(c, "add_tag", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateRequestPayload struct {
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (h *httpHandler) handleUpdatePhoto(c *gin.Context) {
	id, ok := photoID(c)
	if !ok {
		return
	}
	var request updateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	update := catalog.PhotoUpdate{
		Location:    request.Location,
		Description: request.Description,
		Tags:        catalog.JoinTags(request.Tags),
	}
	if err := h.backend.UpdatePhoto(c.Request.Context(), id, update); err != nil {
		h.respondError(c, "update_photo", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeletePhoto(c *gin.Context) {
	photo, ok := h.lookupPhoto(c)
	if !ok {
		return
	}
	if err := h.library.Delete(c.Request.Context(), photo); err != nil {
		h.respondError(c, "delete_photo", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type previewRequestPayload struct {
	Operation string `json:"operation"`
}

func (h *httpHandler) handlePreview(c *gin.Context) {
	photo, ok := h.lookupPhoto(c)
	if !ok {
		return
	}
	var request previewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	op, err := transform.Parse(request.Operation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_operation"})
		return
	}
	img, err := h.library.OpenImage(photo.Filename)
	if err != nil {
		h.logger.Warn("preview decode failed", zap.Int64("photo_id", photo.ID), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "decode_failed"})
		return
	}
	out, err := transform.Apply(img, op)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "transform_failed"})
		return
	}
	var encoded bytes.Buffer
	if err := transform.Encode(&encoded, out, imaging.PNG); err != nil {
		h.logger.Error("preview encode failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode_failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", encoded.Bytes())
}

func (h *httpHandler) handleMetadata(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_path"})
		return
	}
	c.JSON(http.StatusOK, h.library.Metadata(path))
}

type batchRequestPayload struct {
	PhotoIDs   []int64  `json:"photo_ids"`
	Operations []string `json:"operations"`
}

type batchResponsePayload struct {
	JobID     string                `json:"job_id"`
	Total     int                   `json:"total"`
	Attempted int                   `json:"attempted"`
	Failed    int                   `json:"failed"`
	Errors    []batchFailurePayload `json:"errors"`
}

type batchFailurePayload struct {
	PhotoID   int64  `json:"photo_id"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

type progressEventPayload struct {
	JobID     string `json:"job_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	PhotoID   int64  `json:"photo_id"`
	Operation string `json:"operation"`
	Error     string `json:"error,omitempty"`
}

func (h *httpHandler) handleRunBatch(c *gin.Context) {
	var request batchRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ops := make([]batch.Operation, 0, len(request.Operations))
	for _, raw := range request.Operations {
		op, err := batch.ParseSpec(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_operation", "operation": raw})
			return
		}
		ops = append(ops, op)
	}

	ctx := c.Request.Context()
	all, err := h.backend.ListPhotos(ctx)
	if err != nil {
		h.respondError(c, "run_batch", err)
		return
	}
	photos, missing := selectPhotos(all, request.PhotoIDs)
	if missing {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo_not_found"})
		return
	}

	result, err := h.executor.Run(ctx, photos, ops, func(progress batch.Progress) {
		payload := progressEventPayload{
			JobID:     progress.JobID,
			Completed: progress.Completed,
			Total:     progress.Total,
			PhotoID:   progress.PhotoID,
			Operation: progress.Operation,
		}
		if progress.Err != nil {
			payload.Error = progress.Err.Error()
		}
		h.realtime.Publish(RealtimeMessage{Topic: TopicBatch, EventType: RealtimeEventBatchProgress, Payload: payload})
	})
	switch {
	case errors.Is(err, batch.ErrInvalidJob):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_job"})
		return
	case errors.Is(err, batch.ErrBatchRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "batch_running"})
		return
	case err != nil:
		h.logger.Error("batch run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch_failed"})
		return
	}

	response := batchResponsePayload{
		JobID:     result.JobID,
		Total:     result.Total,
		Attempted: result.Attempted,
		Failed:    result.Failed,
		Errors:    make([]batchFailurePayload, 0, len(result.Errors)),
	}
	for _, stepErr := range result.Errors {
		response.Errors = append(response.Errors, batchFailurePayload{
			PhotoID:   stepErr.PhotoID,
			Operation: stepErr.Operation,
			Error:     stepErr.Err.Error(),
		})
	}
	h.realtime.Publish(RealtimeMessage{Topic: TopicBatch, EventType: RealtimeEventBatchFinished, Payload: response})
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleBatchStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, TopicBatch)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventReady, gin.H{"source": realtimeSourceBackend})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message.Payload)
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "ts": tick.UTC().Unix()})
			return true
		}
	})
}

type historyRunPayload struct {
	JobID      string                `json:"job_id"`
	StartedAt  int64                 `json:"started_at_s"`
	FinishedAt int64                 `json:"finished_at_s"`
	Total      int                   `json:"total"`
	Attempted  int                   `json:"attempted"`
	Failed     int                   `json:"failed"`
	Failures   []batchFailurePayload `json:"failures"`
}

func (h *httpHandler) handleBatchHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history_disabled"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}
	runs, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read batch history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_failed"})
		return
	}
	payload := make([]historyRunPayload, 0, len(runs))
	for _, run := range runs {
		entry := historyRunPayload{
			JobID:      run.JobID,
			StartedAt:  run.StartedAtSeconds,
			FinishedAt: run.FinishedAtSeconds,
			Total:      run.TotalSteps,
			Attempted:  run.AttemptedSteps,
			Failed:     run.FailedSteps,
			Failures:   make([]batchFailurePayload, 0, len(run.Failures)),
		}
		for _, failure := range run.Failures {
			entry.Failures = append(entry.Failures, batchFailurePayload{
				PhotoID:   failure.PhotoID,
				Operation: failure.Operation,
				Error:     failure.Detail,
			})
		}
		payload = append(payload, entry)
	}
	c.JSON(http.StatusOK, gin.H{"runs": payload})
}

func (h *httpHandler) lookupPhoto(c *gin.Context) (catalog.PhotoRecord, bool) {
	id, ok := photoID(c)
	if !ok {
		return catalog.PhotoRecord{}, false
	}
	photo, found, err := h.library.Find(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "lookup_photo", err)
		return catalog.PhotoRecord{}, false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo_not_found"})
		return catalog.PhotoRecord{}, false
	}
	return photo, true
}

func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	if catalog.IsBridgeError(err) {
		h.logger.Warn("catalog backend failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog_unavailable"})
		return
	}
	h.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": operation + "_failed"})
}

func photoID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_photo_id"})
		return 0, false
	}
	return id, true
}

// selectPhotos keeps the requested order; missing is true when any id is unknown.
func selectPhotos(all []catalog.PhotoRecord, ids []int64) ([]catalog.PhotoRecord, bool) {
	byID := make(map[int64]catalog.PhotoRecord, len(all))
	for _, photo := range all {
		byID[photo.ID] = photo
	}
	selected := make([]catalog.PhotoRecord, 0, len(ids))
	for _, id := range ids {
		photo, ok := byID[id]
		if !ok {
			return nil, true
		}
		selected = append(selected, photo)
	}
	return selected, false
}
