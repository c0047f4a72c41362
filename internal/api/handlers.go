// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/mediaqueue/internal/events"
	"github.com/ZSC714725/mediaqueue/internal/ffmpeg"
	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/pipeline"
	"github.com/ZSC714725/mediaqueue/internal/process"
	"github.com/ZSC714725/mediaqueue/internal/queue"
	"github.com/ZSC714725/mediaqueue/internal/settings"
	"github.com/ZSC714725/mediaqueue/internal/ytdlp"
)

// Tools is the downloader surface used outside the queue.
type Tools interface {
	FetchMetadata(ctx context.Context, url string) (ytdlp.Metadata, error)
	Version(ctx context.Context) (string, error)
	Update(ctx context.Context) (string, error)
}

// Deps wires a Handler. Pipeline and FFmpeg are nil when ffmpeg is not
// installed.
type Deps struct {
	Queue    *queue.Scheduler
	Pipeline *pipeline.Service
	Settings *settings.Store
	Tools    Tools
	FFmpeg   ffmpeg.FFmpeg
	Policy   *queue.Policy
	Events   *events.Hub
	Logger   logger.Logger
}

// Handler holds dependencies
type Handler struct {
	queue    *queue.Scheduler
	pipeline *pipeline.Service
	settings *settings.Store
	tools    Tools
	ffmpeg   ffmpeg.FFmpeg
	policy   *queue.Policy
	hub      *events.Hub
	logger   logger.Logger
}

// NewHandler creates API handler
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &Handler{
		queue:    d.Queue,
		pipeline: d.Pipeline,
		settings: d.Settings,
		tools:    d.Tools,
		ffmpeg:   d.FFmpeg,
		policy:   d.Policy,
		hub:      d.Events,
		logger:   d.Logger,
	}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// queueErr maps scheduler errors onto status codes.
func queueErr(c *gin.Context, err error) {
	var verr *queue.ValidationError
	switch {
	case errors.As(err, &verr):
		errResp(c, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, queue.ErrNoValidURLs):
		errResp(c, http.StatusBadRequest, "Invalid URL", err.Error())
	case errors.Is(err, queue.ErrNotFound):
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
	case errors.Is(err, queue.ErrJobActive),
		errors.Is(err, queue.ErrNotRetryable),
		errors.Is(err, queue.ErrNotActive):
		errResp(c, http.StatusConflict, "Command failed", err.Error())
	case errors.Is(err, queue.ErrClosed):
		errResp(c, http.StatusServiceUnavailable, "Shutting down", err.Error())
	default:
		errResp(c, http.StatusInternalServerError, "Internal error", err.Error())
	}
}

func jobID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		errResp(c, http.StatusBadRequest, "Invalid job ID", c.Param("id"))
		return 0, false
	}
	return id, true
}

// ListJobs GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, JobList{Jobs: h.queue.List(), Stats: h.queue.Stats()})
}

// AddJobs POST /api/v1/jobs
func (h *Handler) AddJobs(c *gin.Context) {
	var req queue.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	// 未指定的字段使用用户偏好
	prefs, err := h.settings.Load(c.Request.Context())
	if err != nil {
		errResp(c, http.StatusInternalServerError, "Load settings failed", err.Error())
		return
	}
	if strings.TrimSpace(req.OutputFolder) == "" {
		req.OutputFolder = prefs.DownloadFolder
	}
	if strings.TrimSpace(req.Format) == "" {
		req.Format = prefs.DefaultFormat
	}
	if strings.TrimSpace(req.Resolution) == "" && req.Format == string(job.FormatMP4) {
		req.Resolution = prefs.DefaultQuality
	}

	res, err := h.queue.Enqueue(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, queue.ErrNoValidURLs) && len(res.Invalid) > 0 {
			errResp(c, http.StatusBadRequest, "Invalid URL", strings.Join(res.Invalid, ", "))
			return
		}
		queueErr(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetJob GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	j, err := h.queue.Get(id)
	if err != nil {
		queueErr(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

// DeleteJob DELETE /api/v1/jobs/:id
func (h *Handler) DeleteJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := h.queue.Delete(id); err != nil {
		queueErr(c, err)
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// Command PUT /api/v1/jobs/:id/command
func (h *Handler) Command(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	var err error
	switch req.Command {
	case "cancel":
		err = h.queue.Cancel(id)
	case "retry":
		err = h.queue.Retry(id)
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: cancel, retry")
		return
	}
	if err != nil {
		queueErr(c, err)
		return
	}

	j, err := h.queue.Get(id)
	if err != nil {
		queueErr(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

// StartJobs POST /api/v1/jobs/start
func (h *Handler) StartJobs(c *gin.Context) {
	h.queue.ScheduleNext()
	c.JSON(http.StatusOK, h.queue.Stats())
}

// ClearCompleted POST /api/v1/jobs/clear
func (h *Handler) ClearCompleted(c *gin.Context) {
	c.JSON(http.StatusOK, ClearResponse{Removed: h.queue.ClearCompleted()})
}

// GetOutput GET /api/v1/jobs/:id/output
func (h *Handler) GetOutput(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	j, err := h.queue.Get(id)
	if err != nil {
		queueErr(c, err)
		return
	}

	if j.OutputPath != "" {
		if _, err := os.Stat(j.OutputPath); err == nil {
			c.JSON(http.StatusOK, OutputResponse{ID: j.ID, Path: j.OutputPath})
			return
		}
	}
	if j.Title != "" {
		name := queue.FitTitle(j.Title, j.OutputFolder, string(j.Format), j.ID, 0)
		if path, found := queue.ResolveOutput(j.OutputFolder, name, j.Format, j.CreatedAt); found {
			c.JSON(http.StatusOK, OutputResponse{ID: j.ID, Path: path})
			return
		}
	}
	errResp(c, http.StatusNotFound, "Output not found", queue.MissingOutputMessage)
}

// GetState GET /api/v1/jobs/:id/state
func (h *Handler) GetState(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	state, err := h.queue.Runtime(id)
	if err != nil {
		queueErr(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Metadata POST /api/v1/metadata
func (h *Handler) Metadata(c *gin.Context) {
	var req MetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	url := strings.TrimSpace(req.URL)
	if err := h.policy.Check(url); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid URL", err.Error())
		return
	}

	meta, err := h.tools.FetchMetadata(c.Request.Context(), url)
	if err != nil {
		h.logger.Warn("metadata %s: %v", url, err)
		errResp(c, http.StatusBadGateway, queue.FriendlyError(process.Diagnostic(err)), err.Error())
		return
	}
	c.JSON(http.StatusOK, meta)
}

// StartPipeline POST /api/v1/pipeline
func (h *Handler) StartPipeline(c *gin.Context) {
	if h.pipeline == nil {
		errResp(c, http.StatusServiceUnavailable, "FFmpeg not available", ffmpeg.ErrBinaryNotFound.Error())
		return
	}

	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	run, err := h.pipeline.Start(req)
	if err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			errResp(c, http.StatusConflict, "Pipeline busy", err.Error())
			return
		}
		errResp(c, http.StatusBadRequest, pipeline.FriendlyError(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetPipeline GET /api/v1/pipeline/:id
func (h *Handler) GetPipeline(c *gin.Context) {
	if h.pipeline == nil {
		errResp(c, http.StatusServiceUnavailable, "FFmpeg not available", ffmpeg.ErrBinaryNotFound.Error())
		return
	}
	run, err := h.pipeline.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown run ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, run)
}

// CancelPipeline DELETE /api/v1/pipeline/:id
func (h *Handler) CancelPipeline(c *gin.Context) {
	if h.pipeline == nil {
		errResp(c, http.StatusServiceUnavailable, "FFmpeg not available", ffmpeg.ErrBinaryNotFound.Error())
		return
	}
	if err := h.pipeline.Cancel(c.Param("id")); err != nil {
		errResp(c, http.StatusNotFound, "Unknown run ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// GetSettings GET /api/v1/settings
func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.settings.Load(c.Request.Context())
	if err != nil {
		errResp(c, http.StatusInternalServerError, "Load settings failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSettings PUT /api/v1/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	s, err := h.settings.Update(c.Request.Context(), patch)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidFolder) ||
			errors.Is(err, settings.ErrInvalidTheme) ||
			errors.Is(err, settings.ErrInvalidQuality) ||
			errors.Is(err, job.ErrInvalidFormat) {
			errResp(c, http.StatusBadRequest, "Invalid settings", err.Error())
			return
		}
		errResp(c, http.StatusInternalServerError, "Save settings failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, s)
}
