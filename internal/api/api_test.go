// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/mediaqueue/internal/events"
	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/queue"
	"github.com/ZSC714725/mediaqueue/internal/settings"
	"github.com/ZSC714725/mediaqueue/internal/store"
	"github.com/ZSC714725/mediaqueue/internal/ytdlp"
)

type fakeTools struct {
	version   string
	updateErr error
}

func (f *fakeTools) FetchMetadata(ctx context.Context, url string) (ytdlp.Metadata, error) {
	if strings.HasSuffix(url, "/private") {
		return ytdlp.Metadata{}, errors.New("ERROR: Private video. Sign in if you've been granted access")
	}
	return ytdlp.Metadata{Title: "Clip " + filepath.Base(url), DurationString: "1:05", Duration: 65}, nil
}

func (f *fakeTools) Download(ctx context.Context, req ytdlp.Request, obs ytdlp.Observer) error {
	name := filepath.Join(req.OutputFolder, req.Title+"."+string(req.Format))
	return os.WriteFile(name, []byte("media"), 0o644)
}

func (f *fakeTools) Version(ctx context.Context) (string, error) {
	if f.version == "" {
		return "", errors.New("yt-dlp not found")
	}
	return f.version, nil
}

func (f *fakeTools) Update(ctx context.Context) (string, error) {
	if f.updateErr != nil {
		return "", f.updateErr
	}
	return "yt-dlp is up to date", nil
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	queue  *queue.Scheduler
	hub    *events.Hub
	folder string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv, err := store.NewFileKV(t.TempDir())
	require.NoError(t, err)

	tools := &fakeTools{version: "2025.01.15"}
	hub := events.NewHub()
	sched := queue.New(queue.Options{
		Downloader: tools,
		Snapshots:  store.NewSnapshots(kv, nil),
		Events:     hub,
	})
	t.Cleanup(func() {
		sched.Close()
		hub.Close()
	})

	h := NewHandler(Deps{
		Queue:    sched,
		Settings: settings.NewStore(kv, nil),
		Tools:    tools,
		Events:   hub,
	})
	return &testServer{
		t:      t,
		router: NewRouter(h),
		queue:  sched,
		hub:    hub,
		folder: t.TempDir(),
	}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) enqueue(urls ...string) []*job.Job {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/jobs", queue.Request{
		URLs:         urls,
		Format:       "mp4",
		OutputFolder: s.folder,
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return decode[queue.EnqueueResult](s.t, w).Accepted
}

func TestAddAndListJobs(t *testing.T) {
	s := newTestServer(t)

	accepted := s.enqueue("https://example.com/a", "https://example.com/b", "https://example.com/a")
	require.Len(t, accepted, 2)

	w := s.do(http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[JobList](t, w)
	assert.Len(t, list.Jobs, 2)
	assert.Equal(t, 2, list.Stats.Queued)

	w = s.do(http.MethodGet, "/api/v1/jobs/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.StatusQueued, decode[job.Job](t, w).Status)
}

func TestAddJobsUsesSettingsDefaults(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/v1/settings", map[string]string{
		"downloadFolder": s.folder,
		"defaultQuality": "480",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/jobs", map[string]interface{}{"urls": []string{"https://example.com/x"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[queue.EnqueueResult](t, w)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, s.folder, res.Accepted[0].OutputFolder)
	assert.Equal(t, job.FormatMP4, res.Accepted[0].Format)
	assert.Equal(t, "480", res.Accepted[0].Resolution)
}

func TestAddJobsRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/jobs", queue.Request{
		URLs: []string{"ftp://example.com/a"}, Format: "mp4", OutputFolder: s.folder,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Detail, "ftp://example.com/a")

	w = s.do(http.MethodPost, "/api/v1/jobs", queue.Request{
		URLs: []string{"https://example.com/a"}, Format: "mkv", OutputFolder: s.folder,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/jobs", queue.Request{
		URLs: []string{"https://example.com/a"}, Format: "mp4", OutputFolder: "relative/dir",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobCommands(t *testing.T) {
	s := newTestServer(t)
	s.enqueue("https://example.com/a")

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/jobs/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/jobs/99", nil).Code)

	w := s.do(http.MethodPut, "/api/v1/jobs/1/command", CommandRequest{Command: "explode"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/v1/jobs/1/command", CommandRequest{Command: "retry"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/v1/jobs/1/state", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, "/api/v1/jobs/1/command", CommandRequest{Command: "cancel"})
	require.Equal(t, http.StatusOK, w.Code)
	canceled := decode[job.Job](t, w)
	assert.Equal(t, job.StatusCanceled, canceled.Status)
	assert.Equal(t, queue.CanceledMessage, canceled.Error)

	// retry dispatches right away
	w = s.do(http.MethodPut, "/api/v1/jobs/1/command", CommandRequest{Command: "retry"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, job.StatusCanceled, decode[job.Job](t, w).Status)
	require.Eventually(t, func() bool {
		j, err := s.queue.Get(1)
		return err == nil && j.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/api/v1/jobs/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/jobs/1", nil).Code)
}

func TestStartCompletesAndResolvesOutput(t *testing.T) {
	s := newTestServer(t)
	s.enqueue("https://example.com/song")

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/jobs/1/output", nil).Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/jobs/start", nil).Code)
	require.Eventually(t, func() bool {
		j, err := s.queue.Get(1)
		return err == nil && j.Status == job.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w := s.do(http.MethodGet, "/api/v1/jobs/1/output", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[OutputResponse](t, w)
	assert.Equal(t, filepath.Join(s.folder, "Clip song.mp4"), out.Path)

	w = s.do(http.MethodPost, "/api/v1/jobs/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[ClearResponse](t, w).Removed)
	assert.Empty(t, s.queue.List())
}

func TestMetadata(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/metadata", MetadataRequest{URL: "https://example.com/v1"})
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[ytdlp.Metadata](t, w)
	assert.Equal(t, "Clip v1", meta.Title)
	assert.Equal(t, "1:05", meta.DurationString)

	w = s.do(http.MethodPost, "/api/v1/metadata", MetadataRequest{URL: "file:///etc/passwd"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/metadata", MetadataRequest{URL: "https://example.com/private"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "This video is private.", decode[ErrorResponse](t, w).Message)
}

func TestSettingsEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, settings.Defaults(), decode[settings.Settings](t, w))

	w = s.do(http.MethodPut, "/api/v1/settings", map[string]string{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/v1/settings", map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dark", decode[settings.Settings](t, w).Theme)
}

func TestToolsAndPipelineWithoutFFmpeg(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/tools", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tools := decode[ToolsResponse](t, w)
	assert.True(t, tools.YTDLP.Available)
	assert.Equal(t, "2025.01.15", tools.YTDLP.Version)
	assert.False(t, tools.FFmpeg.Available)
	assert.Nil(t, tools.Skills)

	w = s.do(http.MethodPost, "/api/v1/tools/ytdlp/update", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "yt-dlp is up to date", decode[UpdateResponse](t, w).Message)

	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/v1/pipeline", map[string]interface{}{}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/v1/pipeline/x", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/v1/tools/ffmpeg/reload", nil).Code)
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)
	s.enqueue("https://example.com/first")

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]interface{} {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	msg := read()
	assert.Equal(t, events.TypeJobUpdated, msg["type"])
	assert.Equal(t, "https://example.com/first", msg["data"].(map[string]interface{})["url"])

	require.Eventually(t, func() bool { return s.hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.queue.Delete(1))

	msg = read()
	assert.Equal(t, events.TypeJobRemoved, msg["type"])
	assert.EqualValues(t, 1, msg["data"].(map[string]interface{})["id"])
}
