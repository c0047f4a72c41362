// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package queue owns the download jobs: admission, dispatch under a
// concurrency cap, cancellation, rate-limit retries and persistence.

package queue

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/mediaqueue/internal/events"
	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/process"
	"github.com/ZSC714725/mediaqueue/internal/progress"
	"github.com/ZSC714725/mediaqueue/internal/retry"
	"github.com/ZSC714725/mediaqueue/internal/ytdlp"
)

// Downloader is the download tool as seen by the scheduler.
type Downloader interface {
	FetchMetadata(ctx context.Context, url string) (ytdlp.Metadata, error)
	Download(ctx context.Context, req ytdlp.Request, obs ytdlp.Observer) error
}

// SnapshotStore persists the whole job list.
type SnapshotStore interface {
	Load(ctx context.Context) ([]*job.Job, error)
	Save(ctx context.Context, jobs []*job.Job) error
}

// Options for a Scheduler
type Options struct {
	Concurrency int
	// Autostart dispatches right after Enqueue.
	Autostart  bool
	Policy     *Policy
	Retry      *retry.Controller
	Downloader Downloader
	Snapshots  SnapshotStore
	Events     events.Publisher
	Opener     FolderOpener
	Logger     logger.Logger

	// PathLimit overrides MaxPath when positive.
	PathLimit int
	Now       func() time.Time
}

// Request submits one or more URLs sharing the same intent.
type Request struct {
	URLs         []string `json:"urls"`
	Format       string   `json:"format"`
	Resolution   string   `json:"resolution"`
	Bitrate      string   `json:"mp3Bitrate"`
	OutputFolder string   `json:"outputFolder"`
	Subtitles    bool     `json:"downloadSubtitles"`
	OpenFolder   bool     `json:"openFolderWhenFinished"`
}

// EnqueueResult reports what happened to each submitted URL.
type EnqueueResult struct {
	Accepted   []*job.Job `json:"accepted"`
	Duplicates int        `json:"duplicates"`
	Invalid    []string   `json:"invalid"`
}

// Stats counts jobs per status.
type Stats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// RuntimeState describes the process behind an active job.
type RuntimeState struct {
	Status process.Status `json:"status"`
	Usage  process.Usage  `json:"usage"`
}

type activeRun struct {
	cancel          context.CancelFunc
	cancelRequested bool
	handle          *process.Handle
	started         time.Time
}

// Scheduler owns every job. All methods are safe for concurrent use.
type Scheduler struct {
	concurrency int
	autostart   bool
	policy      *Policy
	retry       *retry.Controller
	downloader  Downloader
	snapshots   SnapshotStore
	events      events.Publisher
	opener      FolderOpener
	logger      logger.Logger
	pathLimit   int
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    []*job.Job // most recent first
	byID    map[int64]*job.Job
	seq     map[int64]uint64 // order of entry into queued
	nextSeq uint64
	nextID  int64
	runs    map[int64]*activeRun
	opened  map[int64]bool
	waiting map[int64]uint64 // countdown token per failed job awaiting a retry
	nextTok uint64
	closed  bool
}

// New creates a Scheduler with an empty job list. Call Restore to load the
// persisted list.
func New(opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Retry == nil {
		opts.Retry = retry.New(retry.Options{})
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		concurrency: opts.Concurrency,
		autostart:   opts.Autostart,
		policy:      opts.Policy,
		retry:       opts.Retry,
		downloader:  opts.Downloader,
		snapshots:   opts.Snapshots,
		events:      opts.Events,
		opener:      opts.Opener,
		logger:      opts.Logger,
		pathLimit:   opts.PathLimit,
		now:         opts.Now,
		ctx:         ctx,
		cancel:      cancel,
		byID:        make(map[int64]*job.Job),
		seq:         make(map[int64]uint64),
		nextID:      1,
		runs:        make(map[int64]*activeRun),
		opened:      make(map[int64]bool),
		waiting:     make(map[int64]uint64),
	}
}

// Restore loads the persisted job list, replacing the current one. Jobs
// that were running when the last session ended come back queued.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	jobs, err := s.snapshots.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = jobs
	s.byID = make(map[int64]*job.Job, len(jobs))
	s.seq = make(map[int64]uint64, len(jobs))
	s.waiting = make(map[int64]uint64)
	for _, j := range jobs {
		s.byID[j.ID] = j
		if j.ID >= s.nextID {
			s.nextID = j.ID + 1
		}
	}
	// oldest first so FIFO dispatch survives a restart
	for i := len(jobs) - 1; i >= 0; i-- {
		if jobs[i].Status == job.StatusQueued {
			s.markQueuedLocked(jobs[i])
		}
	}
	s.logger.Info("restored %d job(s)", len(jobs))
	s.persistLocked()
	return nil
}

// Enqueue validates req and adds one job per new URL.
func (s *Scheduler) Enqueue(ctx context.Context, req Request) (EnqueueResult, error) {
	var res EnqueueResult

	format, err := job.ParseFormat(req.Format)
	if err != nil {
		return res, invalid("format", "%q must be mp3 or mp4", req.Format)
	}
	resolution := strings.TrimSpace(req.Resolution)
	bitrate := strings.TrimSpace(req.Bitrate)
	switch format {
	case job.FormatMP4:
		if resolution == "" {
			resolution = job.DefaultResolution
		}
		if !job.ValidResolution(resolution) {
			return res, invalid("resolution", "%q is not one of %s", resolution, strings.Join(job.Resolutions(), ", "))
		}
		if !job.ValidBitrate(bitrate) {
			bitrate = job.DefaultBitrate
		}
	case job.FormatMP3:
		if bitrate == "" {
			bitrate = job.DefaultBitrate
		}
		if !job.ValidBitrate(bitrate) {
			return res, invalid("mp3Bitrate", "%q is not one of %s", bitrate, strings.Join(job.Bitrates(), ", "))
		}
		if !job.ValidResolution(resolution) {
			resolution = job.DefaultResolution
		}
	}

	folder := strings.TrimSpace(req.OutputFolder)
	if err := checkFolder(folder); err != nil {
		return res, err
	}

	var urls []string
	for _, raw := range req.URLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if err := s.policy.Check(raw); err != nil {
			res.Invalid = append(res.Invalid, raw)
			continue
		}
		urls = append(urls, raw)
	}
	if len(urls) == 0 {
		return res, ErrNoValidURLs
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return res, ErrClosed
	}

	keys := make(map[string]bool, len(s.jobs)+len(urls))
	for _, j := range s.jobs {
		keys[j.Key()] = true
	}

	now := s.now()
	for _, u := range urls {
		j := &job.Job{
			URL:          u,
			Format:       format,
			Resolution:   resolution,
			Bitrate:      bitrate,
			OutputFolder: folder,
			Subtitles:    req.Subtitles,
			OpenFolder:   req.OpenFolder,
			Status:       job.StatusQueued,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		key := j.Key()
		if keys[key] {
			res.Duplicates++
			continue
		}
		keys[key] = true

		j.ID = s.nextID
		s.nextID++
		s.jobs = append([]*job.Job{j}, s.jobs...)
		s.byID[j.ID] = j
		s.markQueuedLocked(j)
		res.Accepted = append(res.Accepted, j.Clone())
	}

	if len(res.Accepted) > 0 {
		s.persistLocked()
		for _, j := range res.Accepted {
			s.publishLocked(j)
		}
		s.logger.Info("queued %d job(s), %d duplicate(s), %d invalid", len(res.Accepted), res.Duplicates, len(res.Invalid))
	}
	if s.autostart {
		s.scheduleLocked()
	}
	s.mu.Unlock()

	return res, nil
}

func checkFolder(folder string) error {
	if folder == "" {
		return invalid("outputFolder", "a download folder is required")
	}
	if !filepath.IsAbs(folder) {
		return invalid("outputFolder", "%q must be an absolute path", folder)
	}
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return invalid("outputFolder", "%q is not an existing directory", folder)
	}
	return nil
}

// ScheduleNext starts queued jobs, oldest first, while fewer than the
// concurrency cap are active.
func (s *Scheduler) ScheduleNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
}

func (s *Scheduler) scheduleLocked() {
	if s.closed || s.downloader == nil {
		return
	}
	for len(s.runs) < s.concurrency {
		next := s.nextQueuedLocked()
		if next == nil {
			return
		}
		s.startLocked(next)
	}
}

func (s *Scheduler) nextQueuedLocked() *job.Job {
	var best *job.Job
	for _, j := range s.jobs {
		if j.Status != job.StatusQueued {
			continue
		}
		if best == nil || s.seq[j.ID] < s.seq[best.ID] {
			best = j
		}
	}
	return best
}

func (s *Scheduler) startLocked(j *job.Job) {
	if err := j.Transition(job.StatusFetching, s.now()); err != nil {
		s.logger.Error("job %d: %v", j.ID, err)
		return
	}
	j.Error = ""
	s.retry.Clear(j.ID)

	ctx, cancel := context.WithCancel(s.ctx)
	run := &activeRun{cancel: cancel, started: s.now()}
	s.runs[j.ID] = run
	s.commitLocked(j)

	s.wg.Add(1)
	go s.runJob(ctx, j.ID, run)
}

func (s *Scheduler) runJob(ctx context.Context, id int64, run *activeRun) {
	defer s.wg.Done()
	defer run.cancel()

	s.mu.Lock()
	snapshot := s.byID[id].Clone()
	s.mu.Unlock()

	title := snapshot.URL
	meta, err := s.downloader.FetchMetadata(ctx, snapshot.URL)
	if err != nil {
		s.logger.Warn("job %d: metadata lookup failed, using url as title: %v", id, err)
	} else if meta.Title != "" {
		title = meta.Title
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	j := s.byID[id]
	j.Title = title
	if run.cancelRequested {
		s.cancelLocked(j)
		s.finishLocked(id)
		s.mu.Unlock()
		return
	}
	if err := j.Transition(job.StatusDownloading, s.now()); err != nil {
		s.logger.Error("job %d: %v", id, err)
		s.finishLocked(id)
		s.mu.Unlock()
		return
	}
	req := ytdlp.Request{
		URL:          j.URL,
		OutputFolder: j.OutputFolder,
		Format:       j.Format,
		Resolution:   j.Resolution,
		Bitrate:      j.Bitrate,
		Subtitles:    j.Subtitles,
		Title:        FitTitle(title, j.OutputFolder, string(j.Format), id, s.pathLimit),
	}
	s.commitLocked(j)
	s.mu.Unlock()

	s.logger.Info("job %d: downloading %s as %q", id, req.URL, req.Title)
	err = s.downloader.Download(ctx, req, ytdlp.Observer{
		Started: func(h *process.Handle) {
			s.mu.Lock()
			run.handle = h
			s.mu.Unlock()
		},
		Progress: func(ev progress.Event) {
			s.applyProgress(id, ev)
		},
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// left active on purpose, the next Restore demotes it
		return
	}
	j = s.byID[id]
	switch {
	case run.cancelRequested:
		s.cancelLocked(j)
	case err == nil:
		s.completeLocked(j, req.Title, run.started)
	default:
		s.failLocked(j, process.Diagnostic(err))
	}
	s.finishLocked(id)
}

func (s *Scheduler) applyProgress(id int64, ev progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok || !j.Status.IsActive() {
		return
	}

	changed := false
	if ev.Phase == progress.PhaseProcessing && j.Status == job.StatusDownloading {
		if err := j.Transition(job.StatusProcessing, s.now()); err == nil {
			changed = true
		}
	}
	if j.SetPercent(ev.Percent) {
		changed = true
	}
	if ev.TransferredSize != "" && ev.TransferredSize != j.Size {
		j.Size = ev.TransferredSize
		changed = true
	}
	if changed {
		j.UpdatedAt = s.now()
		s.commitLocked(j)
	}
}

func (s *Scheduler) completeLocked(j *job.Job, name string, started time.Time) {
	path, ok := ResolveOutput(j.OutputFolder, name, j.Format, started)
	if !ok {
		s.logger.Warn("job %d: no output file found in %s", j.ID, j.OutputFolder)
		s.retry.Reset(j.ID)
		if err := j.Transition(job.StatusFailed, s.now()); err == nil {
			j.Error = MissingOutputMessage
			s.commitLocked(j)
		}
		return
	}

	if err := j.Transition(job.StatusCompleted, s.now()); err != nil {
		s.logger.Error("job %d: %v", j.ID, err)
		return
	}
	j.Percent = 100
	j.OutputPath = path
	j.Error = ""
	s.retry.Reset(j.ID)
	s.commitLocked(j)
	s.logger.Info("job %d: completed %s", j.ID, path)

	if j.OpenFolder && s.opener != nil && !s.opened[j.ID] {
		s.opened[j.ID] = true
		folder := j.OutputFolder
		go func() {
			if err := s.opener.Open(folder); err != nil {
				s.logger.Warn("open folder %s: %v", folder, err)
			}
		}()
	}
}

func (s *Scheduler) failLocked(j *job.Job, diagnostic string) {
	if err := j.Transition(job.StatusFailed, s.now()); err != nil {
		s.logger.Error("job %d: %v", j.ID, err)
		return
	}

	if !retry.IsRateLimited(diagnostic) {
		s.retry.Reset(j.ID)
		j.Error = FriendlyError(diagnostic)
		s.logger.Warn("job %d: failed: %s", j.ID, diagnostic)
		s.commitLocked(j)
		return
	}

	attempt, delay, ok := s.retry.Next(j.ID)
	if !ok {
		j.Error = retry.FinalMessage(s.retry.Ceiling())
		s.logger.Warn("job %d: rate limited, giving up after %d retries", j.ID, s.retry.Ceiling())
		s.commitLocked(j)
		return
	}

	j.Error = retry.CountdownMessage(s.retry.Ticks(delay), attempt, s.retry.Ceiling())
	s.logger.Info("job %d: rate limited, retry %d/%d in %s", j.ID, attempt, s.retry.Ceiling(), delay)
	s.commitLocked(j)

	// the countdown goroutine drops its own entry before firing, so the
	// token under s.mu decides whether the fire still owns the job
	id := j.ID
	s.nextTok++
	tok := s.nextTok
	s.waiting[id] = tok
	s.retry.Schedule(id, delay, func(remaining int) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.waiting[id] != tok {
			return
		}
		if j, ok := s.byID[id]; ok && j.Status == job.StatusFailed {
			j.Error = retry.CountdownMessage(remaining, attempt, s.retry.Ceiling())
			s.commitLocked(j)
		}
	}, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.waiting[id] != tok {
			return
		}
		delete(s.waiting, id)
		j, ok := s.byID[id]
		if !ok || s.closed || j.Status != job.StatusFailed {
			return
		}
		s.requeueLocked(j)
		s.scheduleLocked()
	})
}

func (s *Scheduler) cancelLocked(j *job.Job) {
	if err := j.Transition(job.StatusCanceled, s.now()); err != nil {
		s.logger.Error("job %d: %v", j.ID, err)
		return
	}
	j.Percent = 0
	j.Size = ""
	j.Error = CanceledMessage
	delete(s.waiting, j.ID)
	s.retry.Reset(j.ID)
	s.commitLocked(j)
	s.logger.Info("job %d: canceled", j.ID)
}

// finishLocked releases the concurrency slot of id and fills it.
func (s *Scheduler) finishLocked(id int64) {
	delete(s.runs, id)
	s.scheduleLocked()
}

func (s *Scheduler) requeueLocked(j *job.Job) {
	if err := j.Transition(job.StatusQueued, s.now()); err != nil {
		s.logger.Error("job %d: %v", j.ID, err)
		return
	}
	j.Percent = 0
	j.Size = ""
	j.Error = ""
	j.OutputPath = ""
	delete(s.waiting, j.ID)
	s.markQueuedLocked(j)
	s.commitLocked(j)
}

func (s *Scheduler) markQueuedLocked(j *job.Job) {
	s.nextSeq++
	s.seq[j.ID] = s.nextSeq
}

// Cancel stops a job. Canceling a completed or canceled job does nothing.
func (s *Scheduler) Cancel(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelIDLocked(id)
}

func (s *Scheduler) cancelIDLocked(id int64) error {
	j, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	switch j.Status {
	case job.StatusQueued:
		s.cancelLocked(j)
	case job.StatusFetching:
		run := s.runs[id]
		if run == nil || run.cancelRequested {
			return nil
		}
		run.cancelRequested = true
		j.Error = CancelRequested
		s.commitLocked(j)
	case job.StatusDownloading, job.StatusProcessing:
		run := s.runs[id]
		if run == nil || run.cancelRequested {
			return nil
		}
		run.cancelRequested = true
		j.Error = CancelRequested
		s.commitLocked(j)
		run.cancel()
	case job.StatusFailed:
		if _, ok := s.waiting[id]; ok {
			s.cancelLocked(j)
		}
	}
	return nil
}

// Retry puts a failed or canceled job back in the queue.
func (s *Scheduler) Retry(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !j.Status.IsRetryable() {
		return ErrNotRetryable
	}
	s.retry.Clear(id)
	s.requeueLocked(j)
	s.scheduleLocked()
	return nil
}

// Delete removes a job that is not running.
func (s *Scheduler) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status.IsActive() {
		return ErrJobActive
	}
	s.removeLocked(func(j *job.Job) bool { return j.ID == id })
	s.persistLocked()
	return nil
}

// ClearCompleted removes every completed job and returns how many went.
func (s *Scheduler) ClearCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.removeLocked(func(j *job.Job) bool { return j.Status == job.StatusCompleted })
	if n > 0 {
		s.persistLocked()
	}
	return n
}

func (s *Scheduler) removeLocked(match func(*job.Job) bool) int {
	kept := s.jobs[:0]
	removed := 0
	for _, j := range s.jobs {
		if !match(j) {
			kept = append(kept, j)
			continue
		}
		removed++
		s.retry.Reset(j.ID)
		delete(s.waiting, j.ID)
		delete(s.byID, j.ID)
		delete(s.seq, j.ID)
		delete(s.opened, j.ID)
		s.events.Publish(events.Event{
			Type: events.TypeJobRemoved,
			Time: s.now(),
			Data: map[string]int64{"id": j.ID},
		})
	}
	for i := len(kept); i < len(s.jobs); i++ {
		s.jobs[i] = nil
	}
	s.jobs = kept
	return removed
}

// Get returns a copy of one job.
func (s *Scheduler) Get(id int64) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// List returns copies of all jobs, most recent first.
func (s *Scheduler) List() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	return out
}

// Stats counts jobs per status.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Total: len(s.jobs)}
	for _, j := range s.jobs {
		switch {
		case j.Status == job.StatusQueued:
			st.Queued++
		case j.Status.IsActive():
			st.Active++
		case j.Status == job.StatusCompleted:
			st.Completed++
		case j.Status == job.StatusFailed:
			st.Failed++
		case j.Status == job.StatusCanceled:
			st.Canceled++
		}
	}
	return st
}

// Runtime samples the process of an active job.
func (s *Scheduler) Runtime(id int64) (RuntimeState, error) {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return RuntimeState{}, ErrNotFound
	}
	run := s.runs[id]
	var h *process.Handle
	if run != nil {
		h = run.handle
	}
	s.mu.Unlock()

	if h == nil {
		return RuntimeState{}, ErrNotActive
	}
	return RuntimeState{Status: h.Status(), Usage: h.Usage()}, nil
}

// Close stops all countdowns, kills running downloads and waits for them.
// Jobs that were running stay active in the saved list and are demoted on
// the next Restore.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.retry.ClearAll()
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.persistLocked()
	s.mu.Unlock()
}

// commitLocked persists the list and announces j.
func (s *Scheduler) commitLocked(j *job.Job) {
	s.persistLocked()
	s.publishLocked(j)
}

func (s *Scheduler) publishLocked(j *job.Job) {
	s.events.Publish(events.Event{
		Type: events.TypeJobUpdated,
		Time: s.now(),
		Data: j.Clone(),
	})
}

func (s *Scheduler) persistLocked() {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Save(context.Background(), s.jobs); err != nil {
		s.logger.Error("save job snapshot: %v", err)
	}
}
