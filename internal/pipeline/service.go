// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/mediaqueue/internal/events"
	"github.com/ZSC714725/mediaqueue/internal/logger"
)

const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCanceled  = "canceled"
)

const keepRuns = 20

// Run is the observable record of one pipeline invocation.
type Run struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	Feature    string     `json:"feature"`
	Request    Request    `json:"request"`
	Progress   Progress   `json:"progress"`
	Output     *Output    `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Service allows a single pipeline run at a time and remembers recent runs.
type Service struct {
	runner  *Runner
	events  events.Publisher
	logger  logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	runs   map[string]*Run
	order  []string
	active string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a Service. A positive timeout bounds each whole run.
func NewService(runner *Runner, pub events.Publisher, log logger.Logger, timeout time.Duration) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		runner:  runner,
		events:  pub,
		logger:  log,
		timeout: timeout,
		runs:    make(map[string]*Run),
	}
}

// Start validates req synchronously and runs it in the background.
func (s *Service) Start(req Request) (Run, error) {
	feature, _, err := s.runner.Validate(req)
	if err != nil {
		return Run{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return Run{}, ErrBusy
	}

	run := &Run{
		ID:        shortuuid.New(),
		State:     StateRunning,
		Feature:   feature.Name(),
		Request:   req,
		StartedAt: time.Now(),
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	s.prune()

	ctx, cancel := context.WithCancel(context.Background())
	s.active = run.ID
	s.cancel = cancel

	s.wg.Add(1)
	go s.execute(ctx, run.ID, req)

	return *run, nil
}

func (s *Service) execute(ctx context.Context, id string, req Request) {
	defer s.wg.Done()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.runner.Run(ctx, req, func(p Progress) {
		s.mu.Lock()
		run := s.runs[id]
		run.Progress = p
		snapshot := *run
		s.mu.Unlock()
		s.events.Publish(events.Event{Type: events.TypePipelineProgress, Data: snapshot})
	})

	s.mu.Lock()
	run := s.runs[id]
	now := time.Now()
	run.FinishedAt = &now
	switch {
	case err == nil:
		run.State = StateCompleted
		run.Output = &out
	case errors.Is(ctx.Err(), context.Canceled):
		run.State = StateCanceled
		run.Error = "Processing canceled."
	default:
		run.State = StateFailed
		run.Error = FriendlyError(err)
		if len(out.Results) > 0 {
			run.Output = &out
		}
	}
	s.active = ""
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	snapshot := *run
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("pipeline %s %s: %v", id, snapshot.State, err)
	} else {
		s.logger.Info("pipeline %s completed: %d file(s)", id, len(out.Results))
	}
	s.events.Publish(events.Event{Type: events.TypePipelineFinished, Data: snapshot})
}

// Get returns a copy of a run.
func (s *Service) Get(id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return *run, nil
}

// Active returns the id of the running invocation, if any.
func (s *Service) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

// Cancel stops the run with id if it is still running.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return ErrRunNotFound
	}
	if s.active == id && s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Close cancels the active run and waits for it.
func (s *Service) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// prune drops the oldest finished runs beyond keepRuns.
func (s *Service) prune() {
	for len(s.order) > keepRuns {
		id := s.order[0]
		if id == s.active {
			return
		}
		s.order = s.order[1:]
		delete(s.runs, id)
	}
}
