// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package process runs one external tool invocation with streamed,
// line-split output, cooperative cancellation and a hard timeout.

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ZSC714725/mediaqueue/internal/logger"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Minute

const (
	defaultTailLines = 40
	maxLineBytes     = 16 * 1024 * 1024
	// how long output may stay open after the process exited, e.g. held
	// by a surviving grandchild
	drainDelay = 2 * time.Second
)

// Config for a single invocation
type Config struct {
	Binary string
	Args   []string
	Dir    string
	// Env is appended to the current environment.
	Env []string
	// Timeout of zero means DefaultTimeout, negative disables it.
	Timeout time.Duration

	OnStdoutLine func(line string)
	OnStderrLine func(line string)

	Logger    logger.Logger
	TailLines int
}

// Result of a finished invocation
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Status is a point-in-time view of a handle
type Status struct {
	State string    `json:"state"`
	PID   int       `json:"pid"`
	Since time.Time `json:"since"`
}

type stateType string

const (
	stateFinished  stateType = "finished"
	stateStarting  stateType = "starting"
	stateRunning   stateType = "running"
	stateFinishing stateType = "finishing"
	stateFailed    stateType = "failed"
	stateKilled    stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning || s == stateFinishing
}

// Handle controls one started process.
type Handle struct {
	cfg    Config
	cmd    *exec.Cmd
	pid    int32
	logger logger.Logger

	state struct {
		state stateType
		time  time.Time
		lock  sync.Mutex
	}

	canceled atomic.Bool
	timedOut atomic.Bool

	tail  *tail
	usage *usageSampler
	timer *time.Timer

	started time.Time
	done    chan struct{}
	result  Result
	err     error
}

// Start launches the binary and begins streaming its output. Cancelling ctx
// is equivalent to calling Cancel.
func Start(ctx context.Context, config Config) (*Handle, error) {
	if len(config.Binary) == 0 {
		return nil, ErrNoBinary
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.TailLines <= 0 {
		config.TailLines = defaultTailLines
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	h := &Handle{
		cfg:    config,
		logger: config.Logger,
		tail:   newTail(config.TailLines),
		usage:  newUsageSampler(),
		done:   make(chan struct{}),
	}
	h.initState(stateFinished)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
	}

	h.cmd = exec.Command(config.Binary, config.Args...)
	h.cmd.Dir = config.Dir
	if len(config.Env) > 0 {
		h.cmd.Env = append(os.Environ(), config.Env...)
	}

	// own pipes rather than StdoutPipe so Wait never races the readers
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return nil, err
	}
	h.cmd.Stdout = stdoutW
	h.cmd.Stderr = stderrW

	h.setState(stateStarting)
	h.started = time.Now()
	err = h.cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdout.Close()
		stderr.Close()
		h.setState(stateFailed)
		return nil, fmt.Errorf("start %s: %w", config.Binary, err)
	}

	h.pid = int32(h.cmd.Process.Pid)
	h.setState(stateRunning)
	if err := h.usage.Start(h.pid); err != nil {
		h.logger.Debug("usage sampling unavailable for pid %d: %v", h.pid, err)
	}
	h.logger.Debug("started %s pid=%d args=%v", config.Binary, h.pid, config.Args)

	if config.Timeout > 0 {
		h.timer = time.AfterFunc(config.Timeout, h.expire)
	}

	go func() {
		select {
		case <-ctx.Done():
			h.Cancel()
		case <-h.done:
		}
	}()

	go h.waiter(stdout, stderr)

	return h, nil
}

// Run starts the process and waits for it.
func Run(ctx context.Context, config Config) (Result, error) {
	h, err := Start(ctx, config)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	return h.Wait()
}

// Wait blocks until the process and both output readers are done. It may
// be called more than once.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	return h.result, h.err
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel kills the process tree. Later calls do nothing.
func (h *Handle) Cancel() {
	if !h.canceled.CompareAndSwap(false, true) {
		return
	}
	h.terminate()
}

// Canceled reports whether Cancel was requested.
func (h *Handle) Canceled() bool {
	return h.canceled.Load()
}

// PID of the started process
func (h *Handle) PID() int {
	return int(h.pid)
}

// Status returns the lifecycle state.
func (h *Handle) Status() Status {
	h.state.lock.Lock()
	defer h.state.lock.Unlock()
	return Status{
		State: h.state.state.String(),
		PID:   int(h.pid),
		Since: h.state.time,
	}
}

// Usage samples CPU and resident memory of the running process.
func (h *Handle) Usage() Usage {
	return h.usage.Current()
}

// Tail returns the last stderr lines seen so far.
func (h *Handle) Tail() []string {
	return h.tail.Lines()
}

func (h *Handle) expire() {
	select {
	case <-h.done:
		return
	default:
	}
	h.timedOut.Store(true)
	h.logger.Info("%s pid=%d exceeded timeout %s", h.cfg.Binary, h.pid, h.cfg.Timeout)
	h.terminate()
}

func (h *Handle) terminate() {
	if !h.getState().IsRunning() {
		return
	}
	if h.getState() == stateRunning {
		h.setState(stateFinishing)
	}
	if err := killTree(h.pid); err != nil {
		h.logger.Debug("kill tree pid=%d: %v", h.pid, err)
		if h.cmd.Process != nil {
			h.cmd.Process.Kill()
		}
	}
}

func (h *Handle) waiter(stdout, stderr *os.File) {
	defer stdout.Close()
	defer stderr.Close()

	var g errgroup.Group
	g.Go(func() error {
		return readLines(stdout, h.cfg.OnStdoutLine)
	})
	g.Go(func() error {
		return readLines(stderr, func(line string) {
			h.tail.Add(line)
			if h.cfg.OnStderrLine != nil {
				h.cfg.OnStderrLine(line)
			}
		})
	})
	readDone := make(chan error, 1)
	go func() { readDone <- g.Wait() }()

	waitErr := h.cmd.Wait()

	var readErr error
	select {
	case readErr = <-readDone:
	case <-time.After(drainDelay):
		h.logger.Debug("%s pid=%d exited but its output is still held open, closing", h.cfg.Binary, h.pid)
		stdout.Close()
		stderr.Close()
		if readErr = <-readDone; errors.Is(readErr, os.ErrClosed) {
			readErr = nil
		}
	}

	if h.timer != nil {
		h.timer.Stop()
	}
	h.usage.Stop()

	h.result = Result{ExitCode: -1, Duration: time.Since(h.started)}
	if h.cmd.ProcessState != nil {
		h.result.ExitCode = h.cmd.ProcessState.ExitCode()
	}

	switch {
	case h.canceled.Load():
		h.setState(stateKilled)
		h.err = ErrCanceled
	case h.timedOut.Load():
		h.setState(stateKilled)
		h.err = fmt.Errorf("%w after %s", ErrTimeout, h.cfg.Timeout)
	case waitErr != nil:
		h.setState(stateFailed)
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			h.err = &ExitError{Code: exitErr.ExitCode(), Tail: h.tail.Lines()}
		} else {
			h.err = waitErr
		}
	case readErr != nil:
		h.setState(stateFailed)
		h.err = fmt.Errorf("read output: %w", readErr)
	default:
		h.setState(stateFinished)
	}

	h.logger.Debug("%s pid=%d exited code=%d state=%s", h.cfg.Binary, h.pid, h.result.ExitCode, h.getState())
	close(h.done)
}

func readLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	scanner.Split(scanLine)
	for scanner.Scan() {
		if fn != nil {
			fn(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		// keep the pipe drained so the child never blocks on a full buffer
		io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func (h *Handle) initState(state stateType) {
	h.state.lock.Lock()
	defer h.state.lock.Unlock()
	h.state.state = state
	h.state.time = time.Now()
}

func (h *Handle) setState(state stateType) error {
	h.state.lock.Lock()
	defer h.state.lock.Unlock()

	failed := false
	switch h.state.state {
	case stateFinished:
		failed = state != stateStarting
	case stateStarting:
		failed = state != stateRunning && state != stateFailed
	case stateRunning:
		switch state {
		case stateFinished, stateFinishing, stateFailed, stateKilled:
		default:
			failed = true
		}
	case stateFinishing:
		switch state {
		case stateFinished, stateFailed, stateKilled:
		default:
			failed = true
		}
	case stateFailed, stateKilled:
		failed = true
	default:
		return fmt.Errorf("unhandled state: %s", h.state.state)
	}

	if failed {
		return fmt.Errorf("can't change from %s to %s", h.state.state, state)
	}

	h.state.state = state
	h.state.time = time.Now()
	return nil
}

func (h *Handle) getState() stateType {
	h.state.lock.Lock()
	defer h.state.lock.Unlock()
	return h.state.state
}

// scanLine splits on both \n and \r so carriage-return progress redraws
// arrive as separate lines.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
