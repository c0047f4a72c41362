// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/mediaqueue/internal/ffmpeg/skills"
	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/process"
	"github.com/ZSC714725/mediaqueue/internal/progress"
)

// ErrBinaryNotFound means ffmpeg or ffprobe could not be located.
var ErrBinaryNotFound = errors.New("ffmpeg binary not found")

// FFmpeg wraps the encoder and its probe.
type FFmpeg interface {
	// Binary is the resolved ffmpeg path.
	Binary() string
	// Dir is the folder holding the binaries.
	Dir() string
	// Duration returns the media duration in seconds; ok is false when
	// unknown.
	Duration(ctx context.Context, path string) (float64, bool)
	// HasVideo reports whether the file carries at least one video stream.
	HasVideo(ctx context.Context, path string) (bool, error)
	// Run executes ffmpeg with args, reporting elapsed media time.
	Run(ctx context.Context, args []string, onTime func(seconds float64)) error
	Skills() skills.Skills
	ReloadSkills() error
}

// Config for FFmpeg
type Config struct {
	Binary  string
	Probe   string
	Timeout time.Duration
	Logger  logger.Logger
}

type ffmpeg struct {
	binary     string
	probe      string
	timeout    time.Duration
	logger     logger.Logger
	skills     skills.Skills
	skillsLock sync.RWMutex
}

// New resolves both binaries and detects the encoder's skills.
func New(config Config) (FFmpeg, error) {
	if config.Binary == "" {
		config.Binary = "ffmpeg"
	}
	if config.Probe == "" {
		config.Probe = "ffprobe"
	}
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, config.Binary, err)
	}
	probe, err := exec.LookPath(config.Probe)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, config.Probe, err)
	}

	f := &ffmpeg{
		binary:  binary,
		probe:   probe,
		timeout: config.Timeout,
		logger:  config.Logger,
	}
	if f.logger == nil {
		f.logger = logger.Nop()
	}

	s, err := skills.New(f.binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	f.skills = s

	return f, nil
}

func (f *ffmpeg) Binary() string { return f.binary }

func (f *ffmpeg) Dir() string { return filepath.Dir(f.binary) }

func (f *ffmpeg) Duration(ctx context.Context, path string) (float64, bool) {
	lines, err := f.probeLines(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	if err != nil || len(lines) == 0 {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func (f *ffmpeg) HasVideo(ctx context.Context, path string) (bool, error) {
	lines, err := f.probeLines(ctx,
		"-v", "error",
		"-select_streams", "v",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}
	for _, l := range lines {
		if strings.TrimSpace(l) == "video" {
			return true, nil
		}
	}
	return false, nil
}

func (f *ffmpeg) probeLines(ctx context.Context, args ...string) ([]string, error) {
	var (
		mu    sync.Mutex
		lines []string
	)
	_, err := process.Run(ctx, process.Config{
		Binary:  f.probe,
		Args:    args,
		Timeout: time.Minute,
		Logger:  f.logger,
		OnStdoutLine: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})
	return lines, err
}

func (f *ffmpeg) Run(ctx context.Context, args []string, onTime func(seconds float64)) error {
	full := append([]string{"-hide_banner", "-y"}, args...)
	f.logger.Debug("ffmpeg %s", strings.Join(full, " "))

	_, err := process.Run(ctx, process.Config{
		Binary:  f.binary,
		Args:    full,
		Timeout: f.timeout,
		Logger:  f.logger,
		OnStderrLine: func(line string) {
			if onTime == nil {
				return
			}
			if t, ok := progress.ParseEncoderTime(line); ok {
				onTime(t)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func (f *ffmpeg) Skills() skills.Skills {
	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return f.skills
}

func (f *ffmpeg) ReloadSkills() error {
	s, err := skills.New(f.binary)
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	f.skillsLock.Lock()
	f.skills = s
	f.skillsLock.Unlock()
	return nil
}
