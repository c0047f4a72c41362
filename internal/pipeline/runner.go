// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/progress"
)

// Encoder is the subset of the ffmpeg adapter a run needs.
type Encoder interface {
	Duration(ctx context.Context, path string) (float64, bool)
	HasVideo(ctx context.Context, path string) (bool, error)
	Run(ctx context.Context, args []string, onTime func(seconds float64)) error
}

// Request is one pipeline invocation.
type Request struct {
	Inputs       []string `json:"inputPaths"`
	OutputFolder string   `json:"outputFolder"`
	Options      Options  `json:"pipeline"`
}

// Progress of a run
type Progress struct {
	FileIndex   int     `json:"fileIndex"`
	FileCount   int     `json:"fileCount"`
	File        string  `json:"file"`
	FilePercent int     `json:"filePercent"`
	Percent     float64 `json:"percent"`
	ETA         int     `json:"etaSeconds"`
	HasETA      bool    `json:"hasEta"`
}

// Result of one file
type Result struct {
	Input     string `json:"input"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	Size      string `json:"size"`
}

// Output of a whole run
type Output struct {
	Results      []Result `json:"results"`
	OutputFolder string   `json:"outputFolder"`
}

// Plan is a fully resolved invocation for one input.
type Plan struct {
	Feature Feature
	Input   string
	Output  string
	Args    []string
}

// Runner executes requests sequentially, one file at a time.
type Runner struct {
	Encoder Encoder
	// HasEncoder, when set, is consulted before any file is processed.
	HasEncoder func(name string) bool
	Logger     logger.Logger

	now    func() time.Time
	exists func(string) bool
}

// NewRunner creates a Runner.
func NewRunner(enc Encoder, hasEncoder func(string) bool, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		Encoder:    enc,
		HasEncoder: hasEncoder,
		Logger:     log,
		now:        time.Now,
		exists:     fileExists,
	}
}

// Validate checks the request without touching the encoder and returns the
// selected feature and the usable inputs.
func (r *Runner) Validate(req Request) (Feature, []string, error) {
	feature, err := req.Options.Feature()
	if err != nil {
		return nil, nil, err
	}

	if len(req.Inputs) == 0 {
		return nil, nil, ErrNoInputs
	}
	var inputs []string
	seen := map[string]bool{}
	for _, in := range req.Inputs {
		in = strings.TrimSpace(in)
		if in == "" || seen[in] {
			continue
		}
		info, err := os.Stat(in)
		if err != nil || !info.Mode().IsRegular() {
			r.Logger.Warn("skipping input %q: not a regular file", in)
			continue
		}
		seen[in] = true
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, nil, ErrNoValidInputs
	}

	if req.OutputFolder != "" {
		info, err := os.Stat(req.OutputFolder)
		if err != nil || !info.IsDir() {
			return nil, nil, ErrInvalidOutputFolder
		}
	}

	if r.HasEncoder != nil {
		for _, name := range feature.Encoders() {
			if !r.HasEncoder(name) {
				return nil, nil, fmt.Errorf("%w: %s", ErrEncoderMissing, name)
			}
		}
	}
	return feature, inputs, nil
}

// PlanFile resolves the output path and arguments for one input.
func (r *Runner) PlanFile(feature Feature, input, outputFolder string) Plan {
	out := OutputPath(input, outputFolder, feature.Target(input), r.exists)
	return Plan{
		Feature: feature,
		Input:   input,
		Output:  out,
		Args:    feature.Args(input, out),
	}
}

// Run processes every input in order, stopping at the first failure.
func (r *Runner) Run(ctx context.Context, req Request, onProgress func(Progress)) (Output, error) {
	feature, inputs, err := r.Validate(req)
	if err != nil {
		return Output{}, err
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	out := Output{OutputFolder: req.OutputFolder}
	total := len(inputs)
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := r.runFile(ctx, feature, input, req.OutputFolder, i, total, onProgress)
		if err != nil {
			return out, err
		}
		out.Results = append(out.Results, res)
		if out.OutputFolder == "" {
			out.OutputFolder = filepath.Dir(res.Path)
		}
	}
	return out, nil
}

func (r *Runner) runFile(ctx context.Context, feature Feature, input, outputFolder string, index, count int, onProgress func(Progress)) (Result, error) {
	name := filepath.Base(input)

	duration, known := r.Encoder.Duration(ctx, input)
	if !known {
		r.Logger.Debug("duration of %s unknown, percent disabled", name)
	}

	if feature.NeedsVideo() {
		ok, err := r.Encoder.HasVideo(ctx, input)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, fmt.Errorf("%s %w: %s is audio-only", feature.Name(), ErrNeedsVideo, name)
		}
	}

	plan := r.PlanFile(feature, input, outputFolder)
	r.Logger.Info("%s %s -> %s", feature.Name(), name, filepath.Base(plan.Output))

	base := Progress{FileIndex: index + 1, FileCount: count, File: name}
	emit := func(filePercent int, started time.Time) {
		p := base
		p.FilePercent = filePercent
		p.Percent = (float64(index)*100 + float64(filePercent)) / float64(count)
		p.ETA, p.HasETA = progress.ETA(r.now().Sub(started), float64(filePercent))
		onProgress(p)
	}

	started := r.now()
	emit(0, started)

	var span float64
	if known {
		span = feature.Span(duration)
	}
	tracker := progress.NewTracker(span)
	err := r.Encoder.Run(ctx, plan.Args, func(seconds float64) {
		if pct, ok := tracker.Observe(seconds); ok {
			emit(pct, started)
		}
	})
	if err != nil {
		os.Remove(plan.Output)
		return Result{}, fmt.Errorf("ffmpeg exited while processing %s: %w", name, err)
	}

	info, err := os.Stat(plan.Output)
	if err != nil || info.Size() == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyOutput, filepath.Base(plan.Output))
	}
	emit(100, started)

	return Result{
		Input:     input,
		Path:      plan.Output,
		Name:      filepath.Base(plan.Output),
		SizeBytes: info.Size(),
		Size:      humanize.Bytes(uint64(info.Size())),
	}, nil
}
