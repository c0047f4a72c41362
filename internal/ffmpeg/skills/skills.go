// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package skills

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/mediaqueue/internal/process"
)

// QueryTimeout bounds each capability query New runs.
const QueryTimeout = 10 * time.Second

// Encoder is one entry of `ffmpeg -encoders`.
type Encoder struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// Library represents a linked av library
type Library struct {
	Name     string `json:"name"`
	Compiled string `json:"compiled"`
	Linked   string `json:"linked"`
}

// Info is parsed from `ffmpeg -version`.
type Info struct {
	Version       string    `json:"version"`
	Compiler      string    `json:"compiler"`
	Configuration string    `json:"configuration"`
	Libraries     []Library `json:"libraries"`
}

// Skills are the detected capabilities of FFmpeg
type Skills struct {
	FFmpeg   Info `json:"ffmpeg"`
	Encoders struct {
		Audio    []Encoder `json:"audio"`
		Video    []Encoder `json:"video"`
		Subtitle []Encoder `json:"subtitle"`
	} `json:"encoders"`
}

// New queries binary for its version and encoders.
func New(binary string) (Skills, error) {
	return Query(context.Background(), binary, QueryTimeout)
}

// Query is New with a caller supplied context and per-query timeout.
func Query(ctx context.Context, binary string, timeout time.Duration) (Skills, error) {
	s := Skills{}

	info, err := getVersion(ctx, binary, timeout)
	if err != nil {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version: %w", err)
	}
	if info.Version == "" {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}
	s.FFmpeg = info

	// an ffmpeg that can't list encoders is still usable, HasEncoder just says no
	stdout, _ := output(ctx, binary, timeout, "-hide_banner", "-encoders")
	s.setEncoders(parseEncoders(stdout))

	return s, nil
}

// HasEncoder reports whether an encoder with id is available.
func (s Skills) HasEncoder(id string) bool {
	for _, list := range [][]Encoder{s.Encoders.Video, s.Encoders.Audio, s.Encoders.Subtitle} {
		for _, e := range list {
			if e.Id == id {
				return true
			}
		}
	}
	return false
}

func (s *Skills) setEncoders(all map[string][]Encoder) {
	s.Encoders.Video = all["V"]
	s.Encoders.Audio = all["A"]
	s.Encoders.Subtitle = all["S"]
}

func getVersion(ctx context.Context, binary string, timeout time.Duration) (Info, error) {
	out, err := output(ctx, binary, timeout, "-version")
	if err != nil {
		return Info{}, err
	}
	return parseVersion(out), nil
}

// output runs binary and returns its stdout, one line per scanned line.
func output(ctx context.Context, binary string, timeout time.Duration, args ...string) ([]byte, error) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	_, err := process.Run(ctx, process.Config{
		Binary:  binary,
		Args:    args,
		Timeout: timeout,
		OnStdoutLine: func(line string) {
			mu.Lock()
			buf.WriteString(line)
			buf.WriteByte('\n')
			mu.Unlock()
		},
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	reVersion       = regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reCompiler      = regexp.MustCompile(`(?m)^\s*built with (.*)$`)
	reConfiguration = regexp.MustCompile(`(?m)^\s*configuration: (.*)$`)
	reLibrary       = regexp.MustCompile(`(?m)^\s*(lib(?:[a-z]+))\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+) /\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+)`)
	reEncoder       = regexp.MustCompile(`^\s([VAS])[F.][S.][X.][B.][D.]\s+([0-9A-Za-z_-]+)\s+(.*)$`)
)

func parseVersion(data []byte) Info {
	f := Info{}
	if m := reVersion.FindSubmatch(data); m != nil {
		f.Version = string(m[1])
		if len(m[2]) == 0 {
			f.Version += ".0"
		}
	}
	if m := reCompiler.FindSubmatch(data); m != nil {
		f.Compiler = string(m[1])
	}
	if m := reConfiguration.FindSubmatch(data); m != nil {
		f.Configuration = string(m[1])
	}
	for _, m := range reLibrary.FindAllSubmatch(data, -1) {
		f.Libraries = append(f.Libraries, Library{
			Name:     string(m[1]),
			Compiled: string(m[2]),
			Linked:   string(m[3]),
		})
	}
	return f
}

// parseEncoders groups encoders by kind letter (V, A or S).
func parseEncoders(data []byte) map[string][]Encoder {
	out := map[string][]Encoder{}
	started := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "------" {
			started = true
			continue
		}
		if !started {
			continue
		}
		m := reEncoder.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out[m[1]] = append(out[m[1]], Encoder{Id: m[2], Name: strings.TrimSpace(m[3])})
	}
	return out
}
