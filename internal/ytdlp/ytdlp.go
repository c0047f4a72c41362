// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package ytdlp drives the yt-dlp command line tool.

package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/process"
	"github.com/ZSC714725/mediaqueue/internal/progress"
)

// UnknownTitle is used when the site reports no title.
const UnknownTitle = "Unknown Title"

// SubtitleLangs selects English tracks and skips live chat replays.
const SubtitleLangs = "en.*,en,-live_chat"

var ErrNoMetadata = errors.New("could not parse video info")

// Client runs yt-dlp.
type Client struct {
	Binary string
	// FFmpegLocation is passed as --ffmpeg-location when set.
	FFmpegLocation string
	Timeout        time.Duration
	Logger         logger.Logger
}

// Metadata of a single video
type Metadata struct {
	Title          string  `json:"title"`
	DurationString string  `json:"duration_string"`
	Uploader       string  `json:"uploader"`
	Duration       float64 `json:"duration"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
}

// Request describes one download.
type Request struct {
	URL          string
	OutputFolder string
	Format       job.Format
	Resolution   string
	Bitrate      string
	Subtitles    bool
	// Title is the output basename without extension; empty lets the
	// tool pick the video title.
	Title string
}

// Observer receives callbacks while a download runs.
type Observer struct {
	Progress func(progress.Event)
	Started  func(*process.Handle)
}

func (c *Client) binary() string {
	if c.Binary == "" {
		return "yt-dlp"
	}
	return c.Binary
}

func (c *Client) logger() logger.Logger {
	if c.Logger == nil {
		return logger.Nop()
	}
	return c.Logger
}

// FetchMetadata looks up title, duration and uploader without downloading.
func (c *Client) FetchMetadata(ctx context.Context, url string) (Metadata, error) {
	var (
		mu  sync.Mutex
		out strings.Builder
	)
	_, err := process.Run(ctx, process.Config{
		Binary:  c.binary(),
		Args:    []string{"--dump-json", "--no-playlist", url},
		Timeout: c.Timeout,
		Logger:  c.logger(),
		OnStdoutLine: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			if out.Len() == 0 {
				out.WriteString(line)
			}
		},
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch metadata: %w", err)
	}

	mu.Lock()
	raw := out.String()
	mu.Unlock()
	return parseMetadata([]byte(raw))
}

func parseMetadata(data []byte) (Metadata, error) {
	var info struct {
		Title          string  `json:"title"`
		DurationString string  `json:"duration_string"`
		Duration       float64 `json:"duration"`
		Uploader       string  `json:"uploader"`
		Thumbnail      string  `json:"thumbnail"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrNoMetadata, err)
	}
	md := Metadata{
		Title:          strings.TrimSpace(info.Title),
		DurationString: info.DurationString,
		Uploader:       info.Uploader,
		Duration:       info.Duration,
		Thumbnail:      info.Thumbnail,
	}
	if md.Title == "" {
		md.Title = UnknownTitle
	}
	return md, nil
}

// BuildArgs returns the download arguments for req.
func BuildArgs(req Request, ffmpegLocation string) []string {
	name := "%(title)s"
	if req.Title != "" {
		name = strings.ReplaceAll(req.Title, "%", "%%")
	}

	var args []string
	if ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", ffmpegLocation)
	}
	args = append(args,
		"--newline",
		"--no-playlist",
		// file time stays the download time so the output can be located
		"--no-mtime",
		"-o", filepath.Join(req.OutputFolder, name+".%(ext)s"),
	)

	switch req.Format {
	case job.FormatMP3:
		bitrate := req.Bitrate
		if !job.ValidBitrate(bitrate) {
			bitrate = job.DefaultBitrate
		}
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", bitrate+"K")
	default:
		height := ""
		if req.Resolution != "" {
			height = "[height<=" + req.Resolution + "]"
		}
		args = append(args,
			"-f", "bestvideo"+height+"+bestaudio/best"+height+"/best",
			"--merge-output-format", "mp4",
		)
	}

	if req.Subtitles {
		args = append(args,
			"--write-subs",
			"--write-auto-subs",
			"--sub-langs", SubtitleLangs,
			"--convert-subs", "srt",
		)
	}

	return append(args, req.URL)
}

// Download runs one download, reporting progress parsed from stdout.
func (c *Client) Download(ctx context.Context, req Request, obs Observer) error {
	args := BuildArgs(req, c.FFmpegLocation)
	c.logger().Debug("yt-dlp %s", strings.Join(args, " "))

	h, err := process.Start(ctx, process.Config{
		Binary:  c.binary(),
		Args:    args,
		Timeout: c.Timeout,
		Logger:  c.logger(),
		OnStdoutLine: func(line string) {
			if obs.Progress == nil {
				return
			}
			if ev, ok := progress.ParseDownloadLine(line); ok {
				obs.Progress(ev)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	if obs.Started != nil {
		obs.Started(h)
	}
	if _, err := h.Wait(); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}

// Version returns the installed yt-dlp version.
func (c *Client) Version(ctx context.Context) (string, error) {
	lines, err := c.collect(ctx, 30*time.Second, "--version")
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", errors.New("yt-dlp printed no version")
	}
	return lines[0], nil
}

// Update runs the self-updater and returns its final status line.
func (c *Client) Update(ctx context.Context) (string, error) {
	lines, err := c.collect(ctx, 5*time.Minute, "-U")
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[len(lines)-1], nil
}

func (c *Client) collect(ctx context.Context, timeout time.Duration, args ...string) ([]string, error) {
	var (
		mu    sync.Mutex
		lines []string
	)
	_, err := process.Run(ctx, process.Config{
		Binary:  c.binary(),
		Args:    args,
		Timeout: timeout,
		Logger:  c.logger(),
		OnStdoutLine: func(line string) {
			if line = strings.TrimSpace(line); line == "" {
				return
			}
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("yt-dlp %s: %w", strings.Join(args, " "), err)
	}
	return lines, nil
}
