// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/mediaqueue/internal/config"
	"github.com/ZSC714725/mediaqueue/internal/ffmpeg"
	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/ytdlp"
)

// encoders the pipeline features rely on
var doctorEncoders = []string{"libx264", "aac", "libmp3lame", "libvpx-vp9", "libopus", "gif"}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and the data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !doctor(cmd.Context(), cmd.OutOrStdout(), cfg) {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}
}

func doctor(ctx context.Context, out io.Writer, cfg *config.Config) bool {
	ok := true
	check := func(name string, pass bool, detail string) {
		mark := "ok  "
		if !pass {
			mark = "FAIL"
			ok = false
		}
		fmt.Fprintf(out, "[%s] %-10s %s\n", mark, name, detail)
	}

	yt := &ytdlp.Client{Binary: cfg.Tools.YTDLP, Timeout: 30 * time.Second, Logger: logger.Nop()}
	if version, err := yt.Version(ctx); err != nil {
		check("yt-dlp", false, err.Error())
	} else {
		check("yt-dlp", true, version)
	}

	ff, err := ffmpeg.New(ffmpeg.Config{Binary: cfg.Tools.FFmpeg, Probe: cfg.Tools.FFprobe})
	if err != nil {
		check("ffmpeg", false, err.Error())
	} else {
		sk := ff.Skills()
		check("ffmpeg", true, fmt.Sprintf("%s (%s)", sk.FFmpeg.Version, ff.Binary()))
		var missing []string
		for _, id := range doctorEncoders {
			if !sk.HasEncoder(id) {
				missing = append(missing, id)
			}
		}
		total := len(sk.Encoders.Audio) + len(sk.Encoders.Video) + len(sk.Encoders.Subtitle)
		detail := fmt.Sprintf("%d available", total)
		if len(missing) > 0 {
			detail += ", missing: " + strings.Join(missing, ", ")
		}
		check("encoders", len(missing) == 0, detail)
	}

	size, files, err := dirUsage(cfg.Storage.Dir)
	switch {
	case os.IsNotExist(err):
		check("data", true, cfg.Storage.Dir+" (not created yet)")
	case err != nil:
		check("data", false, err.Error())
	default:
		check("data", true, fmt.Sprintf("%s, %s in %d file(s), backend %s",
			cfg.Storage.Dir, humanize.Bytes(uint64(size)), files, cfg.Storage.Backend))
	}

	return ok
}

func dirUsage(dir string) (int64, int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, 0, err
	}
	var size int64
	var files int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		files++
		return nil
	})
	return size, files, err
}
