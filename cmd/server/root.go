// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/mediaqueue/internal/config"
)

type commandContext struct {
	configFlag *string
	ffmpegFlag *string
	ytdlpFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

// ensureConfig loads the config once and applies the tool overrides.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg := config.Default()
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			cfg, c.configErr = config.Load(path)
			if c.configErr != nil {
				return
			}
		}
		if v := strings.TrimSpace(*c.ffmpegFlag); v != "" {
			cfg.Tools.FFmpeg = v
		}
		if v := strings.TrimSpace(*c.ytdlpFlag); v != "" {
			cfg.Tools.YTDLP = v
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag, ffmpegFlag, ytdlpFlag string
	ctx := &commandContext{
		configFlag: &configFlag,
		ffmpegFlag: &ffmpegFlag,
		ytdlpFlag:  &ytdlpFlag,
	}

	rootCmd := &cobra.Command{
		Use:           "mediaqueue",
		Short:         "Media download queue with a local transcoding pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&ffmpegFlag, "ffmpeg", "", "FFmpeg binary path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&ytdlpFlag, "ytdlp", "", "yt-dlp binary path (overrides config)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}
