// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/mediaqueue/internal/api"
	"github.com/ZSC714725/mediaqueue/internal/config"
	"github.com/ZSC714725/mediaqueue/internal/events"
	"github.com/ZSC714725/mediaqueue/internal/ffmpeg"
	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/pipeline"
	"github.com/ZSC714725/mediaqueue/internal/queue"
	"github.com/ZSC714725/mediaqueue/internal/retry"
	"github.com/ZSC714725/mediaqueue/internal/settings"
	"github.com/ZSC714725/mediaqueue/internal/store"
	"github.com/ZSC714725/mediaqueue/internal/ytdlp"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download queue and the local API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Bind address (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.NewWithOptions(logger.Options{Name: "mediaqueue", Level: cfg.Log.Level})

	lock, err := store.Lock(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("data directory %s: %w", cfg.Storage.Dir, err)
	}
	defer lock.Unlock()

	kv, err := store.Open(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer kv.Close()

	policy, err := queue.NewPolicy(cfg.Queue.Allow, cfg.Queue.Block)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	defer hub.Close()

	// ffmpeg 缺失时下载仍可用，转码接口返回 503
	var ff ffmpeg.FFmpeg
	var svc *pipeline.Service
	ffLocation := ""
	ff, err = ffmpeg.New(ffmpeg.Config{
		Binary:  cfg.Tools.FFmpeg,
		Probe:   cfg.Tools.FFprobe,
		Timeout: cfg.PipelineTimeout(),
		Logger:  log.Named("ffmpeg"),
	})
	if err != nil {
		log.Warn("ffmpeg unavailable, pipeline disabled: %v", err)
		ff = nil
	} else {
		ffLocation = ff.Dir()
		runner := pipeline.NewRunner(ff, func(id string) bool {
			return ff.Skills().HasEncoder(id)
		}, log.Named("pipeline"))
		svc = pipeline.NewService(runner, hub, log.Named("pipeline"), 0)
		defer svc.Close()
	}

	yt := &ytdlp.Client{
		Binary:         cfg.Tools.YTDLP,
		FFmpegLocation: ffLocation,
		Timeout:        cfg.QueueTimeout(),
		Logger:         log.Named("ytdlp"),
	}

	sched := queue.New(queue.Options{
		Concurrency: cfg.Queue.Concurrency,
		Autostart:   cfg.Queue.Autostart,
		Policy:      policy,
		Retry: retry.New(retry.Options{
			Ceiling:  cfg.Queue.Retry.Ceiling,
			Schedule: cfg.Backoff(),
		}),
		Downloader: yt,
		Snapshots:  store.NewSnapshots(kv, log.Named("store")),
		Events:     hub,
		Opener:     queue.SystemOpener{},
		Logger:     log.Named("queue"),
	})
	// restored jobs wait for an explicit start
	if err := sched.Restore(ctx); err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}
	defer sched.Close()

	handler := api.NewHandler(api.Deps{
		Queue:    sched,
		Pipeline: svc,
		Settings: settings.NewStore(kv, log.Named("settings")),
		Tools:    yt,
		FFmpeg:   ff,
		Policy:   policy,
		Events:   hub,
		Logger:   log.Named("api"),
	})

	if logger.ParseLevel(cfg.Log.Level) > logger.ParseLevel("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    cfg.Server.Bind,
		Handler: api.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("MediaQueue listening on %s (data: %s, storage: %s)", cfg.Server.Bind, cfg.Storage.Dir, cfg.Storage.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// websocket connections are hijacked, closing the hub ends them
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown: %v", err)
	}
	return nil
}
