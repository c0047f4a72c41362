// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Queue.Concurrency)
	assert.Equal(t, 3, cfg.Queue.Retry.Ceiling)
	assert.Equal(t, []time.Duration{20 * time.Second, 45 * time.Second, 90 * time.Second}, cfg.Backoff())
	assert.Equal(t, 10*time.Minute, cfg.QueueTimeout())
}

func TestLoadFillsEmptyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  bind: ":9000"
queue:
  concurrency: 2
storage:
  backend: sqlite
  dir: /tmp/mq
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Bind)
	assert.Equal(t, 2, cfg.Queue.Concurrency)
	assert.Equal(t, "yt-dlp", cfg.Tools.YTDLP)
	assert.Equal(t, "ffprobe", cfg.Tools.FFprobe)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/mq", cfg.Storage.Dir)
	assert.Equal(t, []int{20, 45, 90}, cfg.Queue.Retry.BackoffSeconds)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestLoadRejectsNonPositiveBackoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  retry:\n    backoff_seconds: [10, 0]\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
