// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Tools    ToolsConfig    `yaml:"tools"`
	Queue    QueueConfig    `yaml:"queue"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// ToolsConfig 外部工具路径
type ToolsConfig struct {
	YTDLP   string `yaml:"ytdlp"`
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
}

// QueueConfig 下载队列配置
type QueueConfig struct {
	Concurrency    int          `yaml:"concurrency"`
	Autostart      bool         `yaml:"autostart"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
	Allow          []string     `yaml:"allow"`
	Block          []string     `yaml:"block"`
	Retry          RetryConfig  `yaml:"retry"`
}

// RetryConfig 限流重试配置
type RetryConfig struct {
	Ceiling        int   `yaml:"ceiling"`
	BackoffSeconds []int `yaml:"backoff_seconds"`
}

// PipelineConfig 转码配置
type PipelineConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: "127.0.0.1:8080"},
		Tools: ToolsConfig{
			YTDLP:   "yt-dlp",
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
		},
		Queue: QueueConfig{
			Concurrency:    1,
			Autostart:      true,
			TimeoutSeconds: 600,
			Retry: RetryConfig{
				Ceiling:        3,
				BackoffSeconds: []int{20, 45, 90},
			},
		},
		Pipeline: PipelineConfig{TimeoutSeconds: 600},
		Storage:  StorageConfig{Backend: BackendFile, Dir: defaultDataDir()},
		Log:      LogConfig{Level: "info"},
	}
}

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// 填充空值
func (c *Config) fill() {
	def := Default()
	if c.Server.Bind == "" {
		c.Server.Bind = def.Server.Bind
	}
	if c.Tools.YTDLP == "" {
		c.Tools.YTDLP = def.Tools.YTDLP
	}
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = def.Tools.FFmpeg
	}
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = def.Tools.FFprobe
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = def.Queue.Concurrency
	}
	if c.Queue.TimeoutSeconds == 0 {
		c.Queue.TimeoutSeconds = def.Queue.TimeoutSeconds
	}
	if c.Queue.Retry.Ceiling <= 0 {
		c.Queue.Retry.Ceiling = def.Queue.Retry.Ceiling
	}
	if len(c.Queue.Retry.BackoffSeconds) == 0 {
		c.Queue.Retry.BackoffSeconds = def.Queue.Retry.BackoffSeconds
	}
	if c.Pipeline.TimeoutSeconds == 0 {
		c.Pipeline.TimeoutSeconds = def.Pipeline.TimeoutSeconds
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	c.Storage.Dir = expandHome(c.Storage.Dir)
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	for _, s := range c.Queue.Retry.BackoffSeconds {
		if s <= 0 {
			return fmt.Errorf("queue.retry.backoff_seconds: values must be positive")
		}
	}
	return nil
}

// Backoff returns the retry schedule as durations.
func (c *Config) Backoff() []time.Duration {
	out := make([]time.Duration, 0, len(c.Queue.Retry.BackoffSeconds))
	for _, s := range c.Queue.Retry.BackoffSeconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

// QueueTimeout returns the per-download hard timeout; negative disables it.
func (c *Config) QueueTimeout() time.Duration {
	return time.Duration(c.Queue.TimeoutSeconds) * time.Second
}

// PipelineTimeout returns the per-file encoder timeout; negative disables it.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Pipeline.TimeoutSeconds) * time.Second
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "mediaqueue")
	}
	return ".mediaqueue"
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
