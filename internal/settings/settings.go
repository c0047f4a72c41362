// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/logger"
	"github.com/ZSC714725/mediaqueue/internal/store"
)

// Key of the settings document
const Key = "mediadl.settings.v1"

const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

var (
	ErrInvalidFolder  = errors.New("download folder must be an existing absolute directory")
	ErrInvalidTheme   = errors.New("theme must be system, light or dark")
	ErrInvalidQuality = errors.New("unsupported default quality")
)

// Settings 用户偏好
type Settings struct {
	DownloadFolder string `json:"downloadFolder"`
	DefaultQuality string `json:"defaultQuality"`
	DefaultFormat  string `json:"defaultFormat"`
	Theme          string `json:"theme"`
}

// Patch changes only the fields that are set.
type Patch struct {
	DownloadFolder *string `json:"downloadFolder"`
	DefaultQuality *string `json:"defaultQuality"`
	DefaultFormat  *string `json:"defaultFormat"`
	Theme          *string `json:"theme"`
}

// Defaults returns the settings used before anything is saved.
func Defaults() Settings {
	return Settings{
		DefaultQuality: job.DefaultResolution,
		DefaultFormat:  string(job.FormatMP4),
		Theme:          ThemeSystem,
	}
}

// NormalizeTheme maps unknown values to system.
func NormalizeTheme(theme string) string {
	switch theme {
	case ThemeSystem, ThemeLight, ThemeDark:
		return theme
	}
	return ThemeSystem
}

// Validate checks every field.
func (s Settings) Validate() error {
	if s.DownloadFolder != "" {
		if !filepath.IsAbs(s.DownloadFolder) {
			return ErrInvalidFolder
		}
		info, err := os.Stat(s.DownloadFolder)
		if err != nil || !info.IsDir() {
			return ErrInvalidFolder
		}
	}
	if _, err := job.ParseFormat(s.DefaultFormat); err != nil {
		return err
	}
	if !job.ValidResolution(s.DefaultQuality) {
		return ErrInvalidQuality
	}
	switch s.Theme {
	case ThemeSystem, ThemeLight, ThemeDark:
	default:
		return ErrInvalidTheme
	}
	return nil
}

// Store reads and writes settings through a KV backend.
type Store struct {
	kv     store.KV
	logger logger.Logger
	mu     sync.Mutex
}

// NewStore wraps kv.
func NewStore(kv store.KV, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{kv: kv, logger: log}
}

// Load returns the saved settings merged over the defaults.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (Settings, error) {
	out := Defaults()
	data, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return out, err
	}
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("discarding unreadable settings: %v", err)
		return Defaults(), nil
	}

	def := Defaults()
	if out.DefaultQuality == "" {
		out.DefaultQuality = def.DefaultQuality
	}
	if out.DefaultFormat == "" {
		out.DefaultFormat = def.DefaultFormat
	}
	out.Theme = NormalizeTheme(out.Theme)
	return out, nil
}

// Update applies patch, validates the result and saves it.
func (s *Store) Update(ctx context.Context, patch Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load(ctx)
	if err != nil {
		return cur, err
	}
	if patch.DownloadFolder != nil {
		cur.DownloadFolder = *patch.DownloadFolder
	}
	if patch.DefaultQuality != nil {
		cur.DefaultQuality = *patch.DefaultQuality
	}
	if patch.DefaultFormat != nil {
		cur.DefaultFormat = *patch.DefaultFormat
	}
	if patch.Theme != nil {
		cur.Theme = *patch.Theme
	}
	if err := cur.Validate(); err != nil {
		return Settings{}, err
	}

	data, err := json.Marshal(cur)
	if err != nil {
		return Settings{}, fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.kv.Put(ctx, Key, data); err != nil {
		return Settings{}, err
	}
	return cur, nil
}
