// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/store"
)

func newStore(t *testing.T) (*Store, store.KV) {
	t.Helper()
	kv, err := store.NewFileKV(t.TempDir())
	require.NoError(t, err)
	return NewStore(kv, nil), kv
}

func ptr(s string) *string { return &s }

func TestLoadDefaults(t *testing.T) {
	s, _ := newStore(t)
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestUpdateMergesAndPersists(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t)
	folder := t.TempDir()

	got, err := s.Update(ctx, Patch{DownloadFolder: ptr(folder), Theme: ptr(ThemeDark)})
	require.NoError(t, err)
	assert.Equal(t, folder, got.DownloadFolder)
	assert.Equal(t, ThemeDark, got.Theme)
	assert.Equal(t, job.DefaultResolution, got.DefaultQuality)

	got, err = NewStore(kv, nil).Update(ctx, Patch{DefaultFormat: ptr("mp3"), DefaultQuality: ptr("1080")})
	require.NoError(t, err)
	assert.Equal(t, folder, got.DownloadFolder)
	assert.Equal(t, "mp3", got.DefaultFormat)
	assert.Equal(t, "1080", got.DefaultQuality)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, err := s.Update(ctx, Patch{DownloadFolder: ptr("relative/dir")})
	assert.ErrorIs(t, err, ErrInvalidFolder)
	_, err = s.Update(ctx, Patch{DownloadFolder: ptr(filepath.Join(t.TempDir(), "missing"))})
	assert.ErrorIs(t, err, ErrInvalidFolder)
	_, err = s.Update(ctx, Patch{Theme: ptr("neon")})
	assert.ErrorIs(t, err, ErrInvalidTheme)
	_, err = s.Update(ctx, Patch{DefaultQuality: ptr("999")})
	assert.ErrorIs(t, err, ErrInvalidQuality)
	_, err = s.Update(ctx, Patch{DefaultFormat: ptr("avi")})
	assert.ErrorIs(t, err, job.ErrInvalidFormat)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestLoadNormalizesUnknownTheme(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t)
	require.NoError(t, kv.Put(ctx, Key, []byte(`{"theme":"sepia","defaultFormat":"mp3"}`)))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeSystem, got.Theme)
	assert.Equal(t, "mp3", got.DefaultFormat)
}
