// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusQueued, StatusFetching, StatusDownloading, StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled}
	allowed := map[Status][]Status{
		StatusQueued:      {StatusFetching, StatusCanceled},
		StatusFetching:    {StatusDownloading, StatusCanceled, StatusFailed},
		StatusDownloading: {StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled},
		StatusProcessing:  {StatusCompleted, StatusFailed, StatusCanceled},
		StatusFailed:      {StatusQueued, StatusCanceled},
		StatusCanceled:    {StatusQueued},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestJobTransitionRejectsIllegalMove(t *testing.T) {
	now := time.Now()
	j := &Job{ID: 1, Status: StatusCompleted}
	err := j.Transition(StatusQueued, now)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StatusCompleted, j.Status)

	j.Status = StatusQueued
	require.NoError(t, j.Transition(StatusFetching, now))
	assert.Equal(t, StatusFetching, j.Status)
	assert.Equal(t, now, j.UpdatedAt)
}

func TestKeyIncludesIntent(t *testing.T) {
	a := &Job{URL: "https://x/v", Format: FormatMP4, Resolution: "720", Bitrate: "192", OutputFolder: "/out"}
	b := a.Clone()
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "https://x/v::mp4::720::::/out::nosubs", a.Key())

	d := a.Clone()
	d.Bitrate = "320"
	assert.Equal(t, a.Key(), d.Key())

	b.Subtitles = true
	assert.NotEqual(t, a.Key(), b.Key())

	c := a.Clone()
	c.Resolution = "1080"
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestSetPercentIsMonotonic(t *testing.T) {
	j := &Job{}
	assert.True(t, j.SetPercent(10))
	assert.False(t, j.SetPercent(5))
	assert.True(t, j.SetPercent(150))
	assert.Equal(t, 100.0, j.Percent)
}

func TestAllowedValues(t *testing.T) {
	assert.True(t, ValidResolution("2160"))
	assert.False(t, ValidResolution("4320"))
	assert.True(t, ValidBitrate("320"))
	assert.False(t, ValidBitrate("64"))

	f, err := ParseFormat(" MP4 ")
	require.NoError(t, err)
	assert.Equal(t, FormatMP4, f)
	_, err = ParseFormat("wav")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestRecordRoundTripAndDefaults(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	j := &Job{
		ID: 7, URL: "https://x/v", Format: FormatMP3, Resolution: "720", Bitrate: "320",
		OutputFolder: "/out", Status: StatusCompleted, Percent: 100, Title: "t",
		CreatedAt: now, UpdatedAt: now,
	}
	back, err := j.ToRecord().Job()
	require.NoError(t, err)
	assert.Equal(t, j, back)

	r := Record{ID: 2, URL: "https://x", Format: "mp4", OutputFolder: "/o", Status: "weird"}
	got, err := r.Job()
	require.NoError(t, err)
	assert.Equal(t, DefaultResolution, got.Resolution)
	assert.Equal(t, DefaultBitrate, got.Bitrate)
	assert.Equal(t, StatusQueued, got.Status)
}

func TestRecordRejectsMalformed(t *testing.T) {
	bad := []Record{
		{ID: 0, URL: "u", Format: "mp3", OutputFolder: "/o"},
		{ID: 1, URL: "", Format: "mp3", OutputFolder: "/o"},
		{ID: 1, URL: "u", Format: "avi", OutputFolder: "/o"},
		{ID: 1, URL: "u", Format: "mp3", OutputFolder: ""},
	}
	for _, r := range bad {
		_, err := r.Job()
		assert.ErrorIs(t, err, ErrInvalidRecord)
	}
}
