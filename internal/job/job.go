// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package job holds the download job model and its status machine.

package job

import (
	"strings"
	"time"
)

// Format of the requested output
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatMP4 Format = "mp4"
)

const (
	DefaultResolution = "720"
	DefaultBitrate    = "192"
)

var (
	resolutions = []string{"144", "240", "360", "480", "720", "1080", "1440", "2160"}
	bitrates    = []string{"128", "192", "256", "320"}
)

// ParseFormat accepts mp3 or mp4 in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMP3:
		return FormatMP3, nil
	case FormatMP4:
		return FormatMP4, nil
	}
	return "", ErrInvalidFormat
}

// Resolutions lists the allowed mp4 heights.
func Resolutions() []string { return append([]string(nil), resolutions...) }

// Bitrates lists the allowed mp3 bitrates in kbps.
func Bitrates() []string { return append([]string(nil), bitrates...) }

// ValidResolution reports whether r is an allowed mp4 height.
func ValidResolution(r string) bool { return contains(resolutions, r) }

// ValidBitrate reports whether b is an allowed mp3 bitrate.
func ValidBitrate(b string) bool { return contains(bitrates, b) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Job is one download request and its runtime state.
type Job struct {
	ID           int64  `json:"id"`
	URL          string `json:"url"`
	Format       Format `json:"format"`
	Resolution   string `json:"resolution"`
	Bitrate      string `json:"mp3Bitrate"`
	OutputFolder string `json:"outputFolder"`
	Subtitles    bool   `json:"downloadSubtitles"`
	OpenFolder   bool   `json:"openFolderWhenFinished"`

	Status     Status    `json:"status"`
	Percent    float64   `json:"percent"`
	Size       string    `json:"fileSize"`
	Title      string    `json:"title"`
	OutputPath string    `json:"outputFilePath"`
	Error      string    `json:"error"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key identifies equivalent requests for duplicate detection. Resolution
// only counts for mp4 and bitrate only for mp3.
func (j *Job) Key() string {
	resolution, bitrate := "", ""
	switch j.Format {
	case FormatMP4:
		resolution = j.Resolution
	case FormatMP3:
		bitrate = j.Bitrate
	}
	subs := "nosubs"
	if j.Subtitles {
		subs = "subs"
	}
	return strings.Join([]string{
		j.URL,
		string(j.Format),
		resolution,
		bitrate,
		j.OutputFolder,
		subs,
	}, "::")
}

// Transition moves the job to the next status, or returns
// ErrIllegalTransition leaving the job untouched.
func (j *Job) Transition(to Status, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return transitionError(j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	return nil
}

// SetPercent raises the percent; lower values are ignored.
func (j *Job) SetPercent(p float64) bool {
	if p > 100 {
		p = 100
	}
	if p <= j.Percent {
		return false
	}
	j.Percent = p
	return true
}

// Clone returns a copy safe to hand to other goroutines.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
