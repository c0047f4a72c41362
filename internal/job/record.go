// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package job

import (
	"fmt"
	"strings"
	"time"
)

// Record is the persisted form of a job.
type Record struct {
	ID           int64   `json:"id"`
	URL          string  `json:"url"`
	Format       string  `json:"format"`
	Resolution   string  `json:"resolution"`
	Bitrate      string  `json:"mp3Bitrate"`
	OpenFolder   bool    `json:"openFolderWhenFinished"`
	Subtitles    bool    `json:"downloadSubtitles"`
	OutputFolder string  `json:"outputFolder"`
	OutputPath   string  `json:"outputFilePath"`
	Status       string  `json:"status"`
	Percent      float64 `json:"percent"`
	Size         string  `json:"fileSize"`
	Title        string  `json:"title"`
	Error        string  `json:"error"`
	CreatedAt    int64   `json:"createdAt,omitempty"`
	UpdatedAt    int64   `json:"updatedAt,omitempty"`
}

// ToRecord converts a job into its persisted form.
func (j *Job) ToRecord() Record {
	r := Record{
		ID:           j.ID,
		URL:          j.URL,
		Format:       string(j.Format),
		Resolution:   j.Resolution,
		Bitrate:      j.Bitrate,
		OpenFolder:   j.OpenFolder,
		Subtitles:    j.Subtitles,
		OutputFolder: j.OutputFolder,
		OutputPath:   j.OutputPath,
		Status:       string(j.Status),
		Percent:      j.Percent,
		Size:         j.Size,
		Title:        j.Title,
		Error:        j.Error,
	}
	if !j.CreatedAt.IsZero() {
		r.CreatedAt = j.CreatedAt.UnixMilli()
	}
	if !j.UpdatedAt.IsZero() {
		r.UpdatedAt = j.UpdatedAt.UnixMilli()
	}
	return r
}

// Job validates the record and converts it back. Missing resolution or
// bitrate fall back to the defaults, an unknown status to queued.
func (r Record) Job() (*Job, error) {
	if r.ID < 1 {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidRecord, r.ID)
	}
	if strings.TrimSpace(r.URL) == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidRecord)
	}
	format, err := ParseFormat(r.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if strings.TrimSpace(r.OutputFolder) == "" {
		return nil, fmt.Errorf("%w: empty output folder", ErrInvalidRecord)
	}
	status := Status(r.Status)
	if !status.Valid() {
		status = StatusQueued
	}

	j := &Job{
		ID:           r.ID,
		URL:          r.URL,
		Format:       format,
		Resolution:   r.Resolution,
		Bitrate:      r.Bitrate,
		OutputFolder: r.OutputFolder,
		Subtitles:    r.Subtitles,
		OpenFolder:   r.OpenFolder,
		Status:       status,
		Percent:      r.Percent,
		Size:         r.Size,
		Title:        r.Title,
		OutputPath:   r.OutputPath,
		Error:        r.Error,
	}
	if !ValidResolution(j.Resolution) {
		j.Resolution = DefaultResolution
	}
	if !ValidBitrate(j.Bitrate) {
		j.Bitrate = DefaultBitrate
	}
	if r.CreatedAt > 0 {
		j.CreatedAt = time.UnixMilli(r.CreatedAt)
	}
	if r.UpdatedAt > 0 {
		j.UpdatedAt = time.UnixMilli(r.UpdatedAt)
	}
	return j, nil
}
