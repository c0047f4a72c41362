// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package api

import (
	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/queue"
)

// JobList is the response of GET /jobs
type JobList struct {
	Jobs  []*job.Job  `json:"jobs"`
	Stats queue.Stats `json:"stats"`
}

// CommandRequest for cancel/retry
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// MetadataRequest for the analyze endpoint
type MetadataRequest struct {
	URL string `json:"url" binding:"required"`
}

// OutputResponse locates the file a job produced.
type OutputResponse struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

// ClearResponse reports how many jobs were removed.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// ToolStatus of one external binary
type ToolStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ToolsResponse for GET /tools
type ToolsResponse struct {
	YTDLP  ToolStatus      `json:"ytdlp"`
	FFmpeg ToolStatus      `json:"ffmpeg"`
	Skills *SkillsResponse `json:"skills,omitempty"`
}

// UpdateResponse carries the updater output.
type UpdateResponse struct {
	Message string `json:"message"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
