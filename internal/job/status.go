// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package job

// Status of a job
type Status string

const (
	StatusQueued      Status = "queued"
	StatusFetching    Status = "fetching"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCanceled    Status = "canceled"
)

func (s Status) String() string { return string(s) }

// IsActive reports whether a worker currently owns the job.
func (s Status) IsActive() bool {
	return s == StatusFetching || s == StatusDownloading || s == StatusProcessing
}

// IsTerminal reports whether the job has stopped for good or until retried.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// IsRetryable reports whether a manual retry may move the job back to queued.
func (s Status) IsRetryable() bool {
	return s == StatusFailed || s == StatusCanceled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// 状态转换表
var transitions = map[Status][]Status{
	StatusQueued:      {StatusFetching, StatusCanceled},
	StatusFetching:    {StatusDownloading, StatusCanceled, StatusFailed},
	StatusDownloading: {StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled},
	StatusProcessing:  {StatusCompleted, StatusFailed, StatusCanceled},
	StatusCompleted:   {},
	StatusFailed:      {StatusQueued, StatusCanceled},
	StatusCanceled:    {StatusQueued},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
