// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package queue

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrNoValidURLs  = errors.New("invalid URL: only HTTP/HTTPS URLs are allowed")
	ErrJobActive    = errors.New("job is running, cancel it first")
	ErrNotRetryable = errors.New("only failed or canceled jobs can be retried")
	ErrNotActive    = errors.New("job has no running process")
	ErrClosed       = errors.New("scheduler is closed")
)

// ValidationError rejects a request before any job is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
