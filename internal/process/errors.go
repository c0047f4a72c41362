// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package process

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoBinary = errors.New("no valid binary given")
	ErrCanceled = errors.New("process canceled")
	ErrTimeout  = errors.New("process timed out")
)

// ExitError reports a non-zero exit together with the last stderr lines.
type ExitError struct {
	Code int
	Tail []string
}

func (e *ExitError) Error() string {
	if last := e.LastLine(); last != "" {
		return fmt.Sprintf("exit status %d: %s", e.Code, last)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Stderr joins the captured tail.
func (e *ExitError) Stderr() string {
	return strings.Join(e.Tail, "\n")
}

// LastLine is the last non-blank stderr line.
func (e *ExitError) LastLine() string {
	for i := len(e.Tail) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(e.Tail[i]); s != "" {
			return s
		}
	}
	return ""
}

// Diagnostic returns the most useful text for an error from this package.
func Diagnostic(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if s := exitErr.Stderr(); s != "" {
			return s
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
