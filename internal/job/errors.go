// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package job

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrInvalidFormat     = errors.New("format must be mp3 or mp4")
	ErrInvalidResolution = errors.New("unsupported resolution")
	ErrInvalidBitrate    = errors.New("unsupported mp3 bitrate")
	ErrInvalidRecord     = errors.New("invalid job record")
)

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
