// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package pipeline

import "errors"

var (
	ErrNoFeature           = errors.New("select one feature to run")
	ErrMultipleFeatures    = errors.New("only one feature can run at a time")
	ErrInvalidTrimTime     = errors.New("trim time format is invalid")
	ErrTrimOrder           = errors.New("trim end time must be greater than start time")
	ErrTrimEmpty           = errors.New("trim needs a start or an end time")
	ErrInvalidGIFDuration  = errors.New("gif duration is invalid")
	ErrUnsupportedFormat   = errors.New("unsupported target format")
	ErrUnsupportedQuality  = errors.New("unsupported compression quality")
	ErrUnsupportedPreset   = errors.New("unsupported resize preset")
	ErrNoInputs            = errors.New("no input files selected")
	ErrNoValidInputs       = errors.New("no valid media files selected")
	ErrInvalidOutputFolder = errors.New("output folder must be an existing directory")
	ErrNeedsVideo          = errors.New("requires a video stream")
	ErrEmptyOutput         = errors.New("output file does not contain any stream")
	ErrEncoderMissing      = errors.New("required encoder is not available")
	ErrBusy                = errors.New("a pipeline run is already in progress")
	ErrRunNotFound         = errors.New("pipeline run not found")
)
