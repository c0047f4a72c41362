// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package pipeline turns a single-feature transcoding request into encoder
// invocations and runs them file by file.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/ZSC714725/mediaqueue/internal/progress"
)

// DefaultGIFLength is the clip length when none is given.
const DefaultGIFLength = 10.0

// Options is the wire form of a request: one flag per feature.
type Options struct {
	ConvertEnabled      bool   `json:"convertEnabled"`
	ConvertFormat       string `json:"convertFormat"`
	ResizePreset        string `json:"resizePreset"`
	CompressEnabled     bool   `json:"compressEnabled"`
	CompressionQuality  string `json:"compressionQuality"`
	ExtractAudioEnabled bool   `json:"extractAudioEnabled"`
	ExtractAudioFormat  string `json:"extractAudioFormat"`
	StripAudio          bool   `json:"stripAudio"`
	TrimEnabled         bool   `json:"trimEnabled"`
	TrimStart           string `json:"trimStart"`
	TrimEnd             string `json:"trimEnd"`
	GIFEnabled          bool   `json:"gifEnabled"`
	GIFDuration         string `json:"gifDuration"`
}

func (o Options) enabledCount() int {
	n := 0
	for _, on := range []bool{
		o.ConvertEnabled,
		o.CompressEnabled,
		o.ExtractAudioEnabled,
		o.StripAudio,
		o.TrimEnabled,
		o.GIFEnabled,
		strings.TrimSpace(o.ResizePreset) != "",
	} {
		if on {
			n++
		}
	}
	return n
}

// Feature validates the options and returns the single selected feature.
func (o Options) Feature() (Feature, error) {
	switch o.enabledCount() {
	case 0:
		return nil, ErrNoFeature
	case 1:
	default:
		return nil, ErrMultipleFeatures
	}

	switch {
	case o.ConvertEnabled:
		return NewConvert(o.ConvertFormat)
	case o.CompressEnabled:
		return NewCompress(o.CompressionQuality)
	case o.ExtractAudioEnabled:
		return NewExtractAudio(o.ExtractAudioFormat)
	case o.StripAudio:
		return StripAudio{}, nil
	case o.TrimEnabled:
		return NewTrim(o.TrimStart, o.TrimEnd)
	case o.GIFEnabled:
		return NewGIF(o.TrimStart, o.GIFDuration)
	default:
		return NewResize(o.ResizePreset)
	}
}

// parseOptionalTime parses text, treating blank as absent.
func parseOptionalTime(text string) (*float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	v, ok := progress.ParseFlexibleTime(text)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrimTime, text)
	}
	return &v, nil
}
