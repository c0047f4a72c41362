// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package api

import (
	"github.com/ZSC714725/mediaqueue/internal/ffmpeg/skills"
)

// SkillsResponse for API
type SkillsResponse struct {
	FFmpeg struct {
		Version       string          `json:"version"`
		Compiler      string          `json:"compiler"`
		Configuration string          `json:"configuration"`
		Libraries     []SkillsLibrary `json:"libraries"`
	} `json:"ffmpeg"`

	Encoders struct {
		Audio    []SkillsEncoder `json:"audio"`
		Video    []SkillsEncoder `json:"video"`
		Subtitle []SkillsEncoder `json:"subtitle"`
	} `json:"encoders"`
}

type SkillsLibrary struct {
	Name     string `json:"name"`
	Compiled string `json:"compiled"`
	Linked   string `json:"linked"`
}

type SkillsEncoder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func skillsToAPI(s skills.Skills) *SkillsResponse {
	resp := &SkillsResponse{}

	resp.FFmpeg.Version = s.FFmpeg.Version
	resp.FFmpeg.Compiler = s.FFmpeg.Compiler
	resp.FFmpeg.Configuration = s.FFmpeg.Configuration
	resp.FFmpeg.Libraries = make([]SkillsLibrary, len(s.FFmpeg.Libraries))
	for i, lib := range s.FFmpeg.Libraries {
		resp.FFmpeg.Libraries[i] = SkillsLibrary{Name: lib.Name, Compiled: lib.Compiled, Linked: lib.Linked}
	}

	resp.Encoders.Audio = encodersToAPI(s.Encoders.Audio)
	resp.Encoders.Video = encodersToAPI(s.Encoders.Video)
	resp.Encoders.Subtitle = encodersToAPI(s.Encoders.Subtitle)

	return resp
}

func encodersToAPI(list []skills.Encoder) []SkillsEncoder {
	out := make([]SkillsEncoder, len(list))
	for i, e := range list {
		out[i] = SkillsEncoder{ID: e.Id, Name: e.Name}
	}
	return out
}
