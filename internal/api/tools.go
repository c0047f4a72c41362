// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/mediaqueue/internal/ffmpeg"
	"github.com/ZSC714725/mediaqueue/internal/process"
)

// Tools GET /api/v1/tools
func (h *Handler) Tools(c *gin.Context) {
	resp := ToolsResponse{}

	if version, err := h.tools.Version(c.Request.Context()); err != nil {
		resp.YTDLP.Error = process.Diagnostic(err)
	} else {
		resp.YTDLP.Available = true
		resp.YTDLP.Version = version
	}

	if h.ffmpeg == nil {
		resp.FFmpeg.Error = ffmpeg.ErrBinaryNotFound.Error()
	} else {
		sk := h.ffmpeg.Skills()
		resp.FFmpeg.Available = true
		resp.FFmpeg.Path = h.ffmpeg.Binary()
		resp.FFmpeg.Version = sk.FFmpeg.Version
		resp.Skills = skillsToAPI(sk)
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateYTDLP POST /api/v1/tools/ytdlp/update
func (h *Handler) UpdateYTDLP(c *gin.Context) {
	out, err := h.tools.Update(c.Request.Context())
	if err != nil {
		errResp(c, http.StatusBadGateway, "Update failed", process.Diagnostic(err))
		return
	}
	h.logger.Info("yt-dlp update: %s", out)
	c.JSON(http.StatusOK, UpdateResponse{Message: out})
}

// ReloadSkills POST /api/v1/tools/ffmpeg/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if h.ffmpeg == nil {
		errResp(c, http.StatusServiceUnavailable, "FFmpeg not available", ffmpeg.ErrBinaryNotFound.Error())
		return
	}
	if err := h.ffmpeg.ReloadSkills(); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(h.ffmpeg.Skills()))
}
