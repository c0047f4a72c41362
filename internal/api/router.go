// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default())
	h.Register(r.Group("/api/v1"))
	return r
}

// Register adds the routes to g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/jobs", h.ListJobs)
	g.POST("/jobs", h.AddJobs)
	g.POST("/jobs/start", h.StartJobs)
	g.POST("/jobs/clear", h.ClearCompleted)
	g.GET("/jobs/:id", h.GetJob)
	g.DELETE("/jobs/:id", h.DeleteJob)
	g.PUT("/jobs/:id/command", h.Command)
	g.GET("/jobs/:id/output", h.GetOutput)
	g.GET("/jobs/:id/state", h.GetState)

	g.POST("/metadata", h.Metadata)

	g.POST("/pipeline", h.StartPipeline)
	g.GET("/pipeline/:id", h.GetPipeline)
	g.DELETE("/pipeline/:id", h.CancelPipeline)

	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.UpdateSettings)

	g.GET("/tools", h.Tools)
	g.POST("/tools/ytdlp/update", h.UpdateYTDLP)
	g.POST("/tools/ffmpeg/reload", h.ReloadSkills)

	g.GET("/events", h.Events)
}
