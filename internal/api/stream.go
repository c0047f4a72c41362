// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ZSC714725/mediaqueue/internal/events"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	streamBuffer = 256
)

var upgrader = websocket.Upgrader{
	// local UI, CORS is already open
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events GET /api/v1/events
//
// Every hub event is written as one JSON text message. The client starts
// with a job.updated event for every job it should know about.
func (h *Handler) Events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.hub.Subscribe(streamBuffer)
	defer unsubscribe()

	for _, j := range h.queue.List() {
		ev := events.Event{Type: events.TypeJobUpdated, Time: time.Now(), Data: j}
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}

	// reader: only needed to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				h.logger.Debug("websocket write: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
