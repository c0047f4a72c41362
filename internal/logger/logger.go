// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Named(name string) Logger
}

// Options for constructing a logger
type Options struct {
	Name   string
	Level  string
	Output io.Writer
}

type hclogLogger struct {
	hc hclog.Logger
}

// New creates a logger named prefix at info level writing to stderr.
func New(prefix string) Logger {
	return NewWithOptions(Options{Name: prefix})
}

// NewWithOptions creates a logger backed by hclog.
func NewWithOptions(opts Options) Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return &hclogLogger{
		hc: hclog.New(&hclog.LoggerOptions{
			Name:   opts.Name,
			Level:  ParseLevel(opts.Level),
			Output: out,
		}),
	}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &hclogLogger{hc: hclog.NewNullLogger()}
}

// ParseLevel maps a config string onto an hclog level; unknown values mean info.
func ParseLevel(level string) hclog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return hclog.Trace
	case "debug":
		return hclog.Debug
	case "warn", "warning":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}

func (l *hclogLogger) Info(format string, args ...interface{}) {
	l.hc.Info(fmt.Sprintf(format, args...))
}

func (l *hclogLogger) Warn(format string, args ...interface{}) {
	l.hc.Warn(fmt.Sprintf(format, args...))
}

func (l *hclogLogger) Error(format string, args ...interface{}) {
	l.hc.Error(fmt.Sprintf(format, args...))
}

func (l *hclogLogger) Debug(format string, args ...interface{}) {
	if !l.hc.IsDebug() && !l.hc.IsTrace() {
		return
	}
	l.hc.Debug(fmt.Sprintf(format, args...))
}

func (l *hclogLogger) Named(name string) Logger {
	return &hclogLogger{hc: l.hc.Named(name)}
}
