// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package progress turns tool output lines into progress values.

package progress

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Phase of a download
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseProcessing  Phase = "processing"
)

// Event is one parsed progress observation.
type Event struct {
	Percent         float64
	TransferredSize string
	Phase           Phase
}

var (
	reDownload = regexp.MustCompile(`(\d+\.?\d*)%\s+of\s+~?\s*([\d.]+\s*\w+)`)
	reTime     = regexp.MustCompile(`time=\s*([0-9]+):([0-9]{2}):([0-9]{2})(?:\.([0-9]+))?`)
)

// ParseDownloadLine extracts a progress event from a downloader stdout line.
func ParseDownloadLine(line string) (Event, bool) {
	if strings.Contains(line, "[Merger]") || strings.Contains(line, "[ExtractAudio]") {
		return Event{Percent: 99, Phase: PhaseProcessing}, true
	}

	m := reDownload.FindStringSubmatch(line)
	if m == nil {
		return Event{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Event{}, false
	}
	return Event{
		Percent:         pct,
		TransferredSize: strings.TrimSpace(m[2]),
		Phase:           PhaseDownloading,
	}, true
}

// ParseEncoderTime extracts the elapsed media time from an encoder progress
// line such as "frame=  42 ... time=00:01:02.50 ...".
func ParseEncoderTime(line string) (float64, bool) {
	m := reTime.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	frac := 0.0
	if m[4] != "" {
		if x, err := strconv.ParseFloat("0."+m[4], 64); err == nil {
			frac = x
		}
	}
	return float64(h*3600+mm*60+s) + frac, true
}

// Tracker converts elapsed media time into a monotonic percent for one file.
type Tracker struct {
	total float64
	last  int
	mu    sync.Mutex
}

// NewTracker returns a tracker for a file of total seconds. An unknown total
// (zero or negative) never reports.
func NewTracker(total float64) *Tracker {
	return &Tracker{total: total, last: -1}
}

// Observe returns min(99, round(elapsed/total*100)) when it exceeds the last
// reported value.
func (t *Tracker) Observe(elapsed float64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.total <= 0 || elapsed < 0 {
		return 0, false
	}
	pct := int(math.Round(elapsed / t.total * 100))
	if pct > 99 {
		pct = 99
	}
	if pct <= t.last {
		return 0, false
	}
	t.last = pct
	return pct, true
}

// ParseFlexibleTime parses S, S.frac, MM:SS or HH:MM:SS into seconds.
func ParseFlexibleTime(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return 0, false
	}

	total := 0.0
	for i, p := range parts {
		last := i == len(parts)-1
		var v float64
		if last {
			if !isDecimal(p) {
				return 0, false
			}
			v, _ = strconv.ParseFloat(p, 64)
		} else {
			if !isDigits(p) {
				return 0, false
			}
			n, _ := strconv.Atoi(p)
			v = float64(n)
		}
		if i > 0 && v >= 60 {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	whole, frac, hasDot := strings.Cut(s, ".")
	if !isDigits(whole) {
		return false
	}
	return !hasDot || isDigits(frac)
}

// FormatSeconds renders seconds the way ffmpeg accepts them, without
// trailing zeros.
func FormatSeconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ETA estimates remaining seconds from wall time spent and percent done.
func ETA(elapsed time.Duration, percent float64) (int, bool) {
	if percent <= 0 || percent >= 100 || elapsed <= 0 {
		return 0, false
	}
	remaining := elapsed.Seconds() * (100 - percent) / percent
	return int(math.Round(remaining)), true
}
