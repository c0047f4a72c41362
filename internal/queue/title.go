// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package queue

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"unicode"
)

const (
	titleChars    = 40
	minTitleChars = 10
	titleStep     = 5
	// a word break is only used past this many characters
	minWordCut = 24
)

// MaxPath is the longest output path the platform accepts.
func MaxPath() int {
	if runtime.GOOS == "windows" {
		return 255
	}
	return 4096
}

// FitTitle turns a video title into an output basename that keeps
// folder/<name>.<ext> within limit, shortening in steps of five
// characters and falling back to the job id.
func FitTitle(title, folder, ext string, id int64, limit int) string {
	if limit <= 0 {
		limit = MaxPath()
	}
	safe := sanitizeTitle(title)
	fits := func(name string) bool {
		return len(filepath.Join(folder, name+"."+ext)) <= limit
	}

	maxChars := titleChars
	name := compactTitle(safe, maxChars)
	for !fits(name) && maxChars > minTitleChars {
		maxChars -= titleStep
		name = compactTitle(safe, maxChars)
	}
	if name == "" || !fits(name) {
		return strconv.FormatInt(id, 10)
	}
	return name
}

// compactTitle collapses whitespace and cuts to maxChars, preferring a word
// break, marking the cut with "...".
func compactTitle(raw string, maxChars int) string {
	text := strings.Join(strings.Fields(raw), " ")
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	slice := runes[:maxChars+1]
	base := runes[:maxChars]
	if cut := lastSpace(slice); cut > minWordCut {
		base = slice[:cut]
	}
	return strings.TrimSpace(string(base)) + "..."
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}

// sanitizeTitle replaces characters that are unsafe in filenames and strips
// leading and trailing dots and spaces.
func sanitizeTitle(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " .")
}
