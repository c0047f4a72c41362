// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package queue

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/ZSC714725/mediaqueue/internal/job"
)

// Files the downloader leaves behind while it is still writing.
var partialExtensions = []string{".part", ".ytdl", ".temp"}

// Slack for filesystems with coarse modification times.
const mtimeSlack = 2 * time.Second

type candidate struct {
	path       string
	titleScore int
	extScore   int
	modTime    time.Time
}

// ResolveOutput picks the most plausible file written for title in folder
// since the given time. A file named exactly title plus the format
// extension qualifies whatever its modification time. Candidates are
// ranked by title match, then by extension match with the format, then
// newest first. It returns false when nothing qualifies.
func ResolveOutput(folder, title string, format job.Format, since time.Time) (string, bool) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", false
	}

	wantTitle := normalizeName(title)
	wantExt := "." + string(format)
	cutoff := since.Add(-mtimeSlack)
	exact := title + wantExt

	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		name := entry.Name()
		if !since.IsZero() && info.ModTime().Before(cutoff) && name != exact {
			continue
		}

		ext := filepath.Ext(name)
		c := candidate{
			path:    filepath.Join(folder, name),
			modTime: info.ModTime(),
		}
		got := normalizeName(strings.TrimSuffix(name, ext))
		if wantTitle != "" && got != "" && (strings.Contains(got, wantTitle) || strings.Contains(wantTitle, got)) {
			c.titleScore = 1
		}
		if strings.EqualFold(ext, wantExt) {
			c.extScore = 1
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.titleScore != b.titleScore {
			return a.titleScore > b.titleScore
		}
		if a.extScore != b.extScore {
			return a.extScore > b.extScore
		}
		return a.modTime.After(b.modTime)
	})
	return candidates[0].path, true
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range partialExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// normalizeName folds case and reduces s to letters and digits separated
// by single spaces.
func normalizeName(s string) string {
	folded := cases.Fold().String(s)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
