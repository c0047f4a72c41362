// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const maxBaseLength = 120

// SanitizeBase returns the input filename without extension, with
// characters that are unsafe in filenames replaced.
func SanitizeBase(input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), " .")
	if r := []rune(out); len(r) > maxBaseLength {
		out = strings.TrimRight(string(r[:maxBaseLength]), " .")
	}
	if out == "" {
		out = "output"
	}
	return out
}

// OutputPath picks a path for input under dir following t, adding _1, _2
// and so on while exists reports a clash.
func OutputPath(input, dir string, t Target, exists func(string) bool) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	stem := SanitizeBase(input) + t.Suffix
	candidate := filepath.Join(dir, stem+"."+t.Ext)
	for n := 1; exists(candidate) || samePath(candidate, input); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d.%s", stem, n, t.Ext))
	}
	return candidate
}

func samePath(a, b string) bool {
	ca, errA := filepath.Abs(a)
	cb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ca == cb
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
