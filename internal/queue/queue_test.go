// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/mediaqueue/internal/job"
)

func TestCompactTitle(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"  Hello   world  ", 40, "Hello world"},
		{"", 40, ""},
		{"The quick brown fox jumps over the lazy dog again and again", 40, "The quick brown fox jumps over the lazy..."},
		{"The quick brown fox jumps over the lazy dog again and again", 15, "The quick brown..."},
		{strings.Repeat("x", 50), 40, strings.Repeat("x", 40) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compactTitle(tt.in, tt.max), tt.in)
	}
}

func TestFitTitle(t *testing.T) {
	long := "The quick brown fox jumps over the lazy dog again and again"

	assert.Equal(t, "The quick brown fox jumps over the lazy...", FitTitle(long, "/tmp/x", "mp4", 42, 0))
	// "/tmp/x/" + name + ".mp4" must stay within 30
	assert.Equal(t, "The quick brown...", FitTitle(long, "/tmp/x", "mp4", 42, 30))
	assert.Equal(t, "42", FitTitle(long, "/tmp/x", "mp4", 42, 15))
	assert.Equal(t, "7", FitTitle("  ", "/tmp/x", "mp3", 7, 0))
	assert.Equal(t, "a_b_c_", FitTitle(`a/b:c?`, "/tmp/x", "mp3", 7, 0))
	assert.Equal(t, "x", FitTitle("..x..", "/tmp/x", "mp3", 7, 0))
}

func TestResolveOutputPrefersExtensionOverRecency(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Minute).Truncate(time.Second)

	touch(t, dir, "My Video.mp4", base)
	touch(t, dir, "My Video (1).webm", base.Add(10*time.Second))
	touch(t, dir, "My Video.mp4.part", base.Add(20*time.Second))

	path, ok := ResolveOutput(dir, "My Video", job.FormatMP4, time.Time{})
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "My Video.mp4"), path)
}

func TestResolveOutputNewestWinsOnEqualScores(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Minute).Truncate(time.Second)

	touch(t, dir, "Clip.mp3", base)
	touch(t, dir, "CLIP (1).mp3", base.Add(5*time.Second))
	touch(t, dir, "unrelated.mp3", base.Add(30*time.Second))

	path, ok := ResolveOutput(dir, "clip", job.FormatMP3, time.Time{})
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "CLIP (1).mp3"), path)
}

func TestResolveOutputIgnoresOldFiles(t *testing.T) {
	dir := t.TempDir()
	start := time.Now().Truncate(time.Second)

	touch(t, dir, "Song (live).mp3", start.Add(-time.Hour))
	_, ok := ResolveOutput(dir, "Song", job.FormatMP3, start)
	assert.False(t, ok)

	touch(t, dir, "Song (1).mp3", start.Add(time.Second))
	path, ok := ResolveOutput(dir, "Song", job.FormatMP3, start)
	require.True(t, ok)
	assert.Equal(t, "Song (1).mp3", filepath.Base(path))

	_, ok = ResolveOutput(filepath.Join(dir, "missing"), "Song", job.FormatMP3, start)
	assert.False(t, ok)
}

func TestResolveOutputAcceptsExactNameWithOldTime(t *testing.T) {
	dir := t.TempDir()
	start := time.Now().Truncate(time.Second)

	// the downloader may stamp the server's Last-Modified time on the file
	touch(t, dir, "My Video.mp4", start.Add(-48*time.Hour))
	touch(t, dir, "My Video (1).mp4", start.Add(-48*time.Hour))

	path, ok := ResolveOutput(dir, "My Video", job.FormatMP4, start.Add(-time.Minute))
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "My Video.mp4"), path)

	_, ok = ResolveOutput(dir, "My Video", job.FormatMP3, start.Add(-time.Minute))
	assert.False(t, ok)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "my video 1", normalizeName("My  Video (1)"))
	assert.Equal(t, "strasse", normalizeName("STRASSE!"))
	assert.Equal(t, "", normalizeName("...---"))
}

func touch(t *testing.T, dir, name string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "Unknown error occurred."},
		{"ERROR: [youtube] abc: Private video. Sign in if you've been granted access", "This video is private."},
		{"ERROR: Video unavailable", "Video is unavailable or has been removed."},
		{"ERROR: Sign in to confirm your age", "This content requires login to access."},
		{"urlopen error [Errno -2] Name or service not known ENOTFOUND", "Network error. Check your internet connection."},
		{"dial tcp: lookup example.com: no such host", "Network error. Check your internet connection."},
		{"[Errno 111] Connection refused", "Connection failed. Check your internet and try again."},
		{"ERROR: Unsupported URL: https://example.com", "This URL or site is not supported."},
		{"yt-dlp: process timed out after 10m0s", "Download timed out after 10 minutes."},
		{"HTTP Error 429", "Too many requests. Please wait and try again."},
		{"OSError: [Errno 22] Invalid argument: 'C:\\x'", "Windows rejected the generated file path/name. Try a shorter output folder path and retry."},
		{"ERROR: Requested format is not available", "Selected quality is unavailable for this video. Try a lower resolution."},
		{"use --cookies-from-browser", "This content requires login/cookies to download."},
		{"something odd", "something odd"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FriendlyError(tt.raw), tt.raw)
	}

	long := strings.Repeat("é", 300)
	assert.Equal(t, strings.Repeat("é", 240), FriendlyError(long))
}

func TestPolicy(t *testing.T) {
	var open *Policy
	assert.NoError(t, open.Check("https://example.com/a"))
	assert.Error(t, open.Check("ftp://example.com/a"))
	assert.Error(t, open.Check("https://"))
	assert.Error(t, open.Check("not a url"))
	assert.NoError(t, open.Check("HTTP://example.com/a"))

	p, err := NewPolicy([]string{`^https://(www\.)?youtube\.com/`, " "}, []string{`list=`})
	require.NoError(t, err)
	assert.NoError(t, p.Check("https://youtube.com/watch?v=1"))
	assert.Error(t, p.Check("https://vimeo.com/1"))

	err = p.Check("https://www.youtube.com/watch?v=1&list=2")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "url", verr.Field)
	assert.Contains(t, verr.Reason, "blocked")

	_, err = NewPolicy([]string{"("}, nil)
	assert.Error(t, err)
}
