// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package ytdlp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/process"
	"github.com/ZSC714725/mediaqueue/internal/progress"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "mp4 with height cap",
			req:  Request{URL: "https://v", OutputFolder: "/out", Format: job.FormatMP4, Resolution: "720", Title: "Clip"},
			want: []string{
				"--ffmpeg-location", "/opt/ff",
				"--newline", "--no-playlist", "--no-mtime",
				"-o", filepath.Join("/out", "Clip.%(ext)s"),
				"-f", "bestvideo[height<=720]+bestaudio/best[height<=720]/best",
				"--merge-output-format", "mp4",
				"https://v",
			},
		},
		{
			name: "mp3 with bitrate and subtitles",
			req:  Request{URL: "https://v", OutputFolder: "/out", Format: job.FormatMP3, Bitrate: "320", Subtitles: true, Title: "100% Song"},
			want: []string{
				"--ffmpeg-location", "/opt/ff",
				"--newline", "--no-playlist", "--no-mtime",
				"-o", filepath.Join("/out", "100%% Song.%(ext)s"),
				"-x", "--audio-format", "mp3", "--audio-quality", "320K",
				"--write-subs", "--write-auto-subs", "--sub-langs", "en.*,en,-live_chat", "--convert-subs", "srt",
				"https://v",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildArgs(tt.req, "/opt/ff"))
		})
	}
}

func TestBuildArgsDefaults(t *testing.T) {
	args := BuildArgs(Request{URL: "u", OutputFolder: "/o", Format: job.FormatMP3}, "")
	assert.NotContains(t, args, "--ffmpeg-location")
	assert.Contains(t, args, "192K")
	assert.Contains(t, args, filepath.Join("/o", "%(title)s.%(ext)s"))
}

func TestParseMetadata(t *testing.T) {
	md, err := parseMetadata([]byte(`{"title":"  Hello  ","duration_string":"3:05","duration":185,"uploader":"chan"}`))
	require.NoError(t, err)
	assert.Equal(t, Metadata{Title: "Hello", DurationString: "3:05", Uploader: "chan", Duration: 185}, md)

	md, err = parseMetadata([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, UnknownTitle, md.Title)

	_, err = parseMetadata([]byte(`not json`))
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestMetadataWireNames(t *testing.T) {
	raw, err := json.Marshal(Metadata{Title: "Hello", DurationString: "3:05", Uploader: "chan", Duration: 185})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Hello","duration_string":"3:05","uploader":"chan","duration":185}`, string(raw))
}

func TestDownloadReportsProgress(t *testing.T) {
	bin := fakeTool(t, `
echo "[youtube] abc: Downloading webpage"
echo "[download]  12.5% of ~ 4.00MiB at 1MiB/s"
echo "[download] 100% of 4.00MiB"
echo "[Merger] Merging formats"
`)
	c := &Client{Binary: bin}

	var (
		mu     sync.Mutex
		events []progress.Event
	)
	started := false
	err := c.Download(context.Background(), Request{URL: "u", OutputFolder: t.TempDir(), Format: job.FormatMP4}, Observer{
		Progress: func(ev progress.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
		Started: func(*process.Handle) { started = true },
	})
	require.NoError(t, err)
	assert.True(t, started)
	require.Len(t, events, 3)
	assert.Equal(t, 12.5, events[0].Percent)
	assert.Equal(t, progress.PhaseProcessing, events[2].Phase)
}

func TestDownloadFailureCarriesStderr(t *testing.T) {
	bin := fakeTool(t, `
echo "ERROR: [youtube] abc: Private video. Sign in if you've been granted access" >&2
exit 1
`)
	c := &Client{Binary: bin}
	err := c.Download(context.Background(), Request{URL: "u", OutputFolder: t.TempDir(), Format: job.FormatMP4}, Observer{})
	require.Error(t, err)
	assert.Contains(t, process.Diagnostic(err), "Private video")
}

func TestFetchMetadataAndVersion(t *testing.T) {
	bin := fakeTool(t, `
case "$1" in
  --version) echo "2025.01.15" ;;
  *) echo '{"title":"Clip","duration_string":"1:00","duration":60,"uploader":"me"}' ;;
esac
`)
	c := &Client{Binary: bin}

	md, err := c.FetchMetadata(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "Clip", md.Title)
	assert.Equal(t, 60.0, md.Duration)

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025.01.15", v)
}
