// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZSC714725/mediaqueue/internal/progress"
)

const (
	suffixAudio     = "_audio"
	suffixProcessed = "_processed"
)

// Target is the output naming policy of a feature for one input.
type Target struct {
	Suffix string
	Ext    string
}

// Feature is one transcoding operation.
type Feature interface {
	Name() string
	// NeedsVideo reports whether inputs must carry a video stream.
	NeedsVideo() bool
	// Target decides the output suffix and extension for input.
	Target(input string) Target
	// Args returns the encoder arguments reading input and writing output.
	Args(input, output string) []string
	// Span is the expected output duration given the input duration.
	Span(duration float64) float64
	// Encoders lists the encoders the arguments rely on.
	Encoders() []string
}

type audioCodec struct {
	args    []string
	encoder string
}

var audioCodecs = map[string]audioCodec{
	"mp3":  {[]string{"-c:a", "libmp3lame", "-q:a", "2"}, "libmp3lame"},
	"wav":  {[]string{"-c:a", "pcm_s16le"}, "pcm_s16le"},
	"m4a":  {[]string{"-c:a", "aac", "-b:a", "192k"}, "aac"},
	"aac":  {[]string{"-c:a", "aac", "-b:a", "192k"}, "aac"},
	"flac": {[]string{"-c:a", "flac"}, "flac"},
	"ogg":  {[]string{"-c:a", "libvorbis", "-q:a", "5"}, "libvorbis"},
}

type videoCodec struct {
	args     []string
	encoders []string
}

var videoCodecs = map[string]videoCodec{
	"mp4":  {[]string{"-c:v", "libx264", "-preset", "medium", "-crf", "23", "-c:a", "aac", "-b:a", "192k", "-movflags", "+faststart"}, []string{"libx264", "aac"}},
	"mov":  {[]string{"-c:v", "libx264", "-preset", "medium", "-crf", "23", "-c:a", "aac", "-b:a", "192k", "-movflags", "+faststart"}, []string{"libx264", "aac"}},
	"mkv":  {[]string{"-c:v", "libx264", "-preset", "medium", "-crf", "23", "-c:a", "aac", "-b:a", "192k"}, []string{"libx264", "aac"}},
	"webm": {[]string{"-c:v", "libvpx-vp9", "-crf", "32", "-b:v", "0", "-c:a", "libopus"}, []string{"libvpx-vp9", "libopus"}},
}

// VideoFormats lists the convert targets that keep video.
func VideoFormats() []string { return []string{"mp4", "mkv", "webm", "mov"} }

// AudioFormats lists the audio targets.
func AudioFormats() []string { return []string{"mp3", "wav", "m4a", "aac", "flac", "ogg"} }

func normalizeFormat(f string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
}

func inputExt(input string) string {
	ext := normalizeFormat(filepath.Ext(input))
	if _, ok := videoCodecs[ext]; ok {
		return ext
	}
	return "mp4"
}

// Convert re-encodes into another container or an audio format.
type Convert struct {
	Format string
}

// NewConvert validates the target format.
func NewConvert(format string) (Convert, error) {
	f := normalizeFormat(format)
	if _, ok := videoCodecs[f]; ok {
		return Convert{Format: f}, nil
	}
	if _, ok := audioCodecs[f]; ok {
		return Convert{Format: f}, nil
	}
	return Convert{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func (c Convert) Name() string { return "convert" }

func (c Convert) NeedsVideo() bool {
	_, ok := videoCodecs[c.Format]
	return ok
}

func (c Convert) Target(string) Target { return Target{Suffix: suffixProcessed, Ext: c.Format} }

func (c Convert) Args(input, output string) []string {
	args := []string{"-i", input}
	if vc, ok := videoCodecs[c.Format]; ok {
		args = append(args, vc.args...)
	} else {
		args = append(args, "-vn")
		args = append(args, audioCodecs[c.Format].args...)
	}
	return append(args, output)
}

func (c Convert) Span(d float64) float64 { return d }

func (c Convert) Encoders() []string {
	if vc, ok := videoCodecs[c.Format]; ok {
		return vc.encoders
	}
	return []string{audioCodecs[c.Format].encoder}
}

type tier struct {
	crf    int
	height int
}

var compressTiers = map[string]tier{
	"small":  {28, 480},
	"medium": {23, 720},
	"high":   {20, 1080},
}

// Compress re-encodes to H.264 with a quality tier.
type Compress struct {
	Quality string
}

// NewCompress validates the tier; blank means medium.
func NewCompress(quality string) (Compress, error) {
	q := strings.ToLower(strings.TrimSpace(quality))
	if q == "" {
		q = "medium"
	}
	if _, ok := compressTiers[q]; !ok {
		return Compress{}, fmt.Errorf("%w: %q", ErrUnsupportedQuality, quality)
	}
	return Compress{Quality: q}, nil
}

func (c Compress) Name() string { return "compress" }

func (c Compress) NeedsVideo() bool { return true }

func (c Compress) Target(string) Target { return Target{Suffix: suffixProcessed, Ext: "mp4"} }

func (c Compress) Args(input, output string) []string {
	t := compressTiers[c.Quality]
	return []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale=-2:%d", t.height),
		"-c:v", "libx264", "-preset", "medium", "-crf", fmt.Sprint(t.crf),
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		output,
	}
}

func (c Compress) Span(d float64) float64 { return d }

func (c Compress) Encoders() []string { return []string{"libx264", "aac"} }

// ExtractAudio writes only the audio stream.
type ExtractAudio struct {
	Format string
}

// NewExtractAudio validates the audio format; blank means mp3.
func NewExtractAudio(format string) (ExtractAudio, error) {
	f := normalizeFormat(format)
	if f == "" {
		f = "mp3"
	}
	if _, ok := audioCodecs[f]; !ok {
		return ExtractAudio{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return ExtractAudio{Format: f}, nil
}

func (e ExtractAudio) Name() string { return "extract-audio" }

func (e ExtractAudio) NeedsVideo() bool { return false }

func (e ExtractAudio) Target(string) Target { return Target{Suffix: suffixAudio, Ext: e.Format} }

func (e ExtractAudio) Args(input, output string) []string {
	args := []string{"-i", input, "-vn"}
	args = append(args, audioCodecs[e.Format].args...)
	return append(args, output)
}

func (e ExtractAudio) Span(d float64) float64 { return d }

func (e ExtractAudio) Encoders() []string { return []string{audioCodecs[e.Format].encoder} }

// StripAudio copies the video and drops audio.
type StripAudio struct{}

func (StripAudio) Name() string { return "strip-audio" }

func (StripAudio) NeedsVideo() bool { return true }

func (StripAudio) Target(input string) Target {
	return Target{Suffix: suffixProcessed, Ext: inputExt(input)}
}

func (StripAudio) Args(input, output string) []string {
	return []string{"-i", input, "-c:v", "copy", "-an", output}
}

func (StripAudio) Span(d float64) float64 { return d }

func (StripAudio) Encoders() []string { return nil }

// Trim cuts a time window without re-encoding. Nil bounds are open.
type Trim struct {
	Start *float64
	End   *float64
}

// NewTrim parses both bounds; at least one is required.
func NewTrim(start, end string) (Trim, error) {
	s, err := parseOptionalTime(start)
	if err != nil {
		return Trim{}, err
	}
	e, err := parseOptionalTime(end)
	if err != nil {
		return Trim{}, err
	}
	if s == nil && e == nil {
		return Trim{}, ErrTrimEmpty
	}
	if s != nil && e != nil && *e <= *s {
		return Trim{}, ErrTrimOrder
	}
	return Trim{Start: s, End: e}, nil
}

func (t Trim) Name() string { return "trim" }

func (t Trim) NeedsVideo() bool { return false }

func (t Trim) Target(input string) Target {
	ext := normalizeFormat(filepath.Ext(input))
	if ext == "" {
		ext = "mp4"
	}
	return Target{Suffix: suffixProcessed, Ext: ext}
}

func (t Trim) Args(input, output string) []string {
	args := []string{"-i", input}
	if t.Start != nil {
		args = append(args, "-ss", progress.FormatSeconds(*t.Start))
	}
	if t.End != nil {
		args = append(args, "-to", progress.FormatSeconds(*t.End))
	}
	return append(args, "-c", "copy", output)
}

func (t Trim) Span(d float64) float64 {
	start, end := 0.0, d
	if t.Start != nil {
		start = *t.Start
	}
	if t.End != nil && (*t.End < end || d <= 0) {
		end = *t.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

func (t Trim) Encoders() []string { return nil }

// GIF renders a short animated clip.
type GIF struct {
	Start  float64
	Length float64
}

// NewGIF parses the start (blank means 0) and the clip length (blank
// means DefaultGIFLength).
func NewGIF(start, length string) (GIF, error) {
	s, err := parseOptionalTime(start)
	if err != nil {
		return GIF{}, err
	}
	g := GIF{Length: DefaultGIFLength}
	if s != nil {
		g.Start = *s
	}
	if strings.TrimSpace(length) != "" {
		l, ok := progress.ParseFlexibleTime(length)
		if !ok || l <= 0 {
			return GIF{}, fmt.Errorf("%w: %q", ErrInvalidGIFDuration, length)
		}
		g.Length = l
	}
	return g, nil
}

func (g GIF) Name() string { return "gif" }

func (g GIF) NeedsVideo() bool { return true }

func (g GIF) Target(string) Target { return Target{Ext: "gif"} }

func (g GIF) Args(input, output string) []string {
	return []string{
		"-ss", progress.FormatSeconds(g.Start),
		"-t", progress.FormatSeconds(g.Length),
		"-i", input,
		"-vf", "fps=10,scale=500:-1:flags=lanczos",
		"-loop", "0",
		output,
	}
}

func (g GIF) Span(d float64) float64 {
	if d <= 0 {
		return g.Length
	}
	rest := d - g.Start
	if rest <= 0 {
		return 0
	}
	if rest < g.Length {
		return rest
	}
	return g.Length
}

func (g GIF) Encoders() []string { return []string{"gif"} }

var resizePresets = map[string]int{
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

// Resize scales to a preset height keeping the aspect ratio.
type Resize struct {
	Preset string
}

// NewResize accepts "720p" or "720".
func NewResize(preset string) (Resize, error) {
	p := strings.ToLower(strings.TrimSpace(preset))
	if !strings.HasSuffix(p, "p") {
		p += "p"
	}
	if _, ok := resizePresets[p]; !ok {
		return Resize{}, fmt.Errorf("%w: %q", ErrUnsupportedPreset, preset)
	}
	return Resize{Preset: p}, nil
}

func (r Resize) Name() string { return "resize" }

func (r Resize) NeedsVideo() bool { return true }

// Target keeps the input container except webm, which cannot hold H.264.
func (r Resize) Target(input string) Target {
	ext := inputExt(input)
	if ext == "webm" {
		ext = "mp4"
	}
	return Target{Suffix: suffixProcessed, Ext: ext}
}

func (r Resize) Args(input, output string) []string {
	return []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale=-2:%d", resizePresets[r.Preset]),
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "192k",
		output,
	}
}

func (r Resize) Span(d float64) float64 { return d }

func (r Resize) Encoders() []string { return []string{"libx264", "aac"} }
