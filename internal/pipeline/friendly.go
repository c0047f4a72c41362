// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package pipeline

import "strings"

var friendlyMessages = []struct {
	needles []string
	message string
}{
	{[]string{"requires a video stream"}, "This feature needs a video file. Your selected file is audio-only."},
	{[]string{"trim time format is invalid"}, "Trim time is invalid. Use SS, MM:SS, or HH:MM:SS."},
	{[]string{"trim end time must be greater than start time"}, "Trim end time must be later than start time."},
	{[]string{"only one feature can run at a time"}, "Choose only one feature before starting."},
	{[]string{"select one feature to run"}, "Select one feature to run."},
	{[]string{"no input files selected", "no valid media files selected"}, "Select at least one valid media file."},
	{[]string{"output file does not contain any stream"}, "Cannot create output from this file. It may not have the required stream."},
	{[]string{"ffmpeg exited"}, "Processing failed in FFmpeg. Check your selected feature and file type."},
}

// FriendlyError translates a pipeline failure into a short message.
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "Processing failed. Please try again."
	}
	lower := strings.ToLower(msg)
	for _, f := range friendlyMessages {
		for _, n := range f.needles {
			if strings.Contains(lower, n) {
				return f.message
			}
		}
	}
	return msg
}
