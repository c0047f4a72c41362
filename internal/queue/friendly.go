// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package queue

import "strings"

const (
	CanceledMessage      = "Download canceled by user."
	CancelRequested      = "Cancel requested..."
	MissingOutputMessage = "Download finished but the output file could not be found."

	maxErrorChars = 240
)

// 匹配顺序与优先级相关
var friendlyErrors = []struct {
	needles []string
	message string
}{
	{[]string{"canceled"}, CanceledMessage},
	{[]string{"Private video"}, "This video is private."},
	{[]string{"unavailable"}, "Video is unavailable or has been removed."},
	{[]string{"Sign in"}, "This content requires login to access."},
	{[]string{"ETIMEDOUT"}, "Connection timed out. Check your internet."},
	{[]string{"ENOTFOUND", "no such host", "Temporary failure in name resolution", "getaddrinfo failed"}, "Network error. Check your internet connection."},
	{[]string{"ECONNREFUSED", "ECONNRESET", "Connection refused", "connection refused", "Connection reset", "connection reset"}, "Connection failed. Check your internet and try again."},
	{[]string{"Unsupported URL"}, "This URL or site is not supported."},
	{[]string{"timed out"}, "Download timed out after 10 minutes."},
	{[]string{"429"}, "Too many requests. Please wait and try again."},
	{[]string{"[Errno 22] Invalid argument"}, "Windows rejected the generated file path/name. Try a shorter output folder path and retry."},
	{[]string{"Requested format is not available"}, "Selected quality is unavailable for this video. Try a lower resolution."},
	{[]string{"cookies", "login required"}, "This content requires login/cookies to download."},
}

// FriendlyError maps a raw download diagnostic to a short message. Unknown
// diagnostics are cut to a bounded length.
func FriendlyError(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown error occurred."
	}
	for _, f := range friendlyErrors {
		for _, n := range f.needles {
			if strings.Contains(raw, n) {
				return f.message
			}
		}
	}
	if r := []rune(raw); len(r) > maxErrorChars {
		return string(r[:maxErrorChars])
	}
	return raw
}
