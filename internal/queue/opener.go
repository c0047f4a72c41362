// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package queue

import (
	"fmt"
	"os/exec"
	"runtime"
)

// FolderOpener reveals a folder to the user.
type FolderOpener interface {
	Open(folder string) error
}

// SystemOpener opens folders with the platform file manager.
type SystemOpener struct{}

func (SystemOpener) Open(folder string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", folder)
	case "windows":
		cmd = exec.Command("explorer", folder)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", folder)
	default:
		return fmt.Errorf("open folder: unsupported operating system %s", runtime.GOOS)
	}
	// explorer exits non-zero even on success, so only the start is checked
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open folder %s: %w", folder, err)
	}
	go cmd.Wait()
	return nil
}
