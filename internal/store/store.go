// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package store persists small JSON documents under fixed keys.

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidKey = errors.New("invalid store key")
	ErrLocked     = errors.New("data directory is in use by another instance")
)

// KV is a durable key/value store of whole documents.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func checkKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Open returns the backend named by kind inside dir.
func Open(kind, dir string) (KV, error) {
	switch kind {
	case "", "file":
		return NewFileKV(dir)
	case "sqlite":
		return OpenSQLite(dir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", kind)
}
