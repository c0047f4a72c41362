// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package process

import (
	"container/ring"
	"sync"
)

// tail keeps the last n lines written to it.
type tail struct {
	log  *ring.Ring
	lock sync.Mutex
}

func newTail(n int) *tail {
	return &tail{log: ring.New(n)}
}

func (t *tail) Add(line string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.log.Value = line
	t.log = t.log.Next()
}

func (t *tail) Lines() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	lines := []string{}
	t.log.Do(func(v interface{}) {
		if v == nil {
			return
		}
		lines = append(lines, v.(string))
	})
	return lines
}
