// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package process

import (
	"sync"

	gopsutilprocess "github.com/shirou/gopsutil/v3/process"
)

// Usage is a CPU and memory sample of a running process.
type Usage struct {
	CPU    float64 `json:"cpu_percent"`
	Memory uint64  `json:"memory_bytes"`
}

// usageSampler 使用 gopsutil 采集进程 CPU 和内存
type usageSampler struct {
	mu   sync.RWMutex
	proc *gopsutilprocess.Process
}

func newUsageSampler() *usageSampler {
	return &usageSampler{}
}

func (s *usageSampler) Start(pid int32) error {
	proc, err := gopsutilprocess.NewProcess(pid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	return nil
}

func (s *usageSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = nil
}

func (s *usageSampler) Current() Usage {
	s.mu.RLock()
	proc := s.proc
	s.mu.RUnlock()

	var u Usage
	if proc == nil {
		return u
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		u.CPU = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		u.Memory = mem.RSS
	}
	return u
}

// killTree kills every descendant of pid, deepest first, then pid itself.
func killTree(pid int32) error {
	root, err := gopsutilprocess.NewProcess(pid)
	if err != nil {
		return err
	}
	for _, child := range descendants(root) {
		child.Kill()
	}
	return root.Kill()
}

func descendants(p *gopsutilprocess.Process) []*gopsutilprocess.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var out []*gopsutilprocess.Process
	for _, c := range children {
		out = append(out, descendants(c)...)
		out = append(out, c)
	}
	return out
}
