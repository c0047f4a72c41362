// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ZSC714725/mediaqueue/internal/job"
	"github.com/ZSC714725/mediaqueue/internal/logger"
)

// SnapshotKey is the fixed key of the job list document.
const SnapshotKey = "mediadl.queue.v1"

// RestoredMessage is set on jobs that were running when the previous
// session ended.
const RestoredMessage = "Restored after restart. Start again to continue."

// Snapshots saves and restores the whole job list.
type Snapshots struct {
	kv     KV
	logger logger.Logger
}

// NewSnapshots wraps kv.
func NewSnapshots(kv KV, log logger.Logger) *Snapshots {
	if log == nil {
		log = logger.Nop()
	}
	return &Snapshots{kv: kv, logger: log}
}

// Save replaces the stored list with jobs, in order.
func (s *Snapshots) Save(ctx context.Context, jobs []*job.Job) error {
	records := make([]job.Record, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, j.ToRecord())
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.kv.Put(ctx, SnapshotKey, data)
}

// Load returns the stored list after reconciliation. A missing or corrupt
// document yields an empty list.
func (s *Snapshots) Load(ctx context.Context) ([]*job.Job, error) {
	data, ok, err := s.kv.Get(ctx, SnapshotKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("discarding unreadable job snapshot: %v", err)
		return nil, nil
	}
	return Reconcile(raw, s.logger), nil
}

// Reconcile decodes records, dropping malformed ones and demoting jobs that
// were mid-flight back to queued.
func Reconcile(raw []json.RawMessage, log logger.Logger) []*job.Job {
	if log == nil {
		log = logger.Nop()
	}
	out := make([]*job.Job, 0, len(raw))
	seen := make(map[int64]bool, len(raw))
	for _, item := range raw {
		var rec job.Record
		if err := json.Unmarshal(item, &rec); err != nil {
			log.Warn("dropping undecodable job record: %v", err)
			continue
		}
		j, err := rec.Job()
		if err != nil {
			log.Warn("dropping job record: %v", err)
			continue
		}
		if seen[j.ID] {
			log.Warn("dropping job record: duplicate id %d", j.ID)
			continue
		}
		seen[j.ID] = true

		if j.Status.IsActive() {
			j.Status = job.StatusQueued
			j.Percent = 0
			j.Size = ""
			j.Error = RestoredMessage
		}
		if j.Percent < 0 {
			j.Percent = 0
		} else if j.Percent > 100 {
			j.Percent = 100
		}
		out = append(out, j)
	}
	return out
}
