// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package diagnostics provides an optional, cron-scheduled periodic health
// snapshot of an engine (uptime, sequence, reconnects, bucket depth, media
// session count), logged at Info level. It is off by default; callers that
// want it call Start.
package diagnostics

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule reports diagnostics every five minutes.
const DefaultSchedule = "@every 5m"

// Snapshot is one point-in-time reading of engine health. Fields mirror
// what an application would want surfaced to its own observability stack.
type Snapshot struct {
	UptimeSeconds    int64  `json:"uptime_seconds"`
	SessionID        string `json:"session_id,omitempty"`
	Sequence         int64  `json:"sequence"`
	Resuming         bool   `json:"resuming"`
	ReconnectCount   int    `json:"reconnect_count"`
	HeartbeatActive  bool   `json:"heartbeat_active"`
	HeartbeatAcked   bool   `json:"heartbeat_acked"`
	RateBucketQueued int    `json:"rate_bucket_queued"`
	MediaSessions    int    `json:"media_sessions"`
}

// Collector produces a fresh Snapshot on demand. The engine supplies this;
// the reporter has no knowledge of engine internals.
type Collector func() Snapshot

// Reporter periodically logs a Snapshot via a cron schedule. Disabled
// (never started) unless the caller opts in.
type Reporter struct {
	cron      *cron.Cron
	logger    *slog.Logger
	collect   Collector
	startTime time.Time
	entryID   cron.EntryID
	running   bool
}

// New creates a Reporter bound to collect, not yet started.
func New(collect Collector, logger *slog.Logger) *Reporter {
	return &Reporter{
		cron:      cron.New(),
		logger:    logger.With("component", "diagnostics_reporter"),
		collect:   collect,
		startTime: time.Now(),
	}
}

// Start schedules periodic reporting per the given cron expression
// (DefaultSchedule if empty) and begins the cron scheduler's own goroutine.
func (r *Reporter) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	id, err := r.cron.AddFunc(schedule, r.report)
	if err != nil {
		return err
	}
	r.entryID = id
	r.running = true
	r.cron.Start()
	r.logger.Info("diagnostics reporter started", "schedule", schedule)
	return nil
}

// Stop halts the scheduler and waits for any in-flight report to finish.
func (r *Reporter) Stop() {
	if !r.running {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.running = false
	r.logger.Info("diagnostics reporter stopped")
}

// ReportNow collects and logs one snapshot immediately, bypassing the
// schedule. Useful for a one-shot health dump on SIGUSR1 or similar.
func (r *Reporter) ReportNow() {
	r.report()
}

func (r *Reporter) report() {
	snap := r.collect()
	snap.UptimeSeconds = int64(time.Since(r.startTime).Seconds())

	body, err := json.Marshal(snap)
	if err != nil {
		r.logger.Warn("diagnostics: failed to marshal snapshot", "error", err)
		return
	}

	r.logger.Info("gateway client diagnostics",
		"uptime_seconds", snap.UptimeSeconds,
		"sequence", snap.Sequence,
		"resuming", snap.Resuming,
		"reconnect_count", snap.ReconnectCount,
		"media_sessions", snap.MediaSessions,
		"snapshot", json.RawMessage(body),
	)
}
