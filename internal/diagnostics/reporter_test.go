// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package diagnostics

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReporter_ReportNowInvokesCollector(t *testing.T) {
	called := make(chan struct{}, 1)
	r := New(func() Snapshot {
		called <- struct{}{}
		return Snapshot{Sequence: 7, ReconnectCount: 2}
	}, discardLogger())

	r.ReportNow()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected collector to be invoked")
	}
}

func TestReporter_StartSchedulesPeriodicReports(t *testing.T) {
	count := make(chan struct{}, 8)
	r := New(func() Snapshot {
		select {
		case count <- struct{}{}:
		default:
		}
		return Snapshot{}
	}, discardLogger())

	if err := r.Start("@every 20ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	select {
	case <-count:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one scheduled report within 2s")
	}
}

func TestReporter_StopIsIdempotentWhenNeverStarted(t *testing.T) {
	r := New(func() Snapshot { return Snapshot{} }, discardLogger())
	r.Stop() // must not block or panic
}
