// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package heartbeat

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestController_StartSendsImmediateHeartbeat(t *testing.T) {
	var sent int32
	c := New(
		func(seq *int64) { atomic.AddInt32(&sent, 1) },
		func() (int64, bool) { return 0, false },
		func() {},
	)
	defer c.Stop()

	c.Start(10_000)

	if atomic.LoadInt32(&sent) != 1 {
		t.Fatalf("expected 1 immediate heartbeat, got %d", sent)
	}
	if !c.Active() {
		t.Fatal("expected controller active after Start")
	}
	if c.IntervalMs() != 10_000 {
		t.Fatalf("IntervalMs() = %d, want 10000", c.IntervalMs())
	}
}

func TestController_TicksSendAndCarrySequence(t *testing.T) {
	var mu sync.Mutex
	var seqsSent []int64
	seq := int64(42)

	c := New(
		func(s *int64) {
			mu.Lock()
			if s != nil {
				seqsSent = append(seqsSent, *s)
			} else {
				seqsSent = append(seqsSent, -1)
			}
			mu.Unlock()
		},
		func() (int64, bool) { return seq, true },
		func() { t.Fatal("unexpected missed-ack callback") },
	)
	defer c.Stop()

	c.Start(50)
	c.OnAck() // ack the immediate heartbeat so the next tick doesn't misfire

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seqsSent)
		mu.Unlock()
		if n >= 2 {
			break
		}
		c.OnAck()
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seqsSent) < 2 {
		t.Fatalf("expected at least 2 heartbeats sent, got %d", len(seqsSent))
	}
	if seqsSent[len(seqsSent)-1] != 42 {
		t.Fatalf("expected last heartbeat to carry sequence 42, got %d", seqsSent[len(seqsSent)-1])
	}
}

func TestController_MissedAckTriggersCallback(t *testing.T) {
	missed := make(chan struct{}, 1)
	c := New(
		func(seq *int64) {}, // never ack it
		func() (int64, bool) { return 0, false },
		func() {
			select {
			case missed <- struct{}{}:
			default:
			}
		},
	)
	defer c.Stop()

	c.Start(30)

	select {
	case <-missed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected missed-ack callback within 2s")
	}
}

func TestController_OnServerRequestDoesNotResetInterval(t *testing.T) {
	var sent int32
	c := New(
		func(seq *int64) { atomic.AddInt32(&sent, 1) },
		func() (int64, bool) { return 0, false },
		func() {},
	)
	defer c.Stop()

	c.Start(10_000) // long interval; only the immediate + manual sends should count
	before := atomic.LoadInt32(&sent)

	c.OnServerRequest()

	after := atomic.LoadInt32(&sent)
	if after != before+1 {
		t.Fatalf("expected exactly one extra send from OnServerRequest, got %d -> %d", before, after)
	}
	if c.IntervalMs() != 10_000 {
		t.Fatalf("interval changed after OnServerRequest: %d", c.IntervalMs())
	}
}

func TestController_StopClearsState(t *testing.T) {
	c := New(func(seq *int64) {}, func() (int64, bool) { return 0, false }, func() {})
	c.Start(10_000)
	c.OnAck()

	c.Stop()

	if c.Active() {
		t.Fatal("expected inactive after Stop")
	}
	if c.Ack() {
		t.Fatal("expected ack cleared after Stop")
	}
	if c.IntervalMs() != 0 {
		t.Fatalf("expected interval cleared, got %d", c.IntervalMs())
	}
}
