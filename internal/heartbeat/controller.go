// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package heartbeat implements the gateway's liveness probe: a periodic
// ping with required ack, reconnecting on a missed ack (spec §4.D), driven
// by the HELLO-supplied interval and an ack-flag state machine.
package heartbeat

import (
	"sync"
	"time"
)

// Sender transmits one heartbeat frame carrying the given sequence (nil if
// the session has no sequence yet). Heartbeats bypass the rate bucket
// (spec §4.D) — callers must send directly, not through pacing.
type Sender func(seq *int64)

// SequenceFunc returns the session's current sequence number, or false if
// the session has none yet (spec §4.D: "current sequence, or none if zero").
type SequenceFunc func() (int64, bool)

// MissedAck is invoked when a timer tick finds no ack since the last send.
// The caller must disconnect with cause "heartbeat ack never arrived" and
// reopen (spec §4.D step 2); Controller itself does not reconnect.
type MissedAck func()

// Controller runs the periodic heartbeat timer for one connection's
// lifetime. At most one Controller is active per engine at a time (spec §3
// invariant "at most one active heartbeat timer").
type Controller struct {
	mu sync.Mutex

	ack        bool
	lastAck    time.Time
	lastSent   time.Time
	intervalMs int64

	timer  *time.Timer
	stopCh chan struct{}
	active bool

	send     Sender
	seq      SequenceFunc
	onMissed MissedAck
}

// New creates an idle Controller. Call Start once HELLO supplies the
// heartbeat interval.
func New(send Sender, seq SequenceFunc, onMissed MissedAck) *Controller {
	return &Controller{send: send, seq: seq, onMissed: onMissed}
}

// Start records ack=true and lastAck=now, begins the periodic timer at the
// given interval, and sends one heartbeat immediately (spec §4.D step 1:
// "fire one immediate heartbeat"). That immediate heartbeat leaves ack=false
// again, so the first tick counts as a miss unless a HEARTBEAT_ACK arrives
// before it.
func (c *Controller) Start(intervalMs int64) {
	c.mu.Lock()
	if c.active {
		c.stopLocked()
	}
	c.ack = true
	c.lastAck = time.Now()
	c.intervalMs = intervalMs
	c.active = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	c.beat()

	go c.run(stopCh, time.Duration(intervalMs)*time.Millisecond)
}

func (c *Controller) run(stopCh chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	c.mu.Lock()
	acked := c.ack
	c.mu.Unlock()

	if !acked {
		c.onMissed()
		return
	}
	c.beat()
}

// beat sends one heartbeat and marks the ack as pending.
func (c *Controller) beat() {
	var seqPtr *int64
	if v, ok := c.seq(); ok {
		seqPtr = &v
	}

	c.mu.Lock()
	c.ack = false
	c.lastSent = time.Now()
	c.mu.Unlock()

	c.send(seqPtr)
}

// OnAck records an inbound HEARTBEAT_ACK (spec §4.D step 3).
func (c *Controller) OnAck() {
	c.mu.Lock()
	c.ack = true
	c.lastAck = time.Now()
	c.mu.Unlock()
}

// OnServerRequest sends one heartbeat immediately in response to an inbound
// HEARTBEAT op-code, without resetting the periodic interval (spec §4.D
// step 4).
func (c *Controller) OnServerRequest() {
	c.beat()
}

// Stop halts the timer and clears all heartbeat state (spec §4.D step 5,
// §4.F cleanup).
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.active {
		close(c.stopCh)
		c.active = false
	}
	c.ack = false
	c.lastAck = time.Time{}
	c.lastSent = time.Time{}
	c.intervalMs = 0
}

// Ack reports the most recently recorded ack state, for diagnostics.
func (c *Controller) Ack() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ack
}

// LastAck reports when the most recent ack was recorded.
func (c *Controller) LastAck() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAck
}

// IntervalMs reports the currently configured heartbeat interval.
func (c *Controller) IntervalMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intervalMs
}

// Active reports whether a heartbeat timer is currently running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
