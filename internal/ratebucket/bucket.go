// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package ratebucket implements outbound frame pacing: a token bucket with
// an explicit lock/unlock gate and a FIFO deferred-work queue, matching the
// send-or-queue behavior spec §4.C describes.
package ratebucket

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Work is a unit of deferred outbound work. It must not block.
type Work func()

// Bucket paces calls to Add with a token bucket that holds up to Capacity
// tokens and refills continuously at Capacity per Window, queuing anything
// over the rate (or submitted while locked) for later, using
// golang.org/x/time/rate to pace discrete work items instead of byte
// counts. The long-run rate is Capacity per Window; a full bucket plus its
// refill lets a single Window-long interval run up to about twice Capacity.
type Bucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	locked  bool
	queue   []Work

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Bucket with a burst of capacity tokens, replenished
// continuously at capacity tokens per window.
func New(capacity int, window time.Duration) *Bucket {
	limit := rate.Limit(float64(capacity) / window.Seconds())
	b := &Bucket{
		limiter: rate.NewLimiter(limit, capacity),
		stopCh:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.drainLoop()
	return b
}

// Add executes work immediately if the bucket is unlocked, the queue is
// empty, and a token is available; otherwise it appends work to the queue.
// The queue-empty check preserves FIFO order: a later call must never run
// ahead of an earlier one still waiting for a token.
func (b *Bucket) Add(work Work) {
	b.mu.Lock()
	if !b.locked && len(b.queue) == 0 && b.limiter.Allow() {
		b.mu.Unlock()
		work()
		return
	}
	b.queue = append(b.queue, work)
	b.mu.Unlock()
}

// Lock forces all subsequent Add calls to queue, regardless of token
// availability. The engine locks the bucket from disconnect until
// READY/RESUMED (spec §4.C) to avoid wasting sends on a dead transport.
func (b *Bucket) Lock() {
	b.mu.Lock()
	b.locked = true
	b.mu.Unlock()
}

// Unlock clears the lock and immediately attempts to drain the queue
// subject to token availability.
func (b *Bucket) Unlock() {
	b.mu.Lock()
	b.locked = false
	b.mu.Unlock()
	b.drainOnce()
}

// Clear discards all queued work without executing it. Used on disconnect
// (spec §4.F cleanup) since queued sends targeted a transport that no
// longer exists.
func (b *Bucket) Clear() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}

// Len reports the current queue depth, for diagnostics.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Locked reports whether the bucket is currently locked.
func (b *Bucket) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Stop terminates the background drain loop. The bucket must not be used
// after Stop returns.
func (b *Bucket) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

func (b *Bucket) drainLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

func (b *Bucket) drainOnce() {
	for {
		b.mu.Lock()
		if b.locked || len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		if !b.limiter.Allow() {
			b.mu.Unlock()
			return
		}
		work := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		work()
	}
}
