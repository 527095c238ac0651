// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transport

import (
	"errors"
	"sync"
	"time"
)

// ErrFakeClosed is returned by Fake.Send/Ping after Close.
var ErrFakeClosed = errors.New("transport: fake transport closed")

// Fake is an in-process Transport double for tests: sent frames are
// recorded for assertions, and SimulateMessage/SimulateClose let a test
// drive the Sink as if bytes arrived from the wire.
type Fake struct {
	mu     sync.Mutex
	sink   Sink
	sent   [][]byte
	closed bool

	// PingResult, if set, is returned by Ping instead of a zero duration.
	PingResult time.Duration
	PingErr    error
}

// NewFake creates a Fake bound to sink. Call SimulateOpen once the test is
// ready for the engine to observe the connection as open.
func NewFake(sink Sink) *Fake {
	return &Fake{sink: sink}
}

func (f *Fake) Send(data []byte, done func(error)) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		if done != nil {
			done(ErrFakeClosed)
		}
		return ErrFakeClosed
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.mu.Unlock()

	if done != nil {
		done(nil)
	}
	return nil
}

func (f *Fake) Close(code int, reason string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.sink.OnClose(CloseInfo{Code: code, Reason: reason})
	return nil
}

func (f *Fake) Ping(timeout time.Duration) (time.Duration, error) {
	return f.PingResult, f.PingErr
}

// SimulateOpen invokes the sink's OnOpen callback.
func (f *Fake) SimulateOpen() { f.sink.OnOpen() }

// SimulateMessage delivers data to the sink as an inbound message.
func (f *Fake) SimulateMessage(data []byte) { f.sink.OnMessage(data) }

// SimulateError delivers err to the sink.
func (f *Fake) SimulateError(err error) { f.sink.OnError(err) }

// SimulateClose delivers a remote close to the sink without going through
// Close (models the server hanging up).
func (f *Fake) SimulateClose(info CloseInfo) {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.sink.OnClose(info)
}

// Sent returns a copy of every frame accepted by Send so far.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// Closed reports whether Close or SimulateClose has run.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
