// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package transport declares the black-box duplex channel the engine
// drives (spec §6 "Transport contract"; §9 "callback-based transport API").
// The concrete WebSocket implementation is out of scope (spec Non-goals);
// this package only defines the narrow Sink/Transport/Dialer contract and
// an in-memory double, Fake, exercised against it in engine tests.
package transport

import "time"

// CloseInfo is delivered to OnClose.
type CloseInfo struct {
	Code   int
	Reason string
}

// Sink receives the four transport callbacks. All calls happen on
// whatever goroutine the transport implementation chooses; the engine is
// responsible for serializing them onto its own logical task (spec §5).
type Sink interface {
	OnOpen()
	OnClose(info CloseInfo)
	OnError(err error)
	OnMessage(data []byte)
}

// Transport is the black-box duplex channel consumed by the engine (spec
// §6). A concrete implementation (e.g. a WebSocket client) is constructed
// externally, wired to a Sink, and handed to the engine; the engine never
// reaches into transport internals.
type Transport interface {
	// Send transmits data asynchronously. If done is non-nil it is called
	// once the data has been handed to the network layer (spec §6
	// "callback fires after transmission").
	Send(data []byte, done func(error)) error

	// Close closes the connection with the given close code and reason.
	Close(code int, reason string) error

	// Ping round-trips a control frame and reports elapsed time, or an
	// error if the transport does not support pinging or it timed out.
	Ping(timeout time.Duration) (time.Duration, error)
}

// Dialer opens a new Transport for the given URL, wiring callbacks to
// sink. Implementations translate this into whatever handshake the
// concrete protocol requires (e.g. an HTTP Upgrade to WebSocket).
type Dialer interface {
	Dial(url string, sink Sink) (Transport, error)
}
