// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package notify defines the typed notifications the engine emits to
// application code (spec §1 "emits typed notifications"; §7
// "nothing throws from callbacks; all callback-path errors become 'warn'
// notifications"): a small closed enum of string-valued kinds attached to
// a structured record.
package notify

import "github.com/nishisan-dev/gatewayclient/internal/protocol"

// Kind is the closed set of notification categories an engine can emit.
type Kind string

const (
	// KindWarn covers transient, non-fatal conditions: decode/encode
	// failure, a dropped frame, a transport send error (spec §7).
	KindWarn Kind = "warn"
	// KindClose reports that the transport connection closed, with the
	// close code and reason observed.
	KindClose Kind = "close"
	// KindKilled reports terminal shutdown: no more I/O will occur.
	KindKilled Kind = "killed"
	// KindDispatch carries a DISPATCH event not handled internally,
	// forwarded verbatim to the application (spec §4.G).
	KindDispatch Kind = "dispatch"
	// KindReady reports that session identity has been established or
	// re-established (after READY or RESUMED).
	KindReady Kind = "ready"
	// KindReconnecting reports that the engine is about to attempt a
	// reconnect, with the current attempt count.
	KindReconnecting Kind = "reconnecting"
)

// Notification is one event delivered to application code. Only the
// fields relevant to Kind are populated; the rest are zero values.
type Notification struct {
	Kind Kind

	// Warn / Killed
	Err error

	// Close
	CloseCode protocol.CloseCode
	Reason    string

	// Dispatch
	Event   protocol.DispatchEvent
	Payload protocol.RawMessage

	// Reconnecting
	Attempt int
}

// Sink receives notifications. The engine calls it synchronously on its
// own logical task; a Sink must not block on engine state.
type Sink func(Notification)

// Warn builds a KindWarn notification.
func Warn(err error) Notification {
	return Notification{Kind: KindWarn, Err: err}
}

// Closed builds a KindClose notification.
func Closed(code protocol.CloseCode, reason string) Notification {
	return Notification{Kind: KindClose, CloseCode: code, Reason: reason}
}

// Killed builds a KindKilled notification.
func Killed(err error) Notification {
	return Notification{Kind: KindKilled, Err: err}
}

// Dispatch builds a KindDispatch notification for an unhandled event.
func Dispatch(event protocol.DispatchEvent, payload protocol.RawMessage) Notification {
	return Notification{Kind: KindDispatch, Event: event, Payload: payload}
}

// Ready builds a KindReady notification.
func Ready() Notification {
	return Notification{Kind: KindReady}
}

// Reconnecting builds a KindReconnecting notification.
func Reconnecting(attempt int) Notification {
	return Notification{Kind: KindReconnecting, Attempt: attempt}
}
