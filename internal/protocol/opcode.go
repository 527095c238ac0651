// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol defines the wire shape of the gateway protocol: the
// op-code envelope, op-code and close-code constants, and the dispatch
// event names the driver recognizes inline.
package protocol

// Op is a gateway op-code, carried in every frame's "op" field.
type Op int

// Inbound and outbound op-codes. Values follow the gateway wire contract
// (spec §6); they are not renumbered between directions.
const (
	OpDispatch            Op = 0
	OpHeartbeat           Op = 1
	OpIdentify            Op = 2
	OpPresenceUpdate      Op = 3
	OpVoiceStateUpdate    Op = 4
	OpVoiceServerPing     Op = 5
	OpResume              Op = 6
	OpReconnect           Op = 7
	OpRequestGuildMembers Op = 8
	OpInvalidSession      Op = 9
	OpHello               Op = 10
	OpHeartbeatAck        Op = 11
	OpGuildSubscriptions  Op = 12
	OpCallConnect         Op = 13
	OpLobbyConnect        Op = 14
	OpLobbyDisconnect     Op = 15
	OpLobbyVoiceStates    Op = 16
	OpStreamCreate        Op = 17
	OpStreamDelete        Op = 18
	OpStreamWatch         Op = 19
	OpStreamPing          Op = 20
	OpStreamSetPaused     Op = 21
)

// CloseCode is a transport close code, used internally to decide whether
// cleanup wipes session state (§3 "Invariants", §4.F cleanup).
type CloseCode int

const (
	CloseNormal    CloseCode = 1000
	CloseGoingAway CloseCode = 1001

	// CloseInternalRetry is never sent on the wire. The engine uses it to
	// close its own transport in order to force a reconnect (missed
	// heartbeat, server RECONNECT) without wiping session state.
	CloseInternalRetry CloseCode = -1
)

// ClearsSession reports whether cleanup on this close code wipes sequence
// and session_id, forcing identify (rather than resume) on the next open.
func (c CloseCode) ClearsSession() bool {
	return c == CloseNormal || c == CloseGoingAway
}

// DispatchEvent names control events the driver handles inline (§4.G);
// every other dispatch event name is forwarded to application subscribers
// verbatim.
type DispatchEvent string

const (
	EventReady             DispatchEvent = "READY"
	EventResumed           DispatchEvent = "RESUMED"
	EventGuildDelete       DispatchEvent = "GUILD_DELETE"
	EventVoiceServerUpdate DispatchEvent = "VOICE_SERVER_UPDATE"
	EventVoiceStateUpdate  DispatchEvent = "VOICE_STATE_UPDATE"
)
