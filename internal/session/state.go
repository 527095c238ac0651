// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package session tracks the identity and sequence state of one gateway
// session: session_id, sequence, user_id, and the trace data returned on
// READY (spec §3 "Session identity", §4.E).
package session

import "sync"

// State is the mutable identity of one logical session. The engine owns
// exactly one State and serializes all access to it on its single logical
// task (spec §5); the mutex here guards against callers that read State
// concurrently with that task (e.g. diagnostics) rather than against
// concurrent mutation.
type State struct {
	mu sync.RWMutex

	sequence  int64
	sessionID string
	userID    string
	trace     []string
	resuming  bool
	reconnect int
}

// New returns a freshly initialized State: sequence 0, no session or user.
func New() *State {
	return &State{}
}

// Sequence returns the last seen inbound sequence number.
func (s *State) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence
}

// SessionID returns the server-assigned session id, or "" if none.
func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// UserID returns the authenticated principal's id, or "" if none.
func (s *State) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Trace returns the most recent trace data from READY/RESUMED.
func (s *State) Trace() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.trace...)
}

// Resuming reports whether an outbound RESUME has been sent with no READY
// received since (spec §3 invariant).
func (s *State) Resuming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resuming
}

// ReconnectCount returns the current reconnect attempt counter.
func (s *State) ReconnectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnect
}

// IncrementReconnect bumps the reconnect counter by one and returns the new
// value. Called by the lifecycle after scheduling a reconnect.
func (s *State) IncrementReconnect() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnect++
	return s.reconnect
}

// SequenceOutcome describes what an inbound sequence number implies the
// caller should do.
type SequenceOutcome int

const (
	// SequenceAccepted means the new sequence was stored normally.
	SequenceAccepted SequenceOutcome = iota
	// SequenceGapDetected means a gap was found and resume must be
	// triggered; sequence is left unchanged until RESUMED arrives.
	SequenceGapDetected
)

// Observe applies an inbound frame's sequence number per spec §4.E: a gap
// (s_new > sequence+1) while not already resuming triggers resume instead
// of advancing sequence; otherwise sequence advances to s_new.
func (s *State) Observe(sNew int64) SequenceOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sNew > s.sequence+1 && !s.resuming {
		s.resuming = true
		return SequenceGapDetected
	}
	s.sequence = sNew
	return SequenceAccepted
}

// BeginResume marks resuming=true for an explicitly triggered resume (e.g.
// INVALID_SESSION with d=true) that did not go through Observe.
func (s *State) BeginResume() {
	s.mu.Lock()
	s.resuming = true
	s.mu.Unlock()
}

// Ready applies a READY dispatch: stores session_id/user_id, resets the
// reconnect counter, and clears resuming. The caller is still responsible
// for unlocking the rate bucket (spec §4.E says READY unlocks the bucket;
// that is a cross-component effect the lifecycle driver performs).
func (s *State) Ready(sessionID, userID string, trace []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.userID = userID
	s.trace = append([]string(nil), trace...)
	s.resuming = false
	s.reconnect = 0
}

// Resumed applies a RESUMED dispatch: clears resuming and resets the
// reconnect counter, leaving session_id/user_id/sequence untouched.
func (s *State) Resumed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resuming = false
	s.reconnect = 0
}

// Cleanup applies the session-state effect of a close code per spec §4.E:
// NORMAL/GOING_AWAY wipe sequence and session_id so the next open
// identifies rather than resumes; any other code preserves state.
func (s *State) Cleanup(clearsSession bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clearsSession {
		s.sequence = 0
		s.sessionID = ""
	}
}

// ClearResuming unconditionally clears the resuming flag, independent of
// what close code triggered it (spec §4.F "disconnect" step 3).
func (s *State) ClearResuming() {
	s.mu.Lock()
	s.resuming = false
	s.mu.Unlock()
}

// CanResume reports whether the next open should resume (session_id
// present) rather than identify (spec §3 invariant: "If session_id is
// null, identify is used on the next open").
func (s *State) CanResume() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID != ""
}
