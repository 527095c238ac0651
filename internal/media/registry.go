// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package media implements the media gateway registry and voice-connect
// flow (spec §4.H): a map of server_id to media session, exclusively owned
// by the registry, with voice state/server dispatch events routed into the
// owning session, each session independently activatable and killable and
// the whole registry drainable on shutdown.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultConnectTimeout is the default cancellable deadline for a
// voice-connect call (spec §4.H: "default 30 000 ms").
const DefaultConnectTimeout = 30 * time.Second

// ErrNoChannelOrGuild is returned when voice_connect is called with neither
// a guild nor a channel id (spec §7 "User API errors").
var ErrNoChannelOrGuild = errors.New("media: voice_connect requires a guild or channel id")

// ErrConnectTimeout is wrapped by the error Connect returns when a
// voice-connect deadline elapses without a matching
// VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE pairing (spec §4.H, scenario 6).
// The session itself is killed with a CauseTimeout error.
var ErrConnectTimeout = errors.New("media: voice connect timed out")

// KillCause distinguishes why a session was terminated, for notification
// and logging purposes (spec §4.G dispatch routing).
type KillCause int

const (
	CauseUnspecified KillCause = iota
	CauseReplaced
	CauseDifferentSession
	CauseBecameUnavailable
	CauseLeftGuild
	CauseTimeout
	CauseRegistryShutdown
)

func (c KillCause) String() string {
	switch c {
	case CauseReplaced:
		return "replaced"
	case CauseDifferentSession:
		return "different session"
	case CauseBecameUnavailable:
		return "became unavailable"
	case CauseLeftGuild:
		return "left guild"
	case CauseTimeout:
		return "timeout"
	case CauseRegistryShutdown:
		return "registry shutdown"
	default:
		return "unspecified"
	}
}

// VoiceStateSender sends an outbound VOICE_STATE_UPDATE frame for the given
// guild/channel pair (direct or bucketed is the caller's concern; the
// registry only needs it dispatched).
type VoiceStateSender func(guildID string, channelID *string) error

// waiter is one pending voice-connect promise.
type waiter chan result

type result struct {
	err error
}

// Session is one active or pending media (voice) session, keyed by its
// server id in the owning Registry. It implements the "media session
// contract" of spec §6: kill, setEndpoint/setToken/setChannelId,
// sessionId/channelId accessors, and a pending-promise set resolved on
// matching dispatch events.
type Session struct {
	mu sync.Mutex

	serverID  string
	sessionID string
	channelID *string
	endpoint  string
	token     string

	killed   bool
	killErr  error
	waiters  []waiter
	deadline *time.Timer
}

func newSession(serverID string, channelID *string) *Session {
	return &Session{serverID: serverID, channelID: channelID}
}

// SessionID returns the voice session id assigned by VOICE_STATE_UPDATE.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ChannelID returns the channel currently associated with this session, or
// nil if none.
func (s *Session) ChannelID() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Endpoint returns the voice server endpoint, once VOICE_SERVER_UPDATE has
// arrived.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// SetEndpoint applies a VOICE_SERVER_UPDATE endpoint.
func (s *Session) SetEndpoint(endpoint string) {
	s.mu.Lock()
	s.endpoint = endpoint
	s.mu.Unlock()
}

// SetToken applies a VOICE_SERVER_UPDATE token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// setChannelID applies the channel id carried by a matching
// VOICE_STATE_UPDATE, and assigns the voice session id on first arrival.
func (s *Session) setChannelID(channelID *string, sessionID string) {
	s.mu.Lock()
	s.channelID = channelID
	s.sessionID = sessionID
	s.mu.Unlock()
}

// Killed reports whether Kill has already completed on this session.
func (s *Session) Killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

// kill is idempotent: a second call is a no-op (spec §8 invariant 6, applied
// per-session). Pending waiters are resolved with err exactly once.
func (s *Session) kill(err error) {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	s.killed = true
	s.killErr = err
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w <- result{err: err}
	}
}

func (s *Session) addWaiter() waiter {
	w := make(waiter, 1)
	s.mu.Lock()
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()
	return w
}

// resolve fulfills all pending waiters successfully.
func (s *Session) resolve() {
	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w <- result{}
	}
}

// Registry maps server_id (guild id or, for DM calls, channel id) to a
// Session. Entries are exclusively owned by the Registry; removal always
// kills the session first (spec §4.H, §5 "mutated only by the engine").
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	send     VoiceStateSender
	timeout  time.Duration
	userID   string
}

// New creates an empty Registry. send transmits VOICE_STATE_UPDATE frames.
// Call SetUserID once the engine's own user id is known (after READY) so
// HandleVoiceStateUpdate can filter dispatch events down to this client
// (spec §4.G).
func New(send VoiceStateSender) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		send:     send,
		timeout:  DefaultConnectTimeout,
	}
}

// SetUserID records the engine's own user id, established on READY.
func (r *Registry) SetUserID(userID string) {
	r.mu.Lock()
	r.userID = userID
	r.mu.Unlock()
}

func (r *Registry) currentUserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// SetTimeout overrides the default voice-connect deadline.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

func (r *Registry) timeoutLocked() time.Duration {
	if r.timeout <= 0 {
		return DefaultConnectTimeout
	}
	return r.timeout
}

// Connect implements the voice_connect decision table of spec §4.H.
// guildID and channelID may each be empty; at least one is required to
// create or modify a session (spec §7 "User API errors" for guildID=="").
func (r *Registry) Connect(ctx context.Context, guildID string, channelID *string) (*Session, error) {
	if guildID == "" && (channelID == nil || *channelID == "") {
		return nil, ErrNoChannelOrGuild
	}
	serverID := guildID
	if serverID == "" {
		serverID = *channelID
	}

	r.mu.Lock()
	existing := r.sessions[serverID]
	r.mu.Unlock()

	switch {
	case existing == nil && channelID == nil:
		return nil, r.send(guildID, nil)

	case existing == nil:
		sess := newSession(serverID, channelID)
		r.mu.Lock()
		r.sessions[serverID] = sess
		r.mu.Unlock()
		if err := r.send(guildID, channelID); err != nil {
			r.Remove(serverID, CauseUnspecified)
			return nil, err
		}
		return r.awaitPromise(ctx, serverID, sess)

	case channelID == nil:
		r.Remove(serverID, CauseUnspecified)
		return nil, nil

	case existing.ChannelID() != nil && channelID != nil && *existing.ChannelID() == *channelID:
		return existing, nil

	default:
		if err := r.send(guildID, channelID); err != nil {
			return nil, err
		}
		return r.awaitPromise(ctx, serverID, existing)
	}
}

// awaitPromise blocks until the session's promise resolves, the caller's
// context is cancelled, or the per-call deadline elapses — whichever comes
// first. On timeout the session is removed and killed with a CauseTimeout
// error, and the call returns an error wrapping ErrConnectTimeout (spec
// §4.H, scenario 6).
func (r *Registry) awaitPromise(ctx context.Context, serverID string, sess *Session) (*Session, error) {
	w := sess.addWaiter()

	r.mu.Lock()
	timeout := r.timeoutLocked()
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w:
		if res.err != nil {
			return nil, res.err
		}
		return sess, nil
	case <-timer.C:
		r.Remove(serverID, CauseTimeout)
		return nil, fmt.Errorf("%w: server %s", ErrConnectTimeout, serverID)
	case <-ctx.Done():
		r.Remove(serverID, CauseUnspecified)
		return nil, ctx.Err()
	}
}

// Remove kills and unregisters the session for serverID, if one exists.
func (r *Registry) Remove(serverID string, cause KillCause) {
	r.mu.Lock()
	sess, ok := r.sessions[serverID]
	if ok {
		delete(r.sessions, serverID)
	}
	r.mu.Unlock()

	if ok {
		sess.kill(causeErr(cause))
	}
}

// Get returns the session registered for serverID, if any.
func (r *Registry) Get(serverID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[serverID]
	return sess, ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown kills every registered session (spec §5 "kill additionally
// cancels all registered media sessions").
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.kill(causeErr(CauseRegistryShutdown))
	}
}

// HandleVoiceServerUpdate applies a VOICE_SERVER_UPDATE dispatch to the
// session registered for serverID, if one exists (spec §4.G).
func (r *Registry) HandleVoiceServerUpdate(serverID, endpoint, token string) {
	sess, ok := r.Get(serverID)
	if !ok {
		return
	}
	sess.SetEndpoint(endpoint)
	sess.SetToken(token)
}

// HandleVoiceStateUpdate applies a VOICE_STATE_UPDATE dispatch. It is a
// no-op unless eventUserID matches this engine's own user id and a session
// is registered for serverID (spec §4.G). A nil channelID kills the
// session (the user left voice); a session id mismatch kills it with
// CauseDifferentSession; otherwise the channel id is updated and any
// pending voice-connect promise is resolved.
func (r *Registry) HandleVoiceStateUpdate(serverID, eventUserID, sessionID string, channelID *string) {
	if eventUserID != r.currentUserID() {
		return
	}
	sess, ok := r.Get(serverID)
	if !ok {
		return
	}

	if channelID == nil {
		r.Remove(serverID, CauseUnspecified)
		return
	}
	if sess.SessionID() != "" && sess.SessionID() != sessionID {
		r.Remove(serverID, CauseDifferentSession)
		return
	}

	sess.setChannelID(channelID, sessionID)
	sess.resolve()
}

// HandleGuildDelete kills any media session registered for guildID,
// distinguishing "became unavailable" (outage) from "left the guild"
// (removal) per spec §4.G.
func (r *Registry) HandleGuildDelete(guildID string, unavailable bool) {
	if unavailable {
		r.Remove(guildID, CauseBecameUnavailable)
		return
	}
	r.Remove(guildID, CauseLeftGuild)
}

func causeErr(c KillCause) error {
	if c == CauseUnspecified {
		return nil
	}
	return fmt.Errorf("media session killed: %s", c)
}
