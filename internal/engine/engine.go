// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package engine wires the protocol, codec, decompress, ratebucket, session,
// heartbeat, media, and presence packages into the gateway client's
// connection lifecycle and protocol driver (spec §4.F, §4.G, §4.Send): a
// single mutex-guarded connection with a flat-delay reconnect timer and a
// heartbeat liveness goroutine, driven against a black-box
// transport.Transport contract and the gateway's op-code/dispatch-event
// protocol.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nishisan-dev/gatewayclient/internal/codec"
	"github.com/nishisan-dev/gatewayclient/internal/config"
	"github.com/nishisan-dev/gatewayclient/internal/decompress"
	"github.com/nishisan-dev/gatewayclient/internal/heartbeat"
	"github.com/nishisan-dev/gatewayclient/internal/identify"
	"github.com/nishisan-dev/gatewayclient/internal/media"
	"github.com/nishisan-dev/gatewayclient/internal/notify"
	"github.com/nishisan-dev/gatewayclient/internal/presence"
	"github.com/nishisan-dev/gatewayclient/internal/protocol"
	"github.com/nishisan-dev/gatewayclient/internal/ratebucket"
	"github.com/nishisan-dev/gatewayclient/internal/session"
	"github.com/nishisan-dev/gatewayclient/internal/transport"
)

// State names the coarse lifecycle phase of the engine's connection, for
// diagnostics and tests. It is not part of the wire protocol.
type State string

const (
	StateInitializing State = "initializing"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateIdentified   State = "identified"
	StateDead         State = "dead"
)

// Rate bucket sizing (spec §4.C: "roughly 120 requests per 60 seconds",
// matching the gateway's documented global budget).
const (
	bucketCapacity = 120
	bucketWindow   = 60 * time.Second
)

var (
	// ErrNoURL is returned by Connect when no URL was ever supplied.
	ErrNoURL = errors.New("engine: no gateway url configured")
	// ErrDead is returned by any public send/connect method once Kill has
	// run (spec §5 "a killed engine rejects further operations").
	ErrDead = errors.New("engine: killed")
)

// Engine drives one logical gateway connection. Its own mutex guards the
// connection fields (transport, url, state, killed flag, generation,
// reconnect timer); session, heartbeat, rate-bucket and media-registry
// state are each guarded by that component's own lock. Transport and timer
// callbacks are not serialized onto one task and not held under a single
// engine-wide lock. Callers may invoke Engine's public methods from any
// goroutine.
type Engine struct {
	opts   config.Options
	dialer transport.Dialer
	codec  codec.Codec
	logger *slog.Logger

	decomp   *decompress.Stream
	bucket   *ratebucket.Bucket
	hb       *heartbeat.Controller
	sess     *session.State
	mediaReg *media.Registry

	notifySink notify.Sink

	defaultPresence    *presence.Update
	configuredPresence *presence.Update

	mu             sync.Mutex
	transportConn  transport.Transport
	url            string
	state          State
	killed         bool
	gen            int
	reconnectTimer *time.Timer
}

// New constructs an Engine from validated Options. dialer opens the
// transport connection; notifySink (may be nil) receives every
// notification the engine emits.
func New(opts config.Options, dialer transport.Dialer, notifySink notify.Sink, logger *slog.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c, err := codec.New(opts.Encoding)
	if err != nil {
		return nil, err
	}

	var dc *decompress.Stream
	if opts.Compress == config.CompressZlib {
		dc = decompress.New()
	}

	e := &Engine{
		opts:               opts,
		dialer:             dialer,
		codec:              c,
		logger:             logger.With("component", "engine"),
		decomp:             dc,
		bucket:             ratebucket.New(bucketCapacity, bucketWindow),
		sess:               session.New(),
		notifySink:         notifySink,
		configuredPresence: opts.Presence,
		url:                opts.URL,
		state:              StateInitializing,
	}
	e.hb = heartbeat.New(e.sendHeartbeatDirect, e.currentSequence, e.onMissedHeartbeat)
	e.mediaReg = media.New(e.sendVoiceStateUpdate)
	if opts.VoiceConnectTimeout > 0 {
		e.mediaReg.SetTimeout(opts.VoiceConnectTimeout)
	}
	e.bucket.Lock() // locked until the first READY/RESUMED (spec §4.C)

	return e, nil
}

// State reports the engine's current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionID, Sequence, Resuming, and ReconnectCount expose session.State's
// read surface for diagnostics collectors.
func (e *Engine) SessionID() string    { return e.sess.SessionID() }
func (e *Engine) Sequence() int64      { return e.sess.Sequence() }
func (e *Engine) Resuming() bool       { return e.sess.Resuming() }
func (e *Engine) ReconnectCount() int  { return e.sess.ReconnectCount() }
func (e *Engine) HeartbeatActive() bool { return e.hb.Active() }
func (e *Engine) HeartbeatAcked() bool  { return e.hb.Ack() }
func (e *Engine) BucketQueueLen() int   { return e.bucket.Len() }
func (e *Engine) MediaSessionCount() int { return e.mediaReg.Len() }

func (e *Engine) isDead() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killed
}

// --- Connection lifecycle (spec §4.F) ---------------------------------

// Connect opens (or reopens) the transport. An empty url reuses whatever
// URL was last supplied (from Options or a prior Connect call). If the
// engine is already connected, the existing transport is torn down first;
// its close callback is marked stale via a generation bump so it cannot
// race with the new connection's lifecycle.
func (e *Engine) Connect(rawURL string) error {
	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		return ErrDead
	}
	hadTransport := e.transportConn != nil
	e.gen++
	gen := e.gen
	if rawURL != "" {
		e.url = rawURL
	}
	u := e.url
	e.mu.Unlock()

	if hadTransport {
		// Synchronous convergence for the superseded connection: this does
		// not go through onTransportClosed (gen has already moved on), so
		// no notification or reconnect decision fires for it.
		e.disconnect(protocol.CloseNormal, "reconnecting")
	}

	if u == "" {
		return ErrNoURL
	}
	full, err := e.buildURL(u)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.state = StateConnecting
	e.mu.Unlock()

	tr, err := e.dialer.Dial(full, connSink{e: e, gen: gen})
	if err != nil {
		e.notify(notify.Warn(fmt.Errorf("engine: dial: %w", err)))
		return err
	}

	e.mu.Lock()
	e.transportConn = tr
	e.mu.Unlock()
	return nil
}

// buildURL appends the query parameters spec §4.F step 3 requires:
// encoding, API version, and (when zlib compression is configured)
// compress=zlib-stream. Path defaults to "/" if the caller left it empty.
func (e *Engine) buildURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("engine: invalid url %q: %w", raw, err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set("encoding", string(e.codec.Encoding()))
	q.Set("v", strconv.Itoa(e.opts.GatewayAPIVersion))
	if e.opts.Compress == config.CompressZlib {
		q.Set("compress", "zlib-stream")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Disconnect performs a caller-initiated close: clean up local state, close
// the transport if present, and clear the resuming flag (spec §4.F
// "disconnect"). It does not itself decide whether to reconnect — that is
// onTransportClosed's job, driven by the transport's own close callback.
func (e *Engine) Disconnect(code protocol.CloseCode, reason string) {
	e.disconnect(code, reason)
}

func (e *Engine) disconnect(code protocol.CloseCode, reason string) {
	e.cleanup(code)

	e.mu.Lock()
	tr := e.transportConn
	e.transportConn = nil
	e.mu.Unlock()

	if tr != nil {
		tr.Close(int(code), reason)
	}
	e.sess.ClearResuming()
}

// cleanup applies spec §4.F's cleanup step: lock and clear the rate bucket,
// reset the decompressor, wipe session state if the close code warrants it,
// and stop the heartbeat timer.
func (e *Engine) cleanup(code protocol.CloseCode) {
	e.bucket.Clear()
	e.bucket.Lock()
	if e.decomp != nil {
		e.decomp.Reset()
	}
	e.sess.Cleanup(code.ClearsSession())
	e.hb.Stop()
}

// closeTransport forces the live transport closed with code/reason,
// triggering the normal onTransportClosed convergence (notify + reconnect
// decision). If there is no live transport, onTransportClosed runs
// directly since nothing else will invoke it.
func (e *Engine) closeTransport(code protocol.CloseCode, reason string) {
	e.mu.Lock()
	tr := e.transportConn
	gen := e.gen
	e.mu.Unlock()

	if tr != nil {
		tr.Close(int(code), reason)
		return
	}
	e.onTransportClosed(gen, transport.CloseInfo{Code: int(code), Reason: reason})
}

// Kill permanently shuts the engine down: it stops reconnecting, tears down
// the transport, and cancels every registered media session. Kill is
// idempotent (spec §5 invariant 6): only the first call has any effect.
func (e *Engine) Kill() {
	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		return
	}
	e.killed = true
	e.state = StateDead
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
	}
	e.mu.Unlock()

	e.mediaReg.Shutdown()
	e.closeTransport(protocol.CloseNormal, "killed")
	e.bucket.Stop()
	e.notify(notify.Killed(nil))
}

// --- Sink callbacks (the real transport.Sink, via connSink) ------------

// connSink binds a Sink invocation to the connection generation that
// created it, so callbacks from a superseded transport are ignored rather
// than corrupting the engine's current connection state.
type connSink struct {
	e   *Engine
	gen int
}

func (s connSink) OnOpen()                      { s.e.onOpen(s.gen) }
func (s connSink) OnClose(info transport.CloseInfo) { s.e.onTransportClosed(s.gen, info) }
func (s connSink) OnError(err error)            { s.e.onError(s.gen, err) }
func (s connSink) OnMessage(data []byte)        { s.e.onMessage(s.gen, data) }

func (e *Engine) currentGen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// onOpen sends RESUME if the session can resume, else IDENTIFY — both go
// out direct (bucket bypass), since the bucket is still locked from the
// prior cleanup (spec §4.F "onOpen").
func (e *Engine) onOpen(gen int) {
	if gen != e.currentGen() {
		return
	}
	e.mu.Lock()
	e.state = StateOpen
	e.mu.Unlock()

	if e.sess.CanResume() {
		e.sendResume()
	} else {
		e.sendIdentify()
	}
}

// onTransportClosed is the single convergence point for a transport's
// death, whether caused by a deliberate close or the remote hanging up. It
// runs the same cleanup disconnect() performs (idempotent if disconnect()
// already ran), emits exactly one close notification, and then decides
// whether to schedule a reconnect (spec §4.F "onClose").
func (e *Engine) onTransportClosed(gen int, info transport.CloseInfo) {
	if gen != e.currentGen() {
		return
	}

	e.disconnect(protocol.CloseCode(info.Code), info.Reason)
	e.notify(notify.Closed(protocol.CloseCode(info.Code), info.Reason))

	e.mu.Lock()
	killed := e.killed
	auto := e.opts.AutoReconnect
	e.mu.Unlock()
	if killed || !auto {
		return
	}

	if e.sess.ReconnectCount() >= e.opts.ReconnectMax {
		e.Kill()
		return
	}
	e.scheduleReconnect()
}

func (e *Engine) scheduleReconnect() {
	e.mu.Lock()
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
	}
	delay := e.opts.ReconnectDelay
	e.reconnectTimer = time.AfterFunc(delay, func() {
		e.Connect("")
	})
	e.mu.Unlock()

	n := e.sess.IncrementReconnect()
	e.notify(notify.Reconnecting(n))
}

func (e *Engine) onError(gen int, err error) {
	if gen != e.currentGen() {
		return
	}
	e.notify(notify.Warn(fmt.Errorf("engine: transport error: %w", err)))
}

// --- Protocol driver (spec §4.G) ---------------------------------------

func (e *Engine) onMessage(gen int, data []byte) {
	if gen != e.currentGen() {
		return
	}

	raw := data
	if e.decomp != nil {
		inflated, err := e.decomp.Feed(data)
		if err != nil {
			e.notify(notify.Warn(fmt.Errorf("engine: %w", err)))
			e.closeTransport(protocol.CloseInternalRetry, "invalid data")
			return
		}
		if inflated == nil {
			return // partial frame, nothing to decode yet
		}
		raw = inflated
	}

	frame, err := e.codec.Decode(raw)
	if err != nil {
		e.notify(notify.Warn(fmt.Errorf("engine: %w", err)))
		return
	}

	switch frame.Op {
	case protocol.OpHello:
		e.handleHello(frame)
	case protocol.OpHeartbeat:
		e.hb.OnServerRequest()
	case protocol.OpHeartbeatAck:
		e.hb.OnAck()
	case protocol.OpInvalidSession:
		e.handleInvalidSession(frame)
	case protocol.OpReconnect:
		e.closeTransport(protocol.CloseInternalRetry, "server requested reconnect")
	case protocol.OpDispatch:
		e.handleDispatch(frame)
	default:
		e.logger.Debug("unhandled op-code", "op", frame.Op)
	}
}

func (e *Engine) handleHello(frame *protocol.Frame) {
	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(frame.D, &hello); err != nil {
		e.notify(notify.Warn(fmt.Errorf("engine: decoding hello: %w", err)))
		return
	}
	e.hb.Start(hello.HeartbeatInterval)
}

// handleInvalidSession waits a random 1-6s jitter (spec §4.G) before either
// resuming (d truthy) or wiping the session and re-identifying (d falsy).
// Unlike other forced disconnects, this does not close the transport: the
// connection stays open while the client decides how to proceed.
func (e *Engine) handleInvalidSession(frame *protocol.Frame) {
	var resumable bool
	_ = json.Unmarshal(frame.D, &resumable)

	delay := jitter(invalidSessionJitterMin, invalidSessionJitterMax)
	gen := e.currentGen()
	time.AfterFunc(delay, func() {
		if gen != e.currentGen() {
			return
		}
		if resumable {
			e.sess.BeginResume()
			e.sendResume()
			return
		}
		e.sess.Cleanup(true)
		e.sendIdentify()
	})
}

// invalidSessionJitterMin/Max bound the random delay before an
// INVALID_SESSION response (spec §4.G: "a random 1-6s delay"). Declared as
// variables, not constants, so tests can shrink the window instead of
// sleeping for real.
var (
	invalidSessionJitterMin = 1 * time.Second
	invalidSessionJitterMax = 6 * time.Second
)

func jitter(min, max time.Duration) time.Duration {
	span := max - min
	if span <= 0 {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(span)))
}

// handleDispatch applies the sequence-gap check, then routes the five
// inline control events; every other event name is forwarded verbatim to
// application subscribers unless disabled (spec §4.G).
func (e *Engine) handleDispatch(frame *protocol.Frame) {
	if frame.S != nil {
		if e.sess.Observe(*frame.S) == session.SequenceGapDetected {
			e.sendResume()
		}
	}

	event := protocol.DispatchEvent(frame.T)
	switch event {
	case protocol.EventReady:
		e.handleReady(frame.D)
	case protocol.EventResumed:
		e.sess.Resumed()
		e.bucket.Unlock()
		e.mu.Lock()
		e.state = StateIdentified
		e.mu.Unlock()
		e.notify(notify.Ready())
	case protocol.EventGuildDelete:
		var gd struct {
			ID          string `json:"id"`
			Unavailable bool   `json:"unavailable"`
		}
		_ = json.Unmarshal(frame.D, &gd)
		e.mediaReg.HandleGuildDelete(gd.ID, gd.Unavailable)
	case protocol.EventVoiceServerUpdate:
		var vs struct {
			GuildID  string `json:"guild_id"`
			Endpoint string `json:"endpoint"`
			Token    string `json:"token"`
		}
		_ = json.Unmarshal(frame.D, &vs)
		e.mediaReg.HandleVoiceServerUpdate(vs.GuildID, vs.Endpoint, vs.Token)
	case protocol.EventVoiceStateUpdate:
		var vsu struct {
			GuildID   string  `json:"guild_id"`
			ChannelID *string `json:"channel_id"`
			UserID    string  `json:"user_id"`
			SessionID string  `json:"session_id"`
		}
		_ = json.Unmarshal(frame.D, &vsu)
		e.mediaReg.HandleVoiceStateUpdate(vsu.GuildID, vsu.UserID, vsu.SessionID, vsu.ChannelID)
	default:
		if e.opts.IsEventDisabled(string(event)) {
			return
		}
		e.notify(notify.Dispatch(event, frame.D))
	}
}

func (e *Engine) handleReady(d protocol.RawMessage) {
	var ready struct {
		SessionID string `json:"session_id"`
		User      struct {
			ID string `json:"id"`
		} `json:"user"`
		Trace []string `json:"_trace"`
	}
	_ = json.Unmarshal(d, &ready)

	e.sess.Ready(ready.SessionID, ready.User.ID, ready.Trace)
	e.mediaReg.SetUserID(ready.User.ID)
	e.bucket.Unlock()

	e.mu.Lock()
	e.state = StateIdentified
	e.mu.Unlock()

	e.notify(notify.Ready())
}

func (e *Engine) onMissedHeartbeat() {
	e.closeTransport(protocol.CloseInternalRetry, "heartbeat ack never arrived")
}

func (e *Engine) currentSequence() (int64, bool) {
	seq := e.sess.Sequence()
	if seq == 0 {
		return 0, false
	}
	return seq, true
}

// --- Send pipeline (spec §4.Send) ---------------------------------------

func (e *Engine) sendHeartbeatDirect(seq *int64) {
	var payload protocol.RawMessage
	if seq != nil {
		b, _ := json.Marshal(*seq)
		payload = b
	} else {
		payload = protocol.RawMessage("null")
	}
	e.sendFrame(protocol.OpHeartbeat, payload, true)
}

func (e *Engine) sendResume() {
	payload, err := json.Marshal(struct {
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
		Seq       int64  `json:"seq"`
	}{
		Token:     e.opts.Token,
		SessionID: e.sess.SessionID(),
		Seq:       e.sess.Sequence(),
	})
	if err != nil {
		e.notify(notify.Warn(fmt.Errorf("engine: encoding resume: %w", err)))
		return
	}
	e.sendFrame(protocol.OpResume, payload, true)
}

func (e *Engine) sendIdentify() {
	type shardPair = [2]int

	body := struct {
		Token              string              `json:"token"`
		Properties         identify.Properties `json:"properties"`
		Compress           bool                `json:"compress"`
		LargeThreshold     int                 `json:"large_threshold,omitempty"`
		Shard              *shardPair          `json:"shard,omitempty"`
		Presence           *presence.Presence  `json:"presence,omitempty"`
		GuildSubscriptions bool                `json:"guild_subscriptions"`
	}{
		Token:              e.opts.Token,
		Properties:         identify.Get(),
		Compress:           e.opts.Compress == config.CompressZlib,
		LargeThreshold:     e.opts.LargeThreshold,
		GuildSubscriptions: e.opts.GuildSubscriptions,
	}
	if e.opts.ShardCount > 1 {
		body.Shard = &shardPair{e.opts.ShardID, e.opts.ShardCount}
	}
	if e.defaultPresence != nil || e.configuredPresence != nil {
		p := presence.Build(e.defaultPresence, e.configuredPresence, nil)
		body.Presence = &p
	}

	payload, err := json.Marshal(body)
	if err != nil {
		e.notify(notify.Warn(fmt.Errorf("engine: encoding identify: %w", err)))
		return
	}
	e.sendFrame(protocol.OpIdentify, payload, true)
}

// sendFrame encodes op/payload and either sends it directly (bypassing the
// bucket, used for IDENTIFY, RESUME and heartbeats) or queues it
// through the rate bucket (everything else: presence updates, voice state,
// guild member requests — spec §4.Send).
func (e *Engine) sendFrame(op protocol.Op, payload protocol.RawMessage, direct bool) {
	encoded, err := e.codec.Encode(&protocol.Frame{Op: op, D: payload})
	if err != nil {
		e.notify(notify.Warn(fmt.Errorf("engine: encoding frame: %w", err)))
		return
	}
	if direct {
		e.directSend(encoded)
		return
	}
	e.bucketedSend(encoded)
}

func (e *Engine) directSend(encoded []byte) {
	e.mu.Lock()
	tr := e.transportConn
	e.mu.Unlock()
	if tr == nil {
		e.notify(notify.Warn(errors.New("engine: dropped frame: not connected")))
		return
	}
	if err := tr.Send(encoded, nil); err != nil {
		e.notify(notify.Warn(fmt.Errorf("engine: direct send: %w", err)))
	}
}

// bucketedSend queues encoded behind the rate bucket. The queued task
// re-checks connectivity at drain time (spec §4.Send step 4: "if bucket
// locked or not connected, re-queue"); in practice the bucket is always
// locked while disconnected (cleanup locks it before dropping the
// transport), so this is a defensive second check rather than the primary
// mechanism.
func (e *Engine) bucketedSend(encoded []byte) {
	var task ratebucket.Work
	task = func() {
		e.mu.Lock()
		tr := e.transportConn
		e.mu.Unlock()
		if tr == nil {
			e.bucket.Lock()
			e.bucket.Add(task)
			return
		}
		if err := tr.Send(encoded, nil); err != nil {
			e.notify(notify.Warn(fmt.Errorf("engine: bucketed send: %w", err)))
		}
	}
	e.bucket.Add(task)
}

func (e *Engine) notify(n notify.Notification) {
	if e.notifySink != nil {
		e.notifySink(n)
	}
}

// --- Public application API --------------------------------------------

// UpdatePresence merges update over the configured/default presence and
// sends a PRESENCE_UPDATE, bucketed like any other non-heartbeat frame.
func (e *Engine) UpdatePresence(update *presence.Update) error {
	if e.isDead() {
		return ErrDead
	}
	p := presence.Build(e.defaultPresence, e.configuredPresence, update)
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("engine: encoding presence: %w", err)
	}
	e.sendFrame(protocol.OpPresenceUpdate, payload, false)
	return nil
}

// RequestGuildMembers sends a pre-encoded REQUEST_GUILD_MEMBERS payload,
// bucketed.
func (e *Engine) RequestGuildMembers(payload protocol.RawMessage) error {
	if e.isDead() {
		return ErrDead
	}
	e.sendFrame(protocol.OpRequestGuildMembers, payload, false)
	return nil
}

// VoiceConnect requests (or releases, if channelID is nil) a voice
// connection for the given guild, delegating to the media registry (spec
// §4.H). The outbound VOICE_STATE_UPDATE frame it sends goes out bucketed.
func (e *Engine) VoiceConnect(ctx context.Context, guildID string, channelID *string) (*media.Session, error) {
	if e.isDead() {
		return nil, ErrDead
	}
	return e.mediaReg.Connect(ctx, guildID, channelID)
}

func (e *Engine) sendVoiceStateUpdate(guildID string, channelID *string) error {
	payload, err := json.Marshal(struct {
		GuildID   string  `json:"guild_id"`
		ChannelID *string `json:"channel_id"`
		SelfMute  bool    `json:"self_mute"`
		SelfDeaf  bool    `json:"self_deaf"`
	}{GuildID: guildID, ChannelID: channelID})
	if err != nil {
		return fmt.Errorf("engine: encoding voice state update: %w", err)
	}
	e.sendFrame(protocol.OpVoiceStateUpdate, payload, false)
	return nil
}

// --- Stream control & lobby ops (spec §1, §4.Send: "stream control, lobby
// ops" go through the bucket alongside presence/voice-state/guild-member
// sends) -------------------------------------------------------------------

// GuildSubscriptionsUpdate toggles per-guild typing/activity/thread event
// subscriptions and requests member-list ranges for specific channels.
func (e *Engine) GuildSubscriptionsUpdate(guildID string, typing, activities, threads bool, channelRanges map[string][][2]int) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		GuildID    string              `json:"guild_id"`
		Typing     bool                `json:"typing"`
		Activities bool                `json:"activities"`
		Threads    bool                `json:"threads"`
		Channels   map[string][][2]int `json:"channels,omitempty"`
	}{GuildID: guildID, Typing: typing, Activities: activities, Threads: threads, Channels: channelRanges})
	if err != nil {
		return fmt.Errorf("engine: encoding guild subscriptions: %w", err)
	}
	e.sendFrame(protocol.OpGuildSubscriptions, payload, false)
	return nil
}

// CallConnect joins the voice channel of a direct-message call.
func (e *Engine) CallConnect(channelID string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		ChannelID string `json:"channel_id"`
	}{ChannelID: channelID})
	if err != nil {
		return fmt.Errorf("engine: encoding call connect: %w", err)
	}
	e.sendFrame(protocol.OpCallConnect, payload, false)
	return nil
}

// LobbyConnect joins a lobby identified by id and secret.
func (e *Engine) LobbyConnect(lobbyID, lobbySecret string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		LobbyID     string `json:"lobby_id"`
		LobbySecret string `json:"lobby_secret"`
	}{LobbyID: lobbyID, LobbySecret: lobbySecret})
	if err != nil {
		return fmt.Errorf("engine: encoding lobby connect: %w", err)
	}
	e.sendFrame(protocol.OpLobbyConnect, payload, false)
	return nil
}

// LobbyDisconnect leaves a previously joined lobby.
func (e *Engine) LobbyDisconnect(lobbyID string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		LobbyID string `json:"lobby_id"`
	}{LobbyID: lobbyID})
	if err != nil {
		return fmt.Errorf("engine: encoding lobby disconnect: %w", err)
	}
	e.sendFrame(protocol.OpLobbyDisconnect, payload, false)
	return nil
}

// LobbyVoiceStatesUpdate updates this client's mute/deafen state within a
// lobby's voice channel.
func (e *Engine) LobbyVoiceStatesUpdate(lobbyID string, selfMute, selfDeaf bool) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		LobbyID  string `json:"lobby_id"`
		SelfMute bool   `json:"self_mute"`
		SelfDeaf bool   `json:"self_deaf"`
	}{LobbyID: lobbyID, SelfMute: selfMute, SelfDeaf: selfDeaf})
	if err != nil {
		return fmt.Errorf("engine: encoding lobby voice states update: %w", err)
	}
	e.sendFrame(protocol.OpLobbyVoiceStates, payload, false)
	return nil
}

// StreamCreate requests a new screen-share/"Go Live" stream on a guild
// voice channel or a private call. The server answers out-of-band with a
// dispatch event carrying the assigned stream_key.
func (e *Engine) StreamCreate(streamType, guildID, channelID string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		Type      string `json:"type"`
		GuildID   string `json:"guild_id,omitempty"`
		ChannelID string `json:"channel_id"`
	}{Type: streamType, GuildID: guildID, ChannelID: channelID})
	if err != nil {
		return fmt.Errorf("engine: encoding stream create: %w", err)
	}
	e.sendFrame(protocol.OpStreamCreate, payload, false)
	return nil
}

// StreamDelete ends a stream this client owns.
func (e *Engine) StreamDelete(streamKey string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		StreamKey string `json:"stream_key"`
	}{StreamKey: streamKey})
	if err != nil {
		return fmt.Errorf("engine: encoding stream delete: %w", err)
	}
	e.sendFrame(protocol.OpStreamDelete, payload, false)
	return nil
}

// StreamWatch begins watching another user's stream.
func (e *Engine) StreamWatch(streamKey string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		StreamKey string `json:"stream_key"`
	}{StreamKey: streamKey})
	if err != nil {
		return fmt.Errorf("engine: encoding stream watch: %w", err)
	}
	e.sendFrame(protocol.OpStreamWatch, payload, false)
	return nil
}

// StreamPing keeps a watched or owned stream alive.
func (e *Engine) StreamPing(streamKey string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		StreamKey string `json:"stream_key"`
	}{StreamKey: streamKey})
	if err != nil {
		return fmt.Errorf("engine: encoding stream ping: %w", err)
	}
	e.sendFrame(protocol.OpStreamPing, payload, false)
	return nil
}

// StreamSetPaused pauses or resumes a stream this client owns.
func (e *Engine) StreamSetPaused(streamKey string, paused bool) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		StreamKey string `json:"stream_key"`
		Paused    bool   `json:"paused"`
	}{StreamKey: streamKey, Paused: paused})
	if err != nil {
		return fmt.Errorf("engine: encoding stream set paused: %w", err)
	}
	e.sendFrame(protocol.OpStreamSetPaused, payload, false)
	return nil
}

// VoiceServerPing measures round-trip latency to the active voice server.
func (e *Engine) VoiceServerPing(nonce string) error {
	if e.isDead() {
		return ErrDead
	}
	payload, err := json.Marshal(struct {
		Nonce string `json:"nonce"`
	}{Nonce: nonce})
	if err != nil {
		return fmt.Errorf("engine: encoding voice server ping: %w", err)
	}
	e.sendFrame(protocol.OpVoiceServerPing, payload, false)
	return nil
}
