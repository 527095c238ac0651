// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/gatewayclient/internal/config"
	"github.com/nishisan-dev/gatewayclient/internal/notify"
	"github.com/nishisan-dev/gatewayclient/internal/protocol"
	"github.com/nishisan-dev/gatewayclient/internal/transport"
)

// stubDialer hands back a transport.Fake bound to whatever sink the engine
// provides, capturing it so the test can drive the connection.
type stubDialer struct {
	mu  sync.Mutex
	tr  *transport.Fake
	url string
}

func (d *stubDialer) Dial(url string, sink transport.Sink) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	d.tr = transport.NewFake(sink)
	return d.tr, nil
}

func (d *stubDialer) fake() *transport.Fake {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recordingNotify() (notify.Sink, func() []notify.Notification) {
	var mu sync.Mutex
	var got []notify.Notification
	return func(n notify.Notification) {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}, func() []notify.Notification {
			mu.Lock()
			defer mu.Unlock()
			return append([]notify.Notification(nil), got...)
		}
}

func testOptions() config.Options {
	o := config.Defaults()
	o.URL = "wss://gateway.example.com"
	o.Token = "tok"
	o.ReconnectDelay = 10 * time.Millisecond
	o.Compress = config.CompressNone // skip zlib framing for frame-level tests
	return o
}

func newTestEngine(t *testing.T) (*Engine, *stubDialer, func() []notify.Notification) {
	t.Helper()
	dialer := &stubDialer{}
	sinkFn, drain := recordingNotify()
	e, err := New(testOptions(), dialer, sinkFn, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, dialer, drain
}

func decodeSent(t *testing.T, raw []byte) protocol.Frame {
	t.Helper()
	var f protocol.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decoding sent frame: %v", err)
	}
	return f
}

func TestConnect_SendsIdentifyOnOpen(t *testing.T) {
	e, dialer, _ := newTestEngine(t)

	if err := e.Connect(""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.fake().SimulateOpen()

	sent := dialer.fake().Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one frame sent on open, got %d", len(sent))
	}
	f := decodeSent(t, sent[0])
	if f.Op != protocol.OpIdentify {
		t.Fatalf("op = %v, want OpIdentify", f.Op)
	}
}

func TestReady_EstablishesSessionAndUnlocksBucket(t *testing.T) {
	e, dialer, drain := newTestEngine(t)
	if err := e.Connect(""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.fake().SimulateOpen()

	ready, _ := json.Marshal(struct {
		Op int    `json:"op"`
		T  string `json:"t"`
		S  int64  `json:"s"`
		D  any    `json:"d"`
	}{
		Op: 0, T: "READY", S: 1,
		D: map[string]any{"session_id": "S1", "user": map[string]string{"id": "U1"}},
	})
	dialer.fake().SimulateMessage(ready)

	if e.SessionID() != "S1" {
		t.Fatalf("SessionID() = %q, want S1", e.SessionID())
	}
	if e.Sequence() != 1 {
		t.Fatalf("Sequence() = %d, want 1", e.Sequence())
	}

	if err := e.UpdatePresence(nil); err != nil {
		t.Fatalf("UpdatePresence: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(dialer.fake().Sent()) < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	sent := dialer.fake().Sent()
	if len(sent) < 2 {
		t.Fatalf("expected presence update to drain through the unlocked bucket, got %d frames", len(sent))
	}

	found := false
	for _, n := range drain() {
		if n.Kind == notify.KindReady {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a ready notification")
	}
}

func TestStreamAndLobbyOps_SendBucketedFrames(t *testing.T) {
	e, dialer, _ := newTestEngine(t)
	if err := e.Connect(""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.fake().SimulateOpen()

	ready, _ := json.Marshal(map[string]any{
		"op": 0, "t": "READY", "s": 1,
		"d": map[string]any{"session_id": "S1", "user": map[string]string{"id": "U1"}},
	})
	dialer.fake().SimulateMessage(ready)

	calls := []struct {
		name string
		op   protocol.Op
		do   func() error
	}{
		{"GuildSubscriptionsUpdate", protocol.OpGuildSubscriptions, func() error {
			return e.GuildSubscriptionsUpdate("G1", true, true, false, nil)
		}},
		{"CallConnect", protocol.OpCallConnect, func() error { return e.CallConnect("C1") }},
		{"LobbyConnect", protocol.OpLobbyConnect, func() error { return e.LobbyConnect("L1", "secret") }},
		{"LobbyDisconnect", protocol.OpLobbyDisconnect, func() error { return e.LobbyDisconnect("L1") }},
		{"LobbyVoiceStatesUpdate", protocol.OpLobbyVoiceStates, func() error {
			return e.LobbyVoiceStatesUpdate("L1", false, false)
		}},
		{"StreamCreate", protocol.OpStreamCreate, func() error { return e.StreamCreate("guild", "G1", "CH1") }},
		{"StreamDelete", protocol.OpStreamDelete, func() error { return e.StreamDelete("SK1") }},
		{"StreamWatch", protocol.OpStreamWatch, func() error { return e.StreamWatch("SK1") }},
		{"StreamPing", protocol.OpStreamPing, func() error { return e.StreamPing("SK1") }},
		{"StreamSetPaused", protocol.OpStreamSetPaused, func() error { return e.StreamSetPaused("SK1", true) }},
		{"VoiceServerPing", protocol.OpVoiceServerPing, func() error { return e.VoiceServerPing("nonce") }},
	}

	for _, c := range calls {
		if err := c.do(); err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(dialer.fake().Sent()) < len(calls)+1 {
		time.Sleep(5 * time.Millisecond)
	}

	seen := map[protocol.Op]bool{}
	for _, raw := range dialer.fake().Sent() {
		seen[decodeSent(t, raw).Op] = true
	}
	for _, c := range calls {
		if !seen[c.op] {
			t.Fatalf("expected a frame with op %v from %s, got none", c.op, c.name)
		}
	}
}

func TestSequenceGap_TriggersResume(t *testing.T) {
	e, dialer, _ := newTestEngine(t)
	if err := e.Connect(""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.fake().SimulateOpen()

	ready, _ := json.Marshal(map[string]any{
		"op": 0, "t": "READY", "s": 1,
		"d": map[string]any{"session_id": "S1", "user": map[string]string{"id": "U1"}},
	})
	dialer.fake().SimulateMessage(ready)

	gap, _ := json.Marshal(map[string]any{
		"op": 0, "t": "SOME_EVENT", "s": 10,
		"d": map[string]any{},
	})
	dialer.fake().SimulateMessage(gap)

	var sawResume bool
	for _, raw := range dialer.fake().Sent() {
		if decodeSent(t, raw).Op == protocol.OpResume {
			sawResume = true
		}
	}
	if !sawResume {
		t.Fatal("expected a resume frame after a sequence gap")
	}
}

func TestMissedHeartbeat_ClosesAndReconnects(t *testing.T) {
	e, dialer, drain := newTestEngine(t)
	if err := e.Connect(""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := dialer.fake()
	first.SimulateOpen()

	hello, _ := json.Marshal(map[string]any{"op": 10, "d": map[string]any{"heartbeat_interval": 20}})
	first.SimulateMessage(hello)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !first.Closed() {
		time.Sleep(10 * time.Millisecond)
	}
	if !first.Closed() {
		t.Fatal("expected the transport to close after a missed heartbeat ack")
	}

	var sawClose, sawReconnecting bool
	for _, n := range drain() {
		if n.Kind == notify.KindClose {
			sawClose = true
		}
		if n.Kind == notify.KindReconnecting {
			sawReconnecting = true
		}
	}
	if !sawClose || !sawReconnecting {
		t.Fatalf("expected close+reconnecting notifications, got close=%v reconnecting=%v", sawClose, sawReconnecting)
	}
}

func TestInvalidSession_NotResumable_ReIdentifies(t *testing.T) {
	oldMin, oldMax := invalidSessionJitterMin, invalidSessionJitterMax
	invalidSessionJitterMin, invalidSessionJitterMax = time.Millisecond, 2*time.Millisecond
	defer func() { invalidSessionJitterMin, invalidSessionJitterMax = oldMin, oldMax }()

	e, dialer, _ := newTestEngine(t)
	if err := e.Connect(""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.fake().SimulateOpen()

	ready, _ := json.Marshal(map[string]any{
		"op": 0, "t": "READY", "s": 1,
		"d": map[string]any{"session_id": "S1", "user": map[string]string{"id": "U1"}},
	})
	dialer.fake().SimulateMessage(ready)

	invalid, _ := json.Marshal(map[string]any{"op": 9, "d": false})
	dialer.fake().SimulateMessage(invalid)

	deadline := time.Now().Add(time.Second)
	identifyCount := 0
	for time.Now().Before(deadline) {
		identifyCount = 0
		for _, raw := range dialer.fake().Sent() {
			if decodeSent(t, raw).Op == protocol.OpIdentify {
				identifyCount++
			}
		}
		if identifyCount >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if identifyCount < 2 {
		t.Fatalf("expected a second identify after a non-resumable invalid session, got %d", identifyCount)
	}
	if e.SessionID() != "" {
		t.Fatalf("expected session id cleared, got %q", e.SessionID())
	}
}

func TestKill_IsIdempotentAndEmitsOneKilled(t *testing.T) {
	e, dialer, drain := newTestEngine(t)
	if err := e.Connect(""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.fake().SimulateOpen()

	e.Kill()
	e.Kill()

	killedCount := 0
	for _, n := range drain() {
		if n.Kind == notify.KindKilled {
			killedCount++
		}
	}
	if killedCount != 1 {
		t.Fatalf("expected exactly one killed notification, got %d", killedCount)
	}

	if err := e.Connect(""); err != ErrDead {
		t.Fatalf("Connect after kill: %v, want ErrDead", err)
	}
}
