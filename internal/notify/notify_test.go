// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package notify

import (
	"errors"
	"testing"

	"github.com/nishisan-dev/gatewayclient/internal/protocol"
)

func TestConstructors_SetExpectedKindAndFields(t *testing.T) {
	errBoom := errors.New("boom")

	if n := Warn(errBoom); n.Kind != KindWarn || n.Err != errBoom {
		t.Fatalf("Warn: unexpected notification %+v", n)
	}
	if n := Closed(protocol.CloseGoingAway, "bye"); n.Kind != KindClose || n.CloseCode != protocol.CloseGoingAway || n.Reason != "bye" {
		t.Fatalf("Closed: unexpected notification %+v", n)
	}
	if n := Killed(errBoom); n.Kind != KindKilled || n.Err != errBoom {
		t.Fatalf("Killed: unexpected notification %+v", n)
	}
	if n := Dispatch(protocol.EventGuildDelete, protocol.RawMessage(`{}`)); n.Kind != KindDispatch || n.Event != protocol.EventGuildDelete {
		t.Fatalf("Dispatch: unexpected notification %+v", n)
	}
	if n := Ready(); n.Kind != KindReady {
		t.Fatalf("Ready: unexpected notification %+v", n)
	}
	if n := Reconnecting(3); n.Kind != KindReconnecting || n.Attempt != 3 {
		t.Fatalf("Reconnecting: unexpected notification %+v", n)
	}
}
