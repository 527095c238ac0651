// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transport

import "testing"

type recordingSink struct {
	opened   bool
	closed   *CloseInfo
	messages [][]byte
	errs     []error
}

func (s *recordingSink) OnOpen()                { s.opened = true }
func (s *recordingSink) OnClose(info CloseInfo)  { s.closed = &info }
func (s *recordingSink) OnError(err error)       { s.errs = append(s.errs, err) }
func (s *recordingSink) OnMessage(data []byte)   { s.messages = append(s.messages, data) }

func TestFake_SendRecordsFrames(t *testing.T) {
	sink := &recordingSink{}
	f := NewFake(sink)

	if err := f.Send([]byte("hello"), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := f.Sent()
	if len(sent) != 1 || string(sent[0]) != "hello" {
		t.Fatalf("unexpected sent frames: %+v", sent)
	}
}

func TestFake_SendAfterCloseFails(t *testing.T) {
	sink := &recordingSink{}
	f := NewFake(sink)
	f.Close(1000, "bye")

	if err := f.Send([]byte("x"), nil); err != ErrFakeClosed {
		t.Fatalf("expected ErrFakeClosed, got %v", err)
	}
}

func TestFake_SimulateMessageReachesSink(t *testing.T) {
	sink := &recordingSink{}
	f := NewFake(sink)

	f.SimulateOpen()
	f.SimulateMessage([]byte("frame"))

	if !sink.opened {
		t.Fatal("expected OnOpen to have fired")
	}
	if len(sink.messages) != 1 || string(sink.messages[0]) != "frame" {
		t.Fatalf("unexpected messages: %+v", sink.messages)
	}
}

func TestFake_CloseIsIdempotentTowardSink(t *testing.T) {
	sink := &recordingSink{}
	f := NewFake(sink)

	f.Close(1000, "first")
	f.Close(1000, "second")

	if sink.closed == nil || sink.closed.Reason != "first" {
		t.Fatalf("expected only the first close to reach the sink, got %+v", sink.closed)
	}
}
