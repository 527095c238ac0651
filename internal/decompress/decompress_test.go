// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package decompress

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// compressFramed produces zlib-stream wire bytes for a set of payloads: one
// continuous zlib stream, sync-flushed after each payload so each flush ends
// with EndOfFrameMarker.
func compressFramed(t *testing.T, payloads ...[]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	for _, p := range payloads {
		if _, err := zw.Write(p); err != nil {
			t.Fatalf("writing payload: %v", err)
		}
		if err := zw.Flush(); err != nil {
			t.Fatalf("flushing: %v", err)
		}
	}
	return out.Bytes()
}

func TestStream_SingleChunkPerFrame(t *testing.T) {
	wire := compressFramed(t, []byte(`{"op":10}`))

	s := New()
	frame, err := s.Feed(wire)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if string(frame) != `{"op":10}` {
		t.Fatalf("expected decoded frame, got %q", frame)
	}
}

func TestStream_TwoFlushesInOneStream(t *testing.T) {
	payloadA := []byte(`{"op":10,"n":1}`)
	payloadB := []byte(`{"op":11,"n":2}`)

	var wire bytes.Buffer
	zw := zlib.NewWriter(&wire)
	if _, err := zw.Write(payloadA); err != nil {
		t.Fatalf("write A: %v", err)
	}
	if err := zw.Flush(); err != nil {
		t.Fatalf("flush A: %v", err)
	}
	boundary := wire.Len()
	if _, err := zw.Write(payloadB); err != nil {
		t.Fatalf("write B: %v", err)
	}
	if err := zw.Flush(); err != nil {
		t.Fatalf("flush B: %v", err)
	}

	full := wire.Bytes()

	s := New()
	frameA, err := s.Feed(full[:boundary])
	if err != nil {
		t.Fatalf("Feed A: %v", err)
	}
	if string(frameA) != string(payloadA) {
		t.Fatalf("frame A = %q, want %q", frameA, payloadA)
	}

	frameB, err := s.Feed(full[boundary:])
	if err != nil {
		t.Fatalf("Feed B: %v", err)
	}
	if string(frameB) != string(payloadB) {
		t.Fatalf("frame B = %q, want %q", frameB, payloadB)
	}
}

func TestStream_ArbitraryChunkSplitsProduceSameFrames(t *testing.T) {
	payload := []byte(`{"op":0,"t":"READY","d":{"session_id":"abc"}}`)
	wire := compressFramed(t, payload)

	// Whole-buffer baseline.
	whole := New()
	wantFrame, err := whole.Feed(wire)
	if err != nil {
		t.Fatalf("baseline Feed: %v", err)
	}

	// Byte-at-a-time.
	s := New()
	var frames [][]byte
	for i := range wire {
		f, err := s.Feed(wire[i : i+1])
		if err != nil {
			t.Fatalf("chunked Feed at byte %d: %v", i, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}

	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame from byte-at-a-time feed, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], wantFrame) {
		t.Fatalf("chunked frame %q != whole-buffer frame %q", frames[0], wantFrame)
	}
}

func TestStream_ResetDiscardsPartialBuffer(t *testing.T) {
	wire := compressFramed(t, []byte(`{"op":10}`))

	s := New()
	// Feed everything except the final marker bytes: no frame yet.
	partial := wire[:len(wire)-len(EndOfFrameMarker)]
	f, err := s.Feed(partial)
	if err != nil {
		t.Fatalf("Feed partial: %v", err)
	}
	if f != nil {
		t.Fatalf("expected no frame from partial input, got %q", f)
	}

	s.Reset()

	// After Reset, a fresh full frame must still decode correctly.
	wire2 := compressFramed(t, []byte(`{"op":11}`))
	f2, err := s.Feed(wire2)
	if err != nil {
		t.Fatalf("Feed after reset: %v", err)
	}
	if string(f2) != `{"op":11}` {
		t.Fatalf("expected fresh frame after reset, got %q", f2)
	}
}

func TestStream_InvalidDataReturnsError(t *testing.T) {
	s := New()
	garbage := append([]byte{0x01, 0x02, 0x03, 0x04}, EndOfFrameMarker[:]...)
	if _, err := s.Feed(garbage); err == nil {
		t.Fatal("expected error decoding garbage zlib stream")
	}
}
