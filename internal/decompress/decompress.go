// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package decompress implements the gateway's zlib-stream framing: a single
// zlib stream, shared across the whole connection, periodically flushed by
// the server at frame boundaries marked by a fixed four-byte suffix.
package decompress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// EndOfFrameMarker is the fixed four-byte suffix the gateway appends after
// every zlib sync-flush, terminating one logical compressed frame (spec
// §3 "Decompressor buffer", §4.B).
var EndOfFrameMarker = [4]byte{0x00, 0x00, 0xff, 0xff}

// Stream buffers compressed chunks and emits complete inflated frames.
// A single zlib.Reader spans the whole connection: the server never resets
// compression state between frames, only flushes it, so the reader must be
// fed the same continuous buffer across many Feed calls rather than
// recreated per frame.
type Stream struct {
	buf   *bytes.Buffer
	zr    io.ReadCloser
	tail  []byte // last up to len(EndOfFrameMarker) bytes seen, to detect a
	// marker split across Feed calls at arbitrary chunk boundaries.
}

// New creates a Stream ready to accept compressed chunks.
func New() *Stream {
	s := &Stream{buf: new(bytes.Buffer)}
	return s
}

// Feed appends a compressed chunk. If the cumulative input received since
// the last emitted frame (or since the last Reset) now ends with
// EndOfFrameMarker, Feed inflates everything buffered so far and returns it
// as one complete frame. Otherwise it returns (nil, nil): no frame yet.
//
// An error return means the zlib stream is corrupt; per spec §4.B the
// caller must force a reconnect with cause "invalid data" rather than retry
// Feed.
func (s *Stream) Feed(chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	if _, err := s.buf.Write(chunk); err != nil {
		return nil, fmt.Errorf("decompress: buffering chunk: %w", err)
	}
	s.updateTail(chunk)

	if !bytes.Equal(s.tail, EndOfFrameMarker[:]) {
		return nil, nil
	}

	if s.zr == nil {
		zr, err := zlib.NewReader(s.buf)
		if err != nil {
			return nil, fmt.Errorf("decompress: initializing zlib stream: %w", err)
		}
		s.zr = zr
	}

	// Read only until the buffered input is consumed: the stream never ends,
	// so reading on to EOF would hit an unexpected-EOF error and leave the
	// shared reader unusable for the next frame.
	var out bytes.Buffer
	p := make([]byte, 32*1024)
	for s.buf.Len() > 0 {
		n, err := s.zr.Read(p)
		out.Write(p[:n])
		if err != nil {
			return nil, fmt.Errorf("decompress: inflating frame: %w", err)
		}
	}

	return out.Bytes(), nil
}

// updateTail maintains the rolling window of the last len(EndOfFrameMarker)
// bytes written, independent of how the writes were chunked.
func (s *Stream) updateTail(chunk []byte) {
	n := len(EndOfFrameMarker)
	combined := append(s.tail, chunk...)
	if len(combined) > n {
		combined = combined[len(combined)-n:]
	}
	s.tail = append([]byte(nil), combined...)
}

// Reset discards any partial buffer and reinitializes the inflate context.
// Required after any disconnect (spec §4.B) since the server starts a fresh
// zlib stream on the next connection.
func (s *Stream) Reset() {
	if s.zr != nil {
		s.zr.Close()
		s.zr = nil
	}
	s.buf = new(bytes.Buffer)
	s.tail = nil
}
