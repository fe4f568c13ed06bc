// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package expressions

import (
	"errors"
	"sync/atomic"

	"github.com/pdiddy/expression-learner/pkg/types"
)

var (
	// ErrStreamFinished is returned by Feed and Finish after Finish.
	ErrStreamFinished = errors.New("expression stream already finished")

	// ErrConcurrentFeed is returned when a Stream is entered while another
	// Feed or Finish call on it is still running, including re-entry from
	// the emit callback.
	ErrConcurrentFeed = errors.New("expression stream used concurrently")
)

// EmitFunc receives each accepted expression as soon as its marker closes.
type EmitFunc func(types.Expression)

// Stream extracts expressions from text that arrives in fragments. For any
// split of a text into fragments, feeding them in order emits exactly the
// expressions Extract returns for the whole text.
//
// A Stream belongs to one producer (one assistant turn). It keeps only the
// unconsumed tail of the text: everything up to the end of the last marker,
// plus any leading text that can no longer start a marker, is dropped after
// each Feed.
type Stream struct {
	emit     EmitFunc
	buf      []byte
	consumed int
	finished bool
	busy     atomic.Bool
}

// NewStream returns an empty Stream that reports expressions to emit.
func NewStream(emit EmitFunc) *Stream {
	if emit == nil {
		emit = func(types.Expression) {}
	}
	return &Stream{emit: emit}
}

// Feed appends fragment and emits every expression whose marker is now
// complete.
func (s *Stream) Feed(fragment string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrConcurrentFeed
	}
	defer s.busy.Store(false)

	if s.finished {
		return ErrStreamFinished
	}
	if fragment == "" {
		return nil
	}

	s.buf = append(s.buf, fragment...)
	s.drain()
	return nil
}

// Finish ends the stream. It emits any complete, valid marker still held in
// the tail; since Feed drains complete markers eagerly there is normally
// nothing left. An unclosed marker is discarded. The Stream cannot be used
// afterwards.
func (s *Stream) Finish() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrConcurrentFeed
	}
	defer s.busy.Store(false)

	if s.finished {
		return ErrStreamFinished
	}
	s.drain()
	s.finished = true
	s.consumed += len(s.buf)
	s.buf = nil
	return nil
}

// Consumed returns the number of bytes fed so far that have been dropped
// from the buffer.
func (s *Stream) Consumed() int {
	return s.consumed
}

// Buffered returns the number of bytes currently retained.
func (s *Stream) Buffered() int {
	return len(s.buf)
}

// drain emits all complete markers in the buffer and trims the consumed
// prefix.
func (s *Stream) drain() {
	pos := 0
	for {
		m, ok := nextMarker(s.buf, pos)
		if !ok {
			break
		}
		if expr, ok := New(m.phrase, m.meaning); ok {
			s.emit(expr)
		}
		pos = m.end
	}

	cut := pos + deadPrefix(s.buf[pos:])
	s.consumed += cut
	if cut == len(s.buf) {
		s.buf = s.buf[:0]
		return
	}
	s.buf = s.buf[cut:]
}
