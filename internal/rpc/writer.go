package rpc

import (
	"fmt"
	"io"
	"sync"
)

// frameWriter serializes response frames onto the protocol stream. Every
// frame is written with a single Write call under the lock, so frames never
// interleave. In ordered mode frames are released in reservation order; a
// frame that completes early waits until every earlier frame was written.
type frameWriter struct {
	mu      sync.Mutex
	out     io.Writer
	ordered bool
	issued  uint64
	next    uint64
	pending map[uint64][]byte
	err     error
}

func newFrameWriter(out io.Writer, ordered bool) *frameWriter {
	return &frameWriter{
		out:     out,
		ordered: ordered,
		pending: make(map[uint64][]byte),
	}
}

// reserve claims the next slot in the output order.
func (w *frameWriter) reserve() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ticket := w.issued
	w.issued++
	return ticket
}

// complete hands in the frame for ticket. A nil frame releases the slot
// without writing anything.
func (w *frameWriter) complete(ticket uint64, frame []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.ordered {
		w.write(frame)
		return
	}

	w.pending[ticket] = frame
	for {
		f, ok := w.pending[w.next]
		if !ok {
			return
		}
		delete(w.pending, w.next)
		w.next++
		w.write(f)
	}
}

// write must be called with w.mu held.
func (w *frameWriter) write(frame []byte) {
	if len(frame) == 0 || w.err != nil {
		return
	}
	if _, err := w.out.Write(frame); err != nil {
		w.err = fmt.Errorf("out.Write failed: %w", err)
	}
}

func (w *frameWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.err
}
