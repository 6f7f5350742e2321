// Package capture keeps the most recent output of a child process so it can
// be reported when the process fails.
package capture

import (
	"bytes"
	"strings"
	"sync"
)

// DefaultSize is the capture capacity used for agent output.
const DefaultSize = 16 * 1024

// RingBuffer is an io.Writer that retains the last size bytes written to it.
// Older bytes are overwritten once the buffer is full. It is safe for
// concurrent use, so one buffer may serve as both Stdout and Stderr of an
// exec.Cmd.
//
// With a 5-byte buffer:
//
//	Write "abc": [a b c _ _]  head=3
//	Write "de":  [a b c d e]  head=0, full
//	Write "fg":  [f g c d e]  head=2 -> Bytes() = "cdefg"
type RingBuffer struct {
	mu    sync.RWMutex
	data  []byte
	head  int
	full  bool
	total int64
}

// NewRingBuffer creates a ring buffer holding at most size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &RingBuffer{data: make([]byte, size)}
}

// Write implements io.Writer. It always consumes all of p.
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	r.total += int64(n)
	size := len(r.data)
	if n >= size {
		copy(r.data, p[n-size:])
		r.head = 0
		r.full = true
		return n, nil
	}

	c := copy(r.data[r.head:], p)
	if c < n {
		copy(r.data, p[c:])
		r.full = true
	} else if r.head+c == size {
		r.full = true
	}
	r.head = (r.head + n) % size
	return n, nil
}

// Bytes returns a copy of the retained bytes, oldest first.
func (r *RingBuffer) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		return bytes.Clone(r.data[:r.head])
	}
	out := make([]byte, 0, len(r.data))
	out = append(out, r.data[r.head:]...)
	return append(out, r.data[:r.head]...)
}

// Total returns the number of bytes ever written, including overwritten ones.
func (r *RingBuffer) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Truncated reports whether any output was overwritten.
func (r *RingBuffer) Truncated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total > int64(len(r.data))
}

// Tail returns up to n complete trailing lines. When the buffer has wrapped,
// the first partial line is dropped.
func (r *RingBuffer) Tail(n int) []string {
	if n <= 0 {
		return nil
	}
	text := string(r.Bytes())
	if r.Truncated() {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
	}
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
