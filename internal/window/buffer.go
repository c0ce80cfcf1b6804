// SPDX-License-Identifier: MIT

// Package window slices an unbounded stream of samples into fixed-size
// analysis windows. Chunks arrive in whatever sizes the audio driver
// chooses; the buffer keeps the unconsumed tail between pushes so the
// emitted windows depend only on the concatenated sample sequence, never
// on how it was split.
package window

import "fmt"

// Buffer accumulates samples and emits complete windows. A Buffer is not
// safe for concurrent use; the owning session serialises pushes.
type Buffer struct {
	size    int
	hop     int
	backlog []float32
}

// New returns a Buffer emitting windows of size samples, advancing by hop
// samples between windows. hop == size gives disjoint windows covering
// every sample exactly once; hop < size gives overlapping windows.
func New(size, hop int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	if hop <= 0 || hop > size {
		return nil, fmt.Errorf("hop size must be in (0, %d], got %d", size, hop)
	}
	return &Buffer{
		size:    size,
		hop:     hop,
		backlog: make([]float32, 0, 2*size),
	}, nil
}

// Size returns the window length in samples.
func (b *Buffer) Size() int { return b.size }

// Hop returns the distance between consecutive window starts.
func (b *Buffer) Hop() int { return b.hop }

// Pending returns the number of buffered samples not yet emitted as the
// start of a window.
func (b *Buffer) Pending() int { return len(b.backlog) }

// Reset discards the backlog.
func (b *Buffer) Reset() { b.backlog = b.backlog[:0] }

// Push appends chunk and calls emit for every complete window, oldest
// first. It returns the number of windows emitted. The slice passed to
// emit aliases internal storage and is only valid until emit returns.
func (b *Buffer) Push(chunk []float32, emit func(window []float32)) int {
	if len(chunk) == 0 {
		return 0
	}
	b.backlog = append(b.backlog, chunk...)

	emitted := 0
	start := 0
	for len(b.backlog)-start >= b.size {
		if emit != nil {
			emit(b.backlog[start : start+b.size])
		}
		start += b.hop
		emitted++
	}

	if start > 0 {
		n := copy(b.backlog, b.backlog[start:])
		b.backlog = b.backlog[:n]
	}
	return emitted
}
