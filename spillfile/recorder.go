// Package spillfile implements the bounded in-memory value recorder of
// spec.md §4.2: an append-only buffer of strings that spills to its own
// temporary file once it reaches capacity.
//
// The flush/buffer cycle is grounded on erigon-lib's etl.Collector,
// whose extractNextFunc buffers key/value pairs and flushes to disk
// once sortableBuffer.CheckFlushSize() reports the buffer full; here
// the buffer holds single strings instead of key/value pairs, matching
// this system's plain-line on-disk contract (spec.md §6).
package spillfile

import (
	"bufio"
	"fmt"
	"os"

	"github.com/archivequal/dwcacore/record"
)

// DefaultCapacity is the number of values buffered in memory before a
// flush is forced, per spec.md §4.2 ("default capacity ≈ 1000").
const DefaultCapacity = 1000

// Recorder buffers values in memory and spills them, one per line, to
// a temporary file once the buffer reaches capacity. The recorder
// performs no sorting or deduplication; that is extsort's and the
// evaluator's job respectively.
type Recorder struct {
	capacity int
	buf      []string

	file *os.File
	w    *bufio.Writer
	path string
}

// New creates a Recorder that spills into a new temporary file inside
// dir. The file is created eagerly, matching the evaluator lifecycle
// described in spec.md §3 ("it opens its spill file eagerly").
func New(dir string, capacity int) (*Recorder, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	f, err := os.CreateTemp(dir, "value-*.txt")
	if err != nil {
		return nil, fmt.Errorf("spillfile: create temp file: %w", err)
	}
	return &Recorder{
		capacity: capacity,
		buf:      make([]string, 0, capacity),
		file:     f,
		w:        bufio.NewWriter(f),
		path:     f.Name(),
	}, nil
}

// Path returns the filesystem path of the underlying spill file.
func (r *Recorder) Path() string { return r.path }

// Record appends value to the in-memory buffer, flushing to disk when
// the buffer reaches capacity. Blank values are the caller's
// responsibility to filter before calling Record; Flush silently
// ignores any that slip through.
func (r *Recorder) Record(value string) error {
	r.buf = append(r.buf, value)
	if len(r.buf) >= r.capacity {
		return r.Flush()
	}
	return nil
}

// Flush writes every non-blank buffered value to the spill file, one
// per line, and clears the buffer. It must be invoked at finalization
// even if the buffer is only partially full.
func (r *Recorder) Flush() error {
	for _, v := range r.buf {
		if record.IsBlank(v) {
			continue
		}
		if _, err := r.w.WriteString(v); err != nil {
			return fmt.Errorf("spillfile: write value: %w", err)
		}
		if err := r.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("spillfile: write newline: %w", err)
		}
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("spillfile: flush writer: %w", err)
	}
	r.buf = r.buf[:0]
	return nil
}

// Close flushes any buffered values and releases the write handle. It
// does not delete the spill file; deletion is the owning evaluator's
// responsibility (spec.md §3: "every spill file... is owned by exactly
// one evaluator"). Close is safe to call once; calling it again after
// a successful close returns an error from the underlying file.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		_ = r.w.Flush()
		_ = r.file.Close()
		return err
	}
	if err := r.w.Flush(); err != nil {
		_ = r.file.Close()
		return fmt.Errorf("spillfile: flush writer: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("spillfile: close file: %w", err)
	}
	return nil
}
