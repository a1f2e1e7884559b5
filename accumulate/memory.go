// Package accumulate provides the two record.Accumulator
// implementations spec.md §4.6 calls for: an in-memory accumulator
// with a read-back list for tests, and a production accumulator that
// writes CSV rows.
package accumulate

import (
	"sync"

	"github.com/archivequal/dwcacore/record"
)

// Memory is a record.Accumulator that keeps every accepted finding in
// memory, in acceptance order. Accept is safe for concurrent use, per
// spec.md §5's accumulator-serialization requirement.
type Memory struct {
	mu       sync.Mutex
	findings []record.Finding
}

// NewMemory constructs an empty Memory accumulator.
func NewMemory() *Memory {
	return &Memory{}
}

// Accept appends f to the accumulator.
func (m *Memory) Accept(f record.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, f)
	return nil
}

// Findings returns a copy of every finding accepted so far.
func (m *Memory) Findings() []record.Finding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]record.Finding, len(m.findings))
	copy(out, m.findings)
	return out
}
