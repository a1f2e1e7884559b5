package accumulate

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"github.com/archivequal/dwcacore/record"
)

var csvHeader = []string{"value", "evaluatorKey", "context", "rowType", "kind", "severity", "message"}

// CSV is a record.Accumulator that writes each finding as one CSV row,
// grounded on the teacher's own use of encoding/csv (transform's
// CSVDecoder) reused here for the writer side. Accept is safe for
// concurrent use.
type CSV struct {
	mu     sync.Mutex
	w      *csv.Writer
	closed bool
}

// NewCSV wraps w, writing the header row immediately.
func NewCSV(w io.Writer) (*CSV, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("accumulate: write CSV header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("accumulate: flush CSV header: %w", err)
	}
	return &CSV{w: cw}, nil
}

// Accept writes f as one CSV row and flushes immediately so findings
// are durable even if the process is interrupted mid-run.
func (c *CSV) Accept(f record.Finding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := []string{
		f.Value,
		f.EvaluatorKey,
		string(f.Context),
		string(f.RowType),
		string(f.Kind),
		string(f.Severity),
		f.Message,
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("accumulate: write CSV row: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("accumulate: flush CSV row: %w", err)
	}
	return nil
}
