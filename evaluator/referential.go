package evaluator

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/archivequal/dwcacore/catalog"
	"github.com/archivequal/dwcacore/extsort"
	"github.com/archivequal/dwcacore/record"
	"github.com/archivequal/dwcacore/spillfile"
	"github.com/ledgerwatch/log/v3"
)

// ReferentialConfig configures a Referential evaluator, per spec.md §6.
type ReferentialConfig struct {
	// Key identifies this evaluator instance.
	Key string
	// SourceTerm, SourceContext, SourceRowType identify which records
	// and which field to read source values from. SourceTerm and
	// SourceContext are required; SourceRowType is not validated at
	// construction, and a nil SourceRowType matches every row-type
	// within SourceContext.
	SourceTerm    record.Term
	SourceContext record.EvalContext
	SourceRowType *record.RowType
	// Target is required: a handle to the already-constructed
	// Uniqueness evaluator whose reference index this evaluator diffs
	// against.
	Target UniquenessHandle
	// MultiValueSeparator, if non-empty and present in a resolved
	// value, splits that value into tokens before recording.
	MultiValueSeparator string
	// WorkingFolder is required.
	WorkingFolder string
	// RecorderCapacity overrides spillfile.DefaultCapacity; zero keeps
	// the default.
	RecorderCapacity int
	// Messages formats finding text; nil selects catalog.Default().
	Messages record.MessageFormatter
}

// Referential is the stateful evaluator of spec.md §4.4: it detects
// values of a source field in one stream that have no corresponding
// value in the (unique) target field of another stream.
type Referential struct {
	cfg         ReferentialConfig
	restriction Restriction
	messages    record.MessageFormatter
	recorder    *spillfile.Recorder

	mu             sync.Mutex
	degraded       bool
	sortedPath     string
	finalizeCalled bool
}

// NewReferential constructs a Referential evaluator and eagerly opens
// its spill file.
func NewReferential(cfg ReferentialConfig) (*Referential, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("evaluator: referential: Key is required")
	}
	if cfg.SourceContext == "" {
		return nil, fmt.Errorf("evaluator: referential %q: SourceContext is required", cfg.Key)
	}
	if cfg.SourceTerm.Simple == "" {
		return nil, fmt.Errorf("evaluator: referential %q: SourceTerm is required", cfg.Key)
	}
	if cfg.Target.eval == nil {
		return nil, fmt.Errorf("evaluator: referential %q: Target binding is required", cfg.Key)
	}
	if cfg.WorkingFolder == "" {
		return nil, fmt.Errorf("evaluator: referential %q: WorkingFolder is required", cfg.Key)
	}
	rec, err := spillfile.New(cfg.WorkingFolder, cfg.RecorderCapacity)
	if err != nil {
		return nil, fmt.Errorf("evaluator: referential %q: %w", cfg.Key, err)
	}
	messages := cfg.Messages
	if messages == nil {
		messages = catalog.Default()
	}
	cfg.Target.watchSeparator(cfg.MultiValueSeparator)
	return &Referential{
		cfg:      cfg,
		messages: messages,
		recorder: rec,
		restriction: Restriction{
			Context: cfg.SourceContext,
			RowType: cfg.SourceRowType,
		},
	}, nil
}

// Key returns this evaluator's configured key.
func (r *Referential) Key() string { return r.cfg.Key }

// DependsOn reports the target uniqueness evaluator's key, so a driver
// finalizes it strictly before this evaluator (spec.md §4.5).
func (r *Referential) DependsOn() []string {
	return []string{r.cfg.Target.Key()}
}

// HandleEval resolves the configured source term, optionally splits it
// on the multi-value separator, and records every non-blank token. It
// always returns a nil finding.
func (r *Referential) HandleEval(rec record.Record, ctx record.EvalContext) (*record.Finding, error) {
	if !r.restriction.Matches(rec, ctx) {
		return nil, nil
	}
	value, ok := rec.Value(r.cfg.SourceTerm)
	if !ok || record.IsBlank(value) {
		return nil, nil
	}

	tokens := []string{value}
	if r.cfg.MultiValueSeparator != "" && strings.Contains(value, r.cfg.MultiValueSeparator) {
		tokens = strings.Split(value, r.cfg.MultiValueSeparator)
	}

	for _, tok := range tokens {
		if record.IsBlank(tok) {
			continue
		}
		if err := r.recorder.Record(tok); err != nil {
			r.mu.Lock()
			r.degraded = true
			r.mu.Unlock()
			log.Warn(fmt.Sprintf("evaluator: referential %q: intake recorder error", r.cfg.Key), "err", err)
			continue
		}
	}
	return nil, nil
}

// HandlePostIterate flushes and sorts this evaluator's own recorded
// values, then performs the sorted merge diff of spec.md §4.4 against
// the target's reference index, emitting one FieldReferentialIntegrity
// finding per distinct unmatched source value.
func (r *Referential) HandlePostIterate(acc record.Accumulator) error {
	r.mu.Lock()
	r.finalizeCalled = true
	degraded := r.degraded
	r.mu.Unlock()

	if degraded {
		if err := acc.Accept(record.Finding{
			EvaluatorKey: r.cfg.Key,
			Context:      r.cfg.SourceContext,
			Kind:         record.IntakeDegraded,
			Severity:     record.Warning,
			Message:      fmt.Sprintf("evaluator %q: one or more values were not recorded due to transient I/O errors during intake", r.cfg.Key),
		}); err != nil {
			return fmt.Errorf("evaluator: referential %q: report degraded intake: %w", r.cfg.Key, err)
		}
	}

	err := r.finalizeIndex()
	if err == nil {
		err = r.diffAgainstTarget(acc)
	}
	if err != nil {
		diagErr := acc.Accept(record.Finding{
			EvaluatorKey: r.cfg.Key,
			Context:      r.cfg.SourceContext,
			Kind:         record.FinalizationFailed,
			Severity:     record.Error,
			Message:      fmt.Sprintf("evaluator %q: finalization failed: %v", r.cfg.Key, err),
		})
		if diagErr != nil {
			log.Error(fmt.Sprintf("evaluator: referential %q: failed to report finalization failure", r.cfg.Key), "err", diagErr)
		}
		return err
	}
	return nil
}

func (r *Referential) finalizeIndex() error {
	if err := r.recorder.Close(); err != nil {
		return fmt.Errorf("flush/close spill file: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(r.recorder.Path()), ".txt")
	sortedPath := filepath.Join(r.cfg.WorkingFolder, fmt.Sprintf("%s_sorted.txt", base))
	if err := extsort.SortFile(r.recorder.Path(), sortedPath, extsort.Options{LogPrefix: r.cfg.Key}); err != nil {
		return fmt.Errorf("sort values: %w", err)
	}
	r.mu.Lock()
	r.sortedPath = sortedPath
	r.mu.Unlock()
	return nil
}

// diffAgainstTarget performs the sorted merge diff described in
// spec.md §4.4: case-sensitive comparison of this evaluator's sorted,
// deduplicated-on-read left values against the target's sorted
// reference index (right), emitting one finding per distinct left
// value absent from the right.
func (r *Referential) diffAgainstTarget(acc record.Accumulator) error {
	targetPath, err := r.cfg.Target.ReferenceIndexPath()
	if err != nil {
		return fmt.Errorf("evaluator: referential %q: resolve target index: %w", r.cfg.Key, err)
	}

	left, err := newLineCursor(r.sortedPath)
	if err != nil {
		return fmt.Errorf("evaluator: referential %q: open own sorted index: %w", r.cfg.Key, err)
	}
	defer left.Close()

	right, err := newLineCursor(targetPath)
	if err != nil {
		return fmt.Errorf("evaluator: referential %q: open target index: %w", r.cfg.Key, err)
	}
	defer right.Close()

	for left.Valid() {
		l := left.Line()

		// Advance right while it precedes the distinct left value.
		for right.Valid() && right.Line() < l {
			right.Advance()
		}
		matched := right.Valid() && right.Line() == l

		if !matched {
			if err := acc.Accept(record.Finding{
				Value:        l,
				EvaluatorKey: r.cfg.Key,
				Context:      r.cfg.SourceContext,
				Kind:         record.FieldReferentialIntegrity,
				Severity:     record.Error,
				Message:      r.messages.NotFound(l),
			}); err != nil {
				return fmt.Errorf("evaluator: referential %q: report dangling reference: %w", r.cfg.Key, err)
			}
		}

		// Advance past every occurrence of this same left value so
		// duplicate left values do not multiply findings.
		for left.Valid() && left.Line() == l {
			left.Advance()
		}
	}
	if err := left.Err(); err != nil {
		return fmt.Errorf("evaluator: referential %q: scan own sorted index: %w", r.cfg.Key, err)
	}
	if err := right.Err(); err != nil {
		return fmt.Errorf("evaluator: referential %q: scan target index: %w", r.cfg.Key, err)
	}
	return nil
}

// Close deletes this evaluator's own spill and sorted files. The
// target's reference index is owned by the target evaluator and is
// never deleted here.
func (r *Referential) Close() error {
	var errs []error
	r.mu.Lock()
	finalized := r.finalizeCalled
	r.mu.Unlock()
	if !finalized {
		// HandlePostIterate never ran, so the spill file is still open.
		_ = r.recorder.Close()
	}
	if r.recorder.Path() != "" {
		if err := os.Remove(r.recorder.Path()); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	r.mu.Lock()
	sortedPath := r.sortedPath
	r.mu.Unlock()
	if sortedPath != "" {
		if err := os.Remove(sortedPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("evaluator: referential %q: close: %v", r.cfg.Key, errs)
}

// lineCursor is a minimal forward-only cursor over a sorted line file,
// used by diffAgainstTarget to implement the two-pointer merge scan
// without loading either file into memory.
type lineCursor struct {
	f       *os.File
	scanner *bufio.Scanner
	valid   bool
	line    string
	err     error
}

func newLineCursor(path string) (*lineCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c := &lineCursor{f: f, scanner: bufio.NewScanner(f)}
	c.scanner.Buffer(make([]byte, 64*1024), 1<<20)
	c.Advance()
	return c, nil
}

func (c *lineCursor) Valid() bool { return c.valid }
func (c *lineCursor) Line() string { return c.line }
func (c *lineCursor) Err() error    { return c.err }

func (c *lineCursor) Advance() {
	for c.scanner.Scan() {
		line := c.scanner.Text()
		if record.IsBlank(line) {
			continue
		}
		c.line = line
		c.valid = true
		return
	}
	c.valid = false
	c.err = c.scanner.Err()
}

func (c *lineCursor) Close() error { return c.f.Close() }
