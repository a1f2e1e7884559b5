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

// UniquenessConfig configures a Uniqueness evaluator, per spec.md §6.
type UniquenessConfig struct {
	// Key identifies this evaluator instance; it tags its findings'
	// EvaluatorKey and is the name other evaluators depend on via
	// UniquenessHandle.
	Key string
	// Context is required: the evaluation context this evaluator
	// restricts to.
	Context record.EvalContext
	// RowType optionally restricts further to a single row-type
	// (case-insensitive).
	RowType *record.RowType
	// Term is optional; when nil, the record's primary identifier
	// (Record.ID()) is used instead.
	Term *record.Term
	// WorkingFolder is required: the directory this evaluator's spill
	// and sorted-index files are created in.
	WorkingFolder string
	// RecorderCapacity overrides spillfile.DefaultCapacity; zero keeps
	// the default.
	RecorderCapacity int
	// Messages formats finding text; nil selects catalog.Default().
	Messages record.MessageFormatter
}

// Uniqueness is the stateful evaluator of spec.md §4.3: it detects that
// a chosen term's values (or the record identifier, if no term is
// configured) repeat within its restriction.
type Uniqueness struct {
	cfg         UniquenessConfig
	restriction Restriction
	messages    record.MessageFormatter
	recorder    *spillfile.Recorder

	mu             sync.Mutex
	degraded       bool
	sortedPath     string
	finalizeCalled bool
	separators     map[string]struct{}
}

// NewUniqueness constructs a Uniqueness evaluator and eagerly opens its
// spill file, per spec.md's evaluator lifecycle.
func NewUniqueness(cfg UniquenessConfig) (*Uniqueness, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("evaluator: uniqueness: Key is required")
	}
	if cfg.Context == "" {
		return nil, fmt.Errorf("evaluator: uniqueness %q: Context is required", cfg.Key)
	}
	if cfg.WorkingFolder == "" {
		return nil, fmt.Errorf("evaluator: uniqueness %q: WorkingFolder is required", cfg.Key)
	}
	rec, err := spillfile.New(cfg.WorkingFolder, cfg.RecorderCapacity)
	if err != nil {
		return nil, fmt.Errorf("evaluator: uniqueness %q: %w", cfg.Key, err)
	}
	messages := cfg.Messages
	if messages == nil {
		messages = catalog.Default()
	}
	return &Uniqueness{
		cfg:      cfg,
		messages: messages,
		recorder: rec,
		restriction: Restriction{
			Context: cfg.Context,
			RowType: cfg.RowType,
		},
	}, nil
}

// Key returns this evaluator's configured key.
func (u *Uniqueness) Key() string { return u.cfg.Key }

// termName returns the display name used in finding messages.
func (u *Uniqueness) termName() string {
	if u.cfg.Term != nil {
		return u.cfg.Term.String()
	}
	return "id"
}

func (u *Uniqueness) resolveValue(rec record.Record) (string, bool) {
	if u.cfg.Term != nil {
		return rec.Value(*u.cfg.Term)
	}
	return rec.ID(), true
}

// HandleEval resolves this record's value and, if non-blank, records it
// for the end-of-stream duplicate scan. It always returns a nil finding
// (findings only appear from HandlePostIterate), per spec.md §4.5.
//
// If a dependent Referential evaluator has bound to this one via
// watchSeparator and the resolved value contains that separator, the
// value is rejected rather than recorded: per SPEC_FULL.md §9 open
// question 2, a uniqueness target that itself contains the token a
// referential evaluator splits source values on would silently defeat
// that split, so HandleEval flags it as a degraded-intake condition and
// returns an error instead. This check is best-effort — it only ever
// sees separators configured on evaluators bound through Handle()
// before intake begins.
func (u *Uniqueness) HandleEval(rec record.Record, ctx record.EvalContext) (*record.Finding, error) {
	if !u.restriction.Matches(rec, ctx) {
		return nil, nil
	}
	value, ok := u.resolveValue(rec)
	if !ok || record.IsBlank(value) {
		return nil, nil
	}
	if sep, bad := u.containsWatchedSeparator(value); bad {
		u.mu.Lock()
		u.degraded = true
		u.mu.Unlock()
		err := fmt.Errorf("evaluator: uniqueness %q: value %q contains dependent referential separator %q, not recorded", u.cfg.Key, value, sep)
		log.Warn(fmt.Sprintf("evaluator: uniqueness %q: intake value contains referential separator", u.cfg.Key), "value", value, "separator", sep)
		return nil, err
	}
	if err := u.recorder.Record(value); err != nil {
		u.mu.Lock()
		u.degraded = true
		u.mu.Unlock()
		log.Warn(fmt.Sprintf("evaluator: uniqueness %q: intake recorder error", u.cfg.Key), "err", err)
		return nil, nil
	}
	return nil, nil
}

// containsWatchedSeparator reports whether value contains any separator
// registered by a dependent Referential evaluator via watchSeparator.
func (u *Uniqueness) containsWatchedSeparator(value string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for sep := range u.separators {
		if strings.Contains(value, sep) {
			return sep, true
		}
	}
	return "", false
}

// watchSeparator registers sep as a value to reject at intake. It is
// called through UniquenessHandle by NewReferential when binding a
// Referential evaluator configured with a MultiValueSeparator to this
// evaluator as its target.
func (u *Uniqueness) watchSeparator(sep string) {
	if sep == "" {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.separators == nil {
		u.separators = make(map[string]struct{})
	}
	u.separators[sep] = struct{}{}
}

// ReferenceIndexPath returns the path of the sorted reference index
// this evaluator produced. It is only valid after HandlePostIterate has
// completed successfully.
func (u *Uniqueness) ReferenceIndexPath() (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.finalizeCalled || u.sortedPath == "" {
		return "", fmt.Errorf("evaluator: uniqueness %q: reference index not ready", u.cfg.Key)
	}
	return u.sortedPath, nil
}

// Handle returns a typed binding other evaluators can target this
// evaluator through, per spec.md §9's "typed handle" design note.
func (u *Uniqueness) Handle() UniquenessHandle {
	return UniquenessHandle{eval: u}
}

// HandlePostIterate flushes and sorts the recorded values, then scans
// the sorted index with a one-line lookback: consecutive
// case-insensitively equal lines each emit one FieldUniqueness finding,
// per spec.md §4.3.
func (u *Uniqueness) HandlePostIterate(acc record.Accumulator) error {
	u.mu.Lock()
	u.finalizeCalled = true
	degraded := u.degraded
	u.mu.Unlock()

	if degraded {
		if err := acc.Accept(record.Finding{
			EvaluatorKey: u.cfg.Key,
			Context:      u.cfg.Context,
			Kind:         record.IntakeDegraded,
			Severity:     record.Warning,
			Message:      fmt.Sprintf("evaluator %q: one or more values were not recorded during intake (transient I/O error or value containing a dependent referential separator)", u.cfg.Key),
		}); err != nil {
			return fmt.Errorf("evaluator: uniqueness %q: report degraded intake: %w", u.cfg.Key, err)
		}
	}

	err := u.finalizeIndex()
	if err == nil {
		err = u.scanDuplicates(acc)
	}
	if err != nil {
		diagErr := acc.Accept(record.Finding{
			EvaluatorKey: u.cfg.Key,
			Context:      u.cfg.Context,
			Kind:         record.FinalizationFailed,
			Severity:     record.Error,
			Message:      fmt.Sprintf("evaluator %q: finalization failed: %v", u.cfg.Key, err),
		})
		if diagErr != nil {
			log.Error(fmt.Sprintf("evaluator: uniqueness %q: failed to report finalization failure", u.cfg.Key), "err", diagErr)
		}
		return err
	}
	return nil
}

func (u *Uniqueness) finalizeIndex() error {
	if err := u.recorder.Close(); err != nil {
		return fmt.Errorf("flush/close spill file: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(u.recorder.Path()), ".txt")
	sortedPath := filepath.Join(u.cfg.WorkingFolder, fmt.Sprintf("%s_sorted.txt", base))
	if err := extsort.SortFile(u.recorder.Path(), sortedPath, extsort.Options{LogPrefix: u.cfg.Key}); err != nil {
		return fmt.Errorf("sort values: %w", err)
	}
	u.mu.Lock()
	u.sortedPath = sortedPath
	u.mu.Unlock()
	return nil
}

func (u *Uniqueness) scanDuplicates(acc record.Accumulator) error {
	f, err := os.Open(u.sortedPath)
	if err != nil {
		return fmt.Errorf("evaluator: uniqueness %q: open sorted index: %w", u.cfg.Key, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var prev string
	havePrev := false
	termName := u.termName()
	for scanner.Scan() {
		line := scanner.Text()
		if havePrev && foldEqual(prev, line) {
			if err := acc.Accept(record.Finding{
				Value:        line,
				EvaluatorKey: u.cfg.Key,
				Context:      u.cfg.Context,
				Kind:         record.FieldUniqueness,
				Severity:     record.Error,
				Message:      u.messages.NotUnique(line, termName),
			}); err != nil {
				return fmt.Errorf("evaluator: uniqueness %q: report duplicate: %w", u.cfg.Key, err)
			}
		}
		prev = line
		havePrev = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("evaluator: uniqueness %q: scan sorted index: %w", u.cfg.Key, err)
	}
	return nil
}

// Close deletes both the raw spill file and the sorted index. It is
// idempotent: deleting an already-removed file is not an error.
func (u *Uniqueness) Close() error {
	var errs []error
	u.mu.Lock()
	finalized := u.finalizeCalled
	u.mu.Unlock()
	if !finalized {
		// HandlePostIterate never ran, so the spill file is still open.
		_ = u.recorder.Close()
	}
	if u.recorder.Path() != "" {
		if err := os.Remove(u.recorder.Path()); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	u.mu.Lock()
	sortedPath := u.sortedPath
	u.mu.Unlock()
	if sortedPath != "" {
		if err := os.Remove(sortedPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("evaluator: uniqueness %q: close: %v", u.cfg.Key, errs)
}

// UniquenessHandle is a typed reference to an already-constructed
// Uniqueness evaluator, used to bind a Referential evaluator to its
// target without exposing the Uniqueness evaluator's full API.
type UniquenessHandle struct {
	eval *Uniqueness
}

// Key returns the target evaluator's key.
func (h UniquenessHandle) Key() string {
	if h.eval == nil {
		return ""
	}
	return h.eval.Key()
}

// ReferenceIndexPath returns the target's sorted reference index path.
// It errors if the target has not finalized yet.
func (h UniquenessHandle) ReferenceIndexPath() (string, error) {
	if h.eval == nil {
		return "", fmt.Errorf("evaluator: target binding is empty")
	}
	return h.eval.ReferenceIndexPath()
}

// watchSeparator registers sep on the target evaluator so its intake
// rejects values containing it. A no-op if the handle is empty.
func (h UniquenessHandle) watchSeparator(sep string) {
	if h.eval == nil {
		return
	}
	h.eval.watchSeparator(sep)
}
