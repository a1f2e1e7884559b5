// Package evaluator implements the core of this system: the uniqueness
// and referential-integrity stateful evaluators, the restriction that
// scopes each to a subset of records, and the capability-union dispatch
// contract a driver consumes to run them (spec.md §4.3–§4.6, §9).
package evaluator

import "github.com/archivequal/dwcacore/record"

// Evaluator is satisfied by both stateless and stateful evaluators: a
// driver invokes it once per record, the evaluator applies its own
// restriction, and it may return a finding immediately. The core's stateful evaluators (Uniqueness, Referential)
// always return a nil finding here, per spec.md §4.5 — their findings
// only appear from HandlePostIterate.
type Evaluator interface {
	HandleEval(rec record.Record, ctx record.EvalContext) (*record.Finding, error)
}

// Finalizer is the additional capability stateful evaluators implement:
// a single end-of-stream callback that emits accumulated findings, and
// idempotent resource cleanup. A driver detects this capability with a
// type assertion rather than branching on concrete type, per spec.md
// §9's "polymorphism over evaluator" design note.
type Finalizer interface {
	// HandlePostIterate is called exactly once, after the final record,
	// with the shared accumulator. It must be safe even if zero records
	// were ever offered to HandleEval.
	HandlePostIterate(acc record.Accumulator) error
	// Close releases file resources. It is idempotent.
	Close() error
}

// Keyed identifies a stateful evaluator for dependency resolution and
// for tagging its findings.
type Keyed interface {
	Key() string
}

// DependsOn is implemented by evaluators that must be finalized only
// after other evaluators (named by key) have already finalized — the
// referential evaluator's dependency on its target uniqueness
// evaluator, concretely. A driver topologically sorts on this before
// calling HandlePostIterate, per spec.md §4.5's "finalized in
// topological order" requirement.
type DependsOn interface {
	DependsOn() []string
}
