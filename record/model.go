// Package record defines the data model shared by every evaluator:
// terms, row-types, evaluation contexts, the record-access capability,
// and the finding/accumulator shapes evaluators produce into.
package record

import "strings"

// EvalContext discriminates the archive's core stream from its
// extension streams. The core recognizes a small closed set; callers
// may define additional values, but evaluators only ever compare
// against the values they were configured with.
type EvalContext string

const (
	// Core identifies the archive's primary (taxonomic) record stream.
	Core EvalContext = "CORE"
	// Ext identifies an extension record stream.
	Ext EvalContext = "EXT"
)

// RowType is a qualified identifier for a stream of records. Two
// row-types are equal if they are equal case-insensitively.
type RowType string

// EqualFold reports whether r and other name the same row-type,
// comparing case-insensitively.
func (r RowType) EqualFold(other RowType) bool {
	return strings.EqualFold(string(r), string(other))
}

// Term is an opaque identifier for a column. Terms are value-equal;
// Simple is the short name used for header/column lookups (e.g.
// "taxonID"), Qualified is the fully qualified name (e.g.
// "http://rs.tdwg.org/dwc/terms/taxonID"). Only Simple is used for
// lookups in this implementation; Qualified is carried for callers
// that need it for reporting.
type Term struct {
	Simple    string
	Qualified string
}

// String returns the term's short name.
func (t Term) String() string { return t.Simple }

// Record is a read-only snapshot of a single row, presented to
// evaluators as a capability. Records are ephemeral: evaluators must
// copy any value they intend to retain past the current HandleEval
// call.
type Record interface {
	// ID returns the record's primary identifier string.
	ID() string
	// RowType returns the row-type of the stream this record belongs to.
	RowType() RowType
	// Value looks up term's value on this record. ok is false if the
	// term has no value on this record (distinct from an empty value).
	Value(t Term) (value string, ok bool)
}

// Kind identifies the category of a Finding. The core evaluators emit
// FieldUniqueness and FieldReferentialIntegrity; IntakeDegraded and
// FinalizationFailed are diagnostic kinds emitted by the error-handling
// paths described in SPEC_FULL.md §7.
type Kind string

const (
	FieldUniqueness           Kind = "FIELD_UNIQUENESS"
	FieldReferentialIntegrity Kind = "FIELD_REFERENTIAL_INTEGRITY"
	IntakeDegraded            Kind = "INTAKE_DEGRADED"
	FinalizationFailed        Kind = "FINALIZATION_FAILED"
)

// Severity is the severity of a Finding.
type Severity string

const (
	Error   Severity = "ERROR"
	Warning Severity = "WARNING"
)

// Finding is an immutable report of a validation violation.
type Finding struct {
	Value        string
	EvaluatorKey string
	Context      EvalContext
	RowType      RowType
	Kind         Kind
	Severity     Severity
	Message      string
}

// Accumulator is a write-only sink for findings. Implementations may be
// bounded or unbounded; evaluators neither know nor care. Accept must be
// safe for concurrent use by evaluators that share an accumulator
// across goroutines (see SPEC_FULL.md §5).
type Accumulator interface {
	Accept(Finding) error
}

// MessageFormatter renders the human-readable message for a finding.
// It is injected into evaluator configuration so localization never
// requires touching evaluator code; see package catalog for the
// default implementation.
type MessageFormatter interface {
	// NotUnique renders the message for a FieldUniqueness finding.
	NotUnique(value, termName string) string
	// NotFound renders the message for a FieldReferentialIntegrity finding.
	NotFound(value string) string
}

// IsBlank reports whether s is empty or consists only of whitespace.
// Blank values are never recorded and never generate findings, per
// spec.md §3.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
