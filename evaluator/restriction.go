package evaluator

import (
	"github.com/archivequal/dwcacore/record"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// caseFolder normalizes a string for case-insensitive comparison using
// golang.org/x/text/cases rather than strings.EqualFold. golang.org/x/text
// is already a retrieval-pack dependency (hivekit uses its
// encoding/charmap subpackage); cases.Fold gives correct Unicode case
// folding for the non-ASCII taxonomic identifiers this system compares,
// which strings.EqualFold's ASCII-biased fast path does not guarantee
// for all locales.
var caseFolder = cases.Fold()

func foldEqual(a, b string) bool {
	return caseFolder.String(a) == caseFolder.String(b)
}

// Restriction is the evaluator restriction of spec.md §3: a record is
// considered by an evaluator only if its evaluation context matches and,
// when RowType is set, equals the record's row-type case-insensitively.
type Restriction struct {
	Context record.EvalContext
	// RowType is optional. A nil RowType matches every row-type within
	// Context.
	RowType *record.RowType
}

// Matches reports whether rec, observed under ctx, satisfies r.
func (r Restriction) Matches(rec record.Record, ctx record.EvalContext) bool {
	if !foldEqual(string(r.Context), string(ctx)) {
		return false
	}
	if r.RowType == nil {
		return true
	}
	return rec.RowType().EqualFold(*r.RowType)
}
