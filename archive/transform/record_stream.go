package transform

import (
	"context"

	"github.com/archivequal/dwcacore/archive/connector"
	"github.com/archivequal/dwcacore/record"
)

// RecordStreamOptions tags every row a RecordStream yields with the
// stream's row-type, and configures how the row's identifier column is
// located. The evaluation context is not part of the record; the caller
// (archive.recordSource) returns it alongside each record.
type RecordStreamOptions struct {
	// RowType is the row-type every record from this stream is tagged with.
	RowType record.RowType
	// IdentifierTerm names the column used as record.Record.ID(). If
	// empty, or absent on a given row, "id" is tried, falling back to
	// "coreid" — the Darwin Core Archive convention for extension rows
	// that reference the core by coreid instead of carrying their own id.
	IdentifierTerm string
}

// RecordStream is a forward-only iterator over fully resolved
// record.Record values decoded from one source.
type RecordStream interface {
	Next() bool
	Record() record.Record
	Err() error
	Close() error
}

// OpenRecordStream decodes rc with dec and resolves each decoded row
// into a record.Record per opt, pushing identifier resolution and
// row-type tagging into the decode path itself rather than leaving it
// to the caller.
func OpenRecordStream(ctx context.Context, dec Decoder, rc connector.SrcAwareStreamer, opt RecordStreamOptions) (RecordStream, error) {
	it, err := dec.Decode(ctx, rc)
	if err != nil {
		return nil, err
	}
	return &recordStream{inner: it, opt: opt}, nil
}

type recordStream struct {
	inner RecordIterator
	opt   RecordStreamOptions
}

func (s *recordStream) Next() bool { return s.inner.Next() }

func (s *recordStream) Record() record.Record {
	return &darwinCoreRecord{ex: s.inner.Record(), opt: s.opt}
}

func (s *recordStream) Err() error   { return s.inner.Err() }
func (s *recordStream) Close() error { return s.inner.Close() }

// darwinCoreRecord adapts one decoded Extractor into record.Record,
// resolving the identifier column per RecordStreamOptions.
type darwinCoreRecord struct {
	ex  Extractor
	opt RecordStreamOptions
}

func (r *darwinCoreRecord) ID() string {
	if r.opt.IdentifierTerm != "" {
		if v, ok := r.ex.ByName(r.opt.IdentifierTerm); ok {
			return v
		}
	}
	if v, ok := r.ex.ByName("id"); ok {
		return v
	}
	if v, ok := r.ex.ByName("coreid"); ok {
		return v
	}
	return ""
}

func (r *darwinCoreRecord) RowType() record.RowType { return r.opt.RowType }

func (r *darwinCoreRecord) Value(t record.Term) (string, bool) {
	return r.ex.ByName(t.Simple)
}
