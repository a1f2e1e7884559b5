// Package archive wires opener, connector and transform into one
// driver.RecordSource: a minimal, reusable ingestion path standing in
// for full Darwin Core Archive parsing (meta.xml layout remains out of
// scope, per spec.md's non-goal), so the evaluators have something
// concrete to run against end-to-end.
package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/archivequal/dwcacore/archive/connector"
	"github.com/archivequal/dwcacore/archive/opener"
	"github.com/archivequal/dwcacore/archive/transform"
	"github.com/archivequal/dwcacore/record"
)

// StreamSpec binds one glob/source specification to the row-type and
// evaluation context it represents, standing in for the row-type
// declaration a real archive's meta.xml carries.
type StreamSpec struct {
	// Glob is resolved through archive/opener.RegularFileOpenerFactory:
	// a bare path/glob, a file:// URL, or a Windows drive/UNC path.
	Glob string
	// Context is the evaluation context every record from this stream
	// is tagged with.
	Context record.EvalContext
	// RowType is the row-type every record from this stream is tagged
	// with.
	RowType record.RowType
	// IdentifierTerm names the column used as Record.ID(). If empty,
	// "id" is tried first, falling back to "coreid" (the Darwin Core
	// Archive convention for extension rows) when absent.
	IdentifierTerm string
	// Comma overrides the CSV field delimiter; zero selects ','.
	Comma rune
}

// recordSource is a driver.RecordSource walking a configured sequence
// of StreamSpecs, each fully exhausted before the next begins.
type recordSource struct {
	ctx     context.Context
	specs   []StreamSpec
	current transform.RecordStream
	idx     int
}

// Open builds a driver.RecordSource over specs, decoding each stream's
// matched files as CSV and mapping rows into record.Record values. The
// returned source must eventually be drained to io.EOF or have its
// current stream closed by the caller if abandoned early.
func Open(ctx context.Context, specs []StreamSpec) (*recordSource, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("archive: at least one stream is required")
	}
	return &recordSource{ctx: ctx, specs: specs}, nil
}

// Next implements driver.RecordSource.
func (s *recordSource) Next(ctx context.Context) (record.Record, record.EvalContext, error) {
	for {
		if s.current == nil {
			if s.idx >= len(s.specs) {
				return nil, "", io.EOF
			}
			it, err := openStream(ctx, s.specs[s.idx])
			if err != nil {
				return nil, "", fmt.Errorf("archive: open stream %q: %w", s.specs[s.idx].Glob, err)
			}
			s.current = it
		}

		spec := s.specs[s.idx]
		if s.current.Next() {
			return s.current.Record(), spec.Context, nil
		}
		if err := s.current.Err(); err != nil {
			s.current.Close()
			s.current = nil
			s.idx++
			return nil, "", fmt.Errorf("archive: read stream %q: %w", spec.Glob, err)
		}
		s.current.Close()
		s.current = nil
		s.idx++
	}
}

func openStream(ctx context.Context, spec StreamSpec) (transform.RecordStream, error) {
	ops, err := opener.RegularFileOpenerFactory(spec.Glob)
	if err != nil {
		return nil, err
	}
	mux := connector.NewMuxReader(ctx, ops)
	dec := transform.NewCSVDecoder(transform.CSVDecoderOptions{Comma: spec.Comma})
	return transform.OpenRecordStream(ctx, dec, mux, transform.RecordStreamOptions{
		RowType:        spec.RowType,
		IdentifierTerm: spec.IdentifierTerm,
	})
}
