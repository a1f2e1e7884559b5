// Package transform turns a raw, source-aware byte stream into decoded
// CSV rows and resolves each row into a record.Record, following the
// Darwin Core Archive convention for locating a row's identifier
// column (see RecordStream in record_stream.go).
//
// The pipeline is:
//
//	connector.SrcAwareStreamer (bytes + source metadata)
//	  → Decoder (produces RecordIterator of raw rows)
//	  → RecordStream (resolves each row into a record.Record)
package transform

import (
	"context"

	"github.com/archivequal/dwcacore/archive/connector"
)

//
// Access over one decoded record (format-agnostic)
//

// Extractor provides read-only access to a single decoded record.
//
// Implementations are format-specific (CSV today) but expose a common
// access pattern. A record is conceptually a flat list of fields with
// optional names.
type Extractor interface {
	// ByIndex returns the field value at index i and true if present.
	// Implementations must return ok == false for out-of-bounds indices.
	ByIndex(i int) (string, bool)

	// ByName returns the field value for the given name and true if present.
	// If the underlying format does not provide names (no header), ByName
	// must return ok == false.
	ByName(name string) (string, bool)

	// Len reports number of fields in the current record.
	Len() int

	// Names returns the field names for the current record if available, or
	// nil if the format has no header or the decoder is not name-aware.
	Names() []string

	// Meta returns the source metadata for the current record, such as the
	// originating file name and byte offset, as provided by the underlying
	// connector.SrcAwareStreamer.
	Meta() connector.SrcMeta
}

//
// Streaming iterators
//

// RecordIterator is a forward-only iterator over decoded records.
//
// The typical usage pattern is:
//
//	it, err := dec.Decode(ctx, stream)
//	if err != nil { ... }
//	defer it.Close()
//
//	for it.Next() {
//	    rec := it.Record()
//	    // use rec.ByIndex / rec.ByName / rec.Meta ...
//	}
//	if err := it.Err(); err != nil {
//	    // handle stream/decoder error
//	}
type RecordIterator interface {

	// Next advances to the next record and reports whether one is available.
	// It returns false on EOF or on a terminal error. When Next returns
	// false, Err must be checked to distinguish clean EOF from failure.
	Next() bool

	// Record returns the current record. It is only valid to call Record
	// after Next has returned true, and its result remains valid until the
	// next call to Next.
	Record() Extractor

	// Err returns the first non-EOF error encountered while iterating, or
	// nil if the iterator completed successfully.
	Err() error

	// Close releases any underlying resources. It must be safe to call
	// Close multiple times. Implementations should tolerate Close being
	// called before the iterator is fully exhausted.
	Close() error
}

//
// Decoder for a specific serialization format
//

// Decoder turns a source-aware byte stream into a stream of decoded records.
//
// A Decoder is responsible for a specific on-wire format (CSV today).
// Any format-specific configuration (delimiter, header handling, etc.)
// should be supplied when constructing the Decoder, not at Decode time.
type Decoder interface {

	// Decode consumes bytes from rc and produces a RecordIterator. The
	// returned iterator owns rc and is responsible for closing it when
	// iteration ends or Close is called.
	//
	// The rc parameter exposes both io.Reader and source metadata via
	// connector.SrcAwareStreamer, allowing the decoder to maintain
	// per-record provenance (file name, byte offset, source boundaries).
	Decode(ctx context.Context, rc connector.SrcAwareStreamer) (RecordIterator, error)
}
