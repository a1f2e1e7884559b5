package opener

import (
	"bytes"
	"context"
	"io"
)

// InMemorySource implements Opener using an in-memory byte slice. It is
// intended for tests and synthetic streams, where constructing
// temporary files would be inconvenient.
type InMemorySource struct {
	// Data contains the bytes to be returned by Open().
	Data []byte
	// SourceName identifies the synthetic source. The multiplexer uses
	// this as the source name when emitting SrcMeta.
	SourceName string
}

// Open returns an io.ReadCloser that streams the in-memory data. The
// returned reader is independent of Data and may be safely closed by
// the caller. Always returns a non-nil ReadCloser and a nil error.
func (s InMemorySource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// Name returns the source identifier associated with this in-memory
// stream.
func (s InMemorySource) Name() string {
	return s.SourceName
}
