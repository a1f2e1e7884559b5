package opener

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// File is an Opener implementation that provides read access to a
// regular filesystem file. It stores the filesystem path and opens
// the file lazily.
//
// File does not check for existence or file type at construction
// time; those checks occur when Open is called.
type File struct {
	Path string
}

// NewFile constructs a File opener for a given filesystem path. The
// path is cleaned using filepath.Clean, but no existence or permission
// checks are performed.
func NewFile(uri string) File {
	return File{Path: filepath.Clean(uri)}
}

// Open attempts to open the underlying file and returns an
// io.ReadCloser. The provided context is checked before opening the
// file; os.Open itself is not context-cancellable once begun.
func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return os.Open(f.Path)
}

// Name returns the stable identity of this data source: the cleaned
// filesystem path.
func (f File) Name() string {
	return f.Path
}
