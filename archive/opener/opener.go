// Package opener resolves a glob/path specification into one or more
// Opener values, each capable of producing a byte stream for one
// physical source. archive.Open is the package's one caller and only
// ever needs local files matched by RegularFileOpenerFactory, so the
// package exposes exactly that surface rather than a pluggable scheme
// registry nothing in this repository dispatches through.
package opener

import (
	"context"
	"io"
)

// Opener produces a single readable source and reports its stable
// identity.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}
