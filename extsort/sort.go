// Package extsort implements the external merge sort of spec.md §4.1:
// given a file of UTF-8 lines, produce a file containing the same
// multiset of lines in ascending byte-lexicographic order, using
// memory bounded by a configurable chunk size.
//
// The algorithm is grounded on two retrieval-pack examples that solve
// the same problem: erigon-lib's etl.Collector, whose
// loadFilesIntoBucket performs a container/heap k-way merge over
// per-chunk dataProviders, and csvquery's internal/indexer.Sorter,
// which chunks by buffer size and compresses intermediate run files
// with LZ4 before merging. This implementation chunks and compresses
// like csvquery, and merges with container/heap like erigon-lib (the
// stdlib heap is the better fit here than csvquery's hand-rolled one,
// since that exists only to avoid interface{} boxing for a fixed-size
// binary record type — our lines are variable-length strings, so there
// is no boxing to dodge).
package extsort

import (
	"bufio"
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/pierrec/lz4/v4"
)

// DefaultChunkSize is the number of lines buffered in memory per sorted
// run before it is spilled to a chunk file, matching spec.md §4.1's
// "tens of thousands of lines" default.
const DefaultChunkSize = 32768

// maxLineBytes bounds the scanner's token buffer so a single overlong
// line cannot abort the sort silently.
const maxLineBytes = 1 << 20

// Options configures a sort run.
type Options struct {
	// ChunkSize is the number of lines per in-memory sorted run. Zero
	// selects DefaultChunkSize.
	ChunkSize int
	// LogPrefix is included in progress log lines; empty disables the
	// prefix but not the logging itself.
	LogPrefix string
}

// SortFile reads every line of inputPath, sorts the multiset in
// ascending byte-lexicographic order, and writes it to outputPath.
// Duplicate lines are preserved (never collapsed — that is the
// caller's job, per spec.md §4.1). Empty input yields empty output.
// Every output line is terminated with '\n', even if the final input
// line lacked a trailing newline.
func SortFile(inputPath, outputPath string, opt Options) error {
	chunkSize := opt.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	chunkDir, err := os.MkdirTemp(filepath.Dir(outputPath), "extsort-chunks-*")
	if err != nil {
		return fmt.Errorf("extsort: create chunk dir: %w", err)
	}
	defer os.RemoveAll(chunkDir)

	chunkFiles, totalLines, err := writeChunks(inputPath, chunkDir, chunkSize)
	if err != nil {
		return fmt.Errorf("extsort: chunking %s: %w", inputPath, err)
	}

	if len(chunkFiles) == 0 {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("extsort: create empty output: %w", err)
		}
		return f.Close()
	}

	bytesWritten, err := mergeChunks(chunkFiles, outputPath)
	if err != nil {
		return fmt.Errorf("extsort: merging %d chunks: %w", len(chunkFiles), err)
	}

	log.Info(fmt.Sprintf("[%s] extsort: done", opt.LogPrefix),
		"lines", totalLines, "chunks", len(chunkFiles),
		"written", datasize.ByteSize(bytesWritten).HumanReadable())
	return nil
}

// writeChunks reads inputPath in chunkSize-line batches, sorts each
// batch in memory, and writes it to its own LZ4-compressed chunk file
// inside dir. It returns the chunk file paths in write order.
func writeChunks(inputPath, dir string, chunkSize int) ([]string, int, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var chunkFiles []string
	var totalLines int
	buf := make([]string, 0, chunkSize)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		slices.Sort(buf)
		path := filepath.Join(dir, fmt.Sprintf("chunk-%05d.lz4", len(chunkFiles)))
		if err := writeChunkFile(path, buf); err != nil {
			return err
		}
		chunkFiles = append(chunkFiles, path)
		buf = buf[:0]
		return nil
	}

	for scanner.Scan() {
		buf = append(buf, scanner.Text())
		totalLines++
		if len(buf) >= chunkSize {
			if err := flush(); err != nil {
				return nil, 0, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan input: %w", err)
	}
	if err := flush(); err != nil {
		return nil, 0, err
	}
	return chunkFiles, totalLines, nil
}

func writeChunkFile(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chunk %s: %w", path, err)
	}
	defer f.Close()

	lzw := lz4.NewWriter(f)
	w := bufio.NewWriter(lzw)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("write chunk %s: %w", path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write chunk %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush chunk %s: %w", path, err)
	}
	return lzw.Close()
}

// mergeRun is one open chunk file being consumed during the k-way
// merge: its buffered, decompressed scanner and its current head line.
type mergeRun struct {
	scanner *bufio.Scanner
	file    *os.File
	head    string
	ok      bool
}

// runHeap is a container/heap min-heap over the current head line of
// each open run, mirroring erigon-lib's Heap/HeapElem in
// etl/collector.go, adapted to a single string key.
type runHeap []*mergeRun

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return h[i].head < h[j].head }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(*mergeRun)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func mergeChunks(chunkFiles []string, outputPath string) (int64, error) {
	runs := make([]*mergeRun, 0, len(chunkFiles))
	defer func() {
		for _, r := range runs {
			r.file.Close()
		}
	}()

	for _, path := range chunkFiles {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open chunk %s: %w", path, err)
		}
		lzr := lz4.NewReader(f)
		sc := bufio.NewScanner(lzr)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		r := &mergeRun{scanner: sc, file: f}
		r.ok = sc.Scan()
		r.head = sc.Text()
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("read chunk %s: %w", path, err)
		}
		runs = append(runs, r)
	}

	h := make(runHeap, 0, len(runs))
	for _, r := range runs {
		if r.ok {
			h = append(h, r)
		}
	}
	heap.Init(&h)

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create output %s: %w", outputPath, err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	var written int64
	for h.Len() > 0 {
		r := heap.Pop(&h).(*mergeRun)
		if _, err := w.WriteString(r.head); err != nil {
			return 0, fmt.Errorf("write output: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return 0, fmt.Errorf("write output: %w", err)
		}
		written += int64(len(r.head)) + 1

		r.ok = r.scanner.Scan()
		r.head = r.scanner.Text()
		if err := r.scanner.Err(); err != nil {
			return 0, fmt.Errorf("read next line: %w", err)
		}
		if r.ok {
			heap.Push(&h, r)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush output: %w", err)
	}
	return written, nil
}
