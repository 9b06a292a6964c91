// Package trace reads the simulator's CSV request trace, transparently
// unwrapping gzip, zstd, or lz4 compression by file extension. It sits
// outside the policy core (spec.md §1 scopes trace I/O out of the policy
// engines themselves) but is required for a runnable driver.
package trace

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v3"

	"github.com/cachesim/cachesim/internal/xlog"
	"github.com/cachesim/cachesim/policy"
)

// Reader streams policy.Request values out of an underlying trace file,
// skipping and logging malformed lines rather than failing the run.
type Reader struct {
	f       *os.File
	zr      *zstd.Decoder
	scanner *bufio.Scanner

	lineNo  int
	skipped int
}

// Open opens path and picks a decompressor by its extension: ".gz" for
// gzip, ".zst"/".zstd" for zstd, ".lz4" for lz4, anything else read raw.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var body io.Reader = f
	r := &Reader{f: f}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		body = gz
	case strings.HasSuffix(path, ".zst"), strings.HasSuffix(path, ".zstd"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.zr = zr
		body = zr
	case strings.HasSuffix(path, ".lz4"):
		body = lz4.NewReader(f)
	}

	r.scanner = bufio.NewScanner(body)
	r.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return r, nil
}

// Next returns the next well-formed request in the trace, skipping (and
// counting) any malformed lines in between, and io.EOF once the trace is
// exhausted.
func (r *Reader) Next() (policy.Request, error) {
	for r.scanner.Scan() {
		r.lineNo++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		req, ok := policy.ParseRequest(line)
		if !ok {
			r.skipped++
			xlog.Warningf("trace line %d skipped", r.lineNo)
			continue
		}
		return req, nil
	}
	if err := r.scanner.Err(); err != nil {
		return policy.Request{}, err
	}
	return policy.Request{}, io.EOF
}

// Skipped returns how many malformed lines have been discarded so far.
func (r *Reader) Skipped() int { return r.skipped }

// Close releases the underlying file (and zstd decoder, which owns its own
// goroutine pool).
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.f.Close()
}
