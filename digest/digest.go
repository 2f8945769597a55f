// Package digest provides a single-pass, write-through digesting wrapper.
//
// Every blob and manifest operation in this module needs both a trusted
// digest of the bytes it moved and a running byte count, and no single
// source of data (a gzipped file, a registry response stream, a temporary
// file) hands over both directly. Writer solves that by decorating any
// io.Writer.
package digest

import (
	"io"

	godigest "github.com/opencontainers/go-digest"
)

// Writer wraps an io.Writer, feeding every write through a running hash
// while forwarding the bytes to the underlying sink unmodified.
type Writer struct {
	sink     io.Writer
	digester godigest.Digester
	size     int64
}

// NewWriter returns a Writer that digests with algo (e.g. godigest.SHA256)
// while forwarding writes to sink. sink may be nil, in which case the
// Writer behaves as a pure counter/digester (see CounterSink).
func NewWriter(sink io.Writer, algo godigest.Algorithm) *Writer {
	if sink == nil {
		sink = io.Discard
	}
	return &Writer{sink: sink, digester: algo.Digester()}
}

// NewSHA256Writer is the common case: sha256 is the default algorithm for
// every digest this module computes (layer digests, diff ids, config and
// manifest digests).
func NewSHA256Writer(sink io.Writer) *Writer {
	return NewWriter(sink, godigest.SHA256)
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.sink.Write(p)
	if n > 0 {
		w.digester.Hash().Write(p[:n])
		w.size += int64(n)
	}
	return n, err
}

// Tell reports how many bytes have passed through the writer so far,
// mirroring the Python original's Accessor.tell() duty-of-the-sink
// contract: transport code can learn byte counts without buffering.
func (w *Writer) Tell() int64 {
	return w.size
}

// Size is an alias for Tell, read better at call sites that only care
// about the final byte count (e.g. after a copy completes).
func (w *Writer) Size() int64 {
	return w.size
}

// Digest returns the running digest in canonical "algo:hex" form.
func (w *Writer) Digest() godigest.Digest {
	return w.digester.Digest()
}

// CounterSink is a no-op io.Writer that only counts bytes, used when a
// Writer is needed purely to compute a digest/size pair over data that has
// nowhere else to go (e.g. hashing an in-memory buffer being assembled
// elsewhere).
type CounterSink struct{}

func (CounterSink) Write(p []byte) (int, error) { return len(p), nil }
