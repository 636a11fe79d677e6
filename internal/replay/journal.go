// Package replay persists the per-tick simulation stream as compressed
// JSONL so a run can be reloaded and stepped through offline. Together
// with the deterministic engine, the journal of one run is a complete
// reproduction recipe.
package replay

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"crowdmarch/server/internal/sim"
)

// Record is one journaled tick: the commands that entered the engine and
// the snapshot it produced.
type Record struct {
	Tick     uint64        `json:"tick"`
	Delta    float64       `json:"delta"`
	Commands []sim.Command `json:"commands,omitempty"`
	Snapshot sim.Snapshot  `json:"snapshot"`
}

// Writer appends records to a zstd-compressed JSONL stream. Safe for
// concurrent appenders, though the hub only writes from the tick
// goroutine.
type Writer struct {
	mu     sync.Mutex
	closer io.Closer
	enc    *zstd.Encoder
	buf    *bufio.Writer
	jenc   *json.Encoder
}

// NewWriter wraps w. The caller keeps ownership of w when it is not also
// an io.Closer.
func NewWriter(w io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriterSize(enc, 64*1024)
	out := &Writer{
		enc:  enc,
		buf:  buf,
		jenc: json.NewEncoder(buf),
	}
	if closer, ok := w.(io.Closer); ok {
		out.closer = closer
	}
	return out, nil
}

// NewFileWriter creates (or truncates) a journal file, making parent
// directories as needed.
func NewFileWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Append journals one record.
func (w *Writer) Append(rec Record) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jenc.Encode(rec)
}

// Close flushes and closes the compressed stream, and the underlying
// file when the writer owns one.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	err := w.enc.Close()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader iterates a journal stream in tick order.
type Reader struct {
	closer  io.Closer
	dec     *zstd.Decoder
	scanner *bufio.Scanner
}

// NewReader wraps r.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := &Reader{dec: dec, scanner: scanner}
	if closer, ok := r.(io.Closer); ok {
		out.closer = closer
	}
	return out, nil
}

// NewFileReader opens a journal file.
func NewFileReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	if r == nil {
		return Record{}, io.EOF
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, io.EOF
	}
	var rec Record
	if err := json.Unmarshal(r.scanner.Bytes(), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ReadAll drains the remaining records.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close releases the decoder and the underlying file when owned.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	r.dec.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
