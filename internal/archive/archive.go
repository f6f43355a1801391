// Package archive records a received log stream into a zstd-compressed file
// whose decompressed contents are a valid event log.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/logcast/internal/codec"
	"github.com/dgnsrekt/logcast/internal/frame"
	"github.com/dgnsrekt/logcast/internal/logfile"
)

// MaxRecordSize bounds a single record read back from an archive.
const MaxRecordSize = 64 << 20

var (
	ErrClosed         = errors.New("archive writer closed")
	ErrRecordTooLarge = errors.New("archive record exceeds size limit")
)

// Writer appends framed records to a compressed archive.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	enc     *zstd.Encoder
	records int
	closed  bool
}

// Create truncates or creates path and writes the log prologue.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	if err := logfile.WritePrologue(enc); err != nil {
		_ = enc.Close()
		_ = file.Close()
		return nil, fmt.Errorf("writing prologue: %w", err)
	}
	return &Writer{file: file, enc: enc}, nil
}

// WriteOptions appends the options record.
func (w *Writer) WriteOptions(options map[string]any) error {
	payload, err := codec.Marshal(options)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	return w.WriteRecord(payload)
}

// WriteRecord frames payload and appends it.
func (w *Writer) WriteRecord(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if len(payload) > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(payload))
	}
	if _, err := w.enc.Write(frame.Encode(payload)); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	w.records++
	return nil
}

// Records returns the number of records written.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Close finishes the zstd stream and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	encErr := w.enc.Close()
	closeErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("finishing zstd stream: %w", encErr)
	}
	return closeErr
}

// Reader iterates over the records of an archive.
type Reader struct {
	file *os.File
	dec  *zstd.Decoder
}

// Open opens an archive and validates its prologue.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	dec, err := zstd.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if err := logfile.ReadPrologue(dec); err != nil {
		dec.Close()
		_ = file.Close()
		return nil, err
	}
	return &Reader{file: file, dec: dec}, nil
}

// Next returns the next record payload, or io.EOF after the last one.
func (r *Reader) Next() ([]byte, error) {
	var header [frame.HeaderSize]byte
	if _, err := io.ReadFull(r.dec, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading record header: %w", err)
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.dec, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return payload, nil
}

// Close releases the decoder and closes the file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.file.Close()
}

// Extract decompresses the archive at src into an event log at dst and
// returns the number of bytes written.
func Extract(src, dst string) (int64, error) {
	r, err := Open(src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating event log: %w", err)
	}
	n, err := logfile.Copy(out, r.dec)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("extracting archive: %w", err)
	}
	return n, out.Close()
}
