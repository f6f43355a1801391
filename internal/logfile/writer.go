package logfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dgnsrekt/logcast/internal/codec"
	"github.com/dgnsrekt/logcast/internal/frame"
)

var ErrClosed = errors.New("event log writer closed")

// Event is one entry of a cycle.
type Event struct {
	Name string
	Sec  int64
	Usec int64
	Args []any
}

// MarshalCBOR encodes the event as the 4-tuple subscribers expect.
func (e Event) MarshalCBOR() ([]byte, error) {
	args := e.Args
	if args == nil {
		args = []any{}
	}
	return codec.Marshal([]any{e.Name, e.Sec, e.Usec, args})
}

// Writer appends frames to an event log. Each Write* call leaves the file
// ending on a frame boundary once Flush returns.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// Create truncates or creates path, writes the prologue and, when options
// is non-nil, the options frame.
func Create(path string, options map[string]any) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating event log: %w", err)
	}

	w := &Writer{file: file, buf: bufio.NewWriter(file)}
	if err := WritePrologue(w.buf); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("writing prologue: %w", err)
	}
	if options != nil {
		if err := w.WriteOptions(options); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return w, nil
}

// WriteOptions appends an options frame.
func (w *Writer) WriteOptions(options map[string]any) error {
	payload, err := codec.Marshal(options)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}
	return w.WritePayload(payload)
}

// WriteCycle appends one cycle of events.
func (w *Writer) WriteCycle(events []Event) error {
	if events == nil {
		events = []Event{}
	}
	payload, err := codec.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding cycle: %w", err)
	}
	return w.WritePayload(payload)
}

// WritePayload frames payload and appends it.
func (w *Writer) WritePayload(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, err := w.buf.Write(frame.Encode(payload)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Flush pushes buffered frames to the file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// DecodeCycle decodes a data payload written by WriteCycle into raw tuples.
func DecodeCycle(payload []byte) ([][]any, error) {
	var cycle [][]any
	if err := codec.Unmarshal(payload, &cycle); err != nil {
		return nil, fmt.Errorf("decoding cycle: %w", err)
	}
	return cycle, nil
}

// Copy writes the prologue followed by everything read from frames to w.
// It is used to rebuild a log file from a stream of already framed bytes.
func Copy(w io.Writer, frames io.Reader) (int64, error) {
	if err := WritePrologue(w); err != nil {
		return 0, err
	}
	n, err := io.Copy(w, frames)
	return n + int64(PrologueSize), err
}
