package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dgnsrekt/logcast/internal/frame"
	"github.com/dgnsrekt/logcast/internal/logfile"
)

var (
	ErrMalformedHeader = errors.New("malformed event log header")
	ErrHeaderNotFound  = errors.New("event log header not read yet")
	ErrTruncated       = errors.New("event log shrank below the read position")
)

// Tailer reads the bytes appended to an event log since the previous call.
// It is not safe for concurrent use; the broadcaster owns it.
type Tailer struct {
	path        string
	file        *os.File
	offset      int64
	headerFound bool
	alignFrames bool
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithFrameAlignment makes the read cursor advance only over complete frames,
// leaving a frame the producer is still writing for the next poll.
func WithFrameAlignment(enabled bool) Option {
	return func(t *Tailer) { t.alignFrames = enabled }
}

// Open opens path for tailing. The file must exist; it may still be empty.
func Open(path string, opts ...Option) (*Tailer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	t := &Tailer{path: path, file: file}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Path returns the tailed file path.
func (t *Tailer) Path() string {
	return t.path
}

// HeaderFound reports whether the prologue has been read and validated.
func (t *Tailer) HeaderFound() bool {
	return t.headerFound
}

// Offset returns the read cursor, prologue included.
func (t *Tailer) Offset() int64 {
	return t.offset
}

// PollNewBytes returns the bytes appended since the last call, or nil when
// nothing new is available. Until the prologue is complete nothing is
// returned and the cursor stays at the start of the file; the call that
// completes it validates the prologue and returns only what follows.
func (t *Tailer) PollNewBytes() ([]byte, error) {
	data, err := t.readFrom(t.offset)
	if err != nil || len(data) == 0 {
		return nil, err
	}

	start := t.offset
	if !t.headerFound {
		if len(data) < logfile.PrologueSize {
			return nil, nil
		}
		if err := logfile.ReadPrologue(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedHeader, t.path, err)
		}
		t.headerFound = true
		data = data[logfile.PrologueSize:]
		start += int64(logfile.PrologueSize)
	}

	if t.alignFrames {
		data = data[:frame.Complete(data)]
	}
	t.offset = start + int64(len(data))
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// SnapshotBytes returns everything between the prologue and the read cursor.
func (t *Tailer) SnapshotBytes() ([]byte, error) {
	if !t.headerFound {
		return nil, ErrHeaderNotFound
	}
	size := t.offset - int64(logfile.PrologueSize)
	snapshot := make([]byte, size)
	if _, err := t.file.ReadAt(snapshot, int64(logfile.PrologueSize)); err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return snapshot, nil
}

// Close closes the file.
func (t *Tailer) Close() error {
	return t.file.Close()
}

// readFrom returns the bytes between offset and the current end of file.
func (t *Tailer) readFrom(offset int64) ([]byte, error) {
	info, err := t.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat event log: %w", err)
	}
	size := info.Size()
	if size < offset {
		return nil, fmt.Errorf("%w: %s is %d bytes, cursor at %d", ErrTruncated, t.path, size, offset)
	}
	if size == offset {
		return nil, nil
	}

	data := make([]byte, size-offset)
	n, err := t.file.ReadAt(data, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return data[:n], nil
}
