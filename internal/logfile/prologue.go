// Package logfile reads and writes the event log files the server tails.
//
// A log file starts with a fixed-size prologue (magic + format version)
// followed by frames: conventionally one options frame, then one frame per
// execution cycle. Each cycle is a CBOR array of [event, sec, usec, args]
// tuples.
package logfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic opens every log file.
	Magic = "LOGCAST"
	// FormatVersion is the only version this package reads and writes.
	FormatVersion uint32 = 1
	// PrologueSize is the byte length of the prologue.
	PrologueSize = len(Magic) + 4
)

var (
	ErrInvalidMagic       = errors.New("not a logcast event log (invalid magic)")
	ErrUnsupportedVersion = errors.New("unsupported event log format version")
)

// ReadPrologue reads and validates the prologue from r.
func ReadPrologue(r io.Reader) error {
	var prologue [PrologueSize]byte
	if _, err := io.ReadFull(r, prologue[:]); err != nil {
		return fmt.Errorf("reading prologue: %w", err)
	}
	if string(prologue[:len(Magic)]) != Magic {
		return ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(prologue[len(Magic):]); version != FormatVersion {
		return fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, version, FormatVersion)
	}
	return nil
}

// WritePrologue writes the prologue to w.
func WritePrologue(w io.Writer) error {
	var prologue [PrologueSize]byte
	copy(prologue[:], Magic)
	binary.LittleEndian.PutUint32(prologue[len(Magic):], FormatVersion)
	_, err := w.Write(prologue[:])
	return err
}
