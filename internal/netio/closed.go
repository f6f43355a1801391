package netio

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// CloseReason names the way a connection ended when err is a routine
// disconnect, and returns "" for anything else.
func CloseReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, net.ErrClosed):
		return "closed"
	case errors.Is(err, syscall.EPIPE):
		return "broken_pipe"
	case errors.Is(err, syscall.ECONNRESET):
		return "reset"
	default:
		return ""
	}
}

// IsExpectedCloseError reports whether err is a routine end of connection
// rather than a fault worth a warning.
func IsExpectedCloseError(err error) bool {
	return CloseReason(err) != ""
}
