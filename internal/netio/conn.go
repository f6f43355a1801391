// Package netio gives net.Conn the non-blocking read and write semantics the
// log protocol is built on: an attempt either moves some bytes or reports
// ErrWouldBlock, it never parks the caller waiting for the peer.
package netio

import (
	"errors"
	"net"
	"os"
	"time"
)

// DefaultIOTimeout is how long a single attempt may wait for the kernel
// before it is reported as would-block.
const DefaultIOTimeout = time.Millisecond

// ErrWouldBlock reports that no bytes could be moved right now. It is an
// expected outcome, not a failure.
var ErrWouldBlock = errors.New("operation would block")

// Conn wraps a net.Conn with deadline-bounded attempts.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

// Wrap returns a Conn for c. A non-positive timeout selects DefaultIOTimeout.
// TCP connections get TCP_NODELAY so small control frames are not delayed.
func Wrap(c net.Conn, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = DefaultIOTimeout
	}
	if tcp, ok := c.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return &Conn{conn: c, timeout: timeout}
}

// TryWrite writes as much of p as the transport accepts within the attempt
// timeout. A short count comes with a nil error when the attempt timed out
// after moving some bytes; no bytes at all yields ErrWouldBlock.
func (c *Conn) TryWrite(p []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	n, err := c.conn.Write(p)
	if err != nil && isTimeout(err) {
		if n == 0 {
			return 0, ErrWouldBlock
		}
		return n, nil
	}
	return n, err
}

// TryRead reads whatever is available into p. No data yields ErrWouldBlock;
// an orderly close by the peer yields io.EOF.
func (c *Conn) TryRead(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(p)
	if err != nil && isTimeout(err) {
		if n == 0 {
			return 0, ErrWouldBlock
		}
		return n, nil
	}
	return n, err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
