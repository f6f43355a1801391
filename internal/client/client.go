// Package client reads the stream published by the log server: it
// reassembles frames from whatever the socket delivers and dispatches them
// to registered hooks.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/logcast/internal/frame"
	"github.com/dgnsrekt/logcast/internal/netio"
	"github.com/dgnsrekt/logcast/internal/protocol"
)

type reader interface {
	TryRead(p []byte) (int, error)
	Close() error
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	IOTimeout time.Duration
	ChunkSize int
	Logger    *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.IOTimeout <= 0 {
		o.IOTimeout = netio.DefaultIOTimeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = frame.DefaultChunkSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Client is a subscriber to a log server. It is not safe for concurrent
// use; hooks run on the goroutine calling ProcessOnePendingChunk.
type Client struct {
	conn    reader
	logger  *zap.Logger
	readBuf []byte
	buf     []byte

	rx       uint64
	initSize uint64
	haveInit bool
	initDone bool
	closed   bool

	optionsHooks  []func(map[string]any)
	progressHooks []func(rx, initSize uint64)
	initDoneHooks []func()
	dataHooks     []func([]byte)
}

// Dial connects to the server at address.
func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return New(conn, opts), nil
}

// New returns a Client reading from an established connection.
func New(conn net.Conn, opts Options) *Client {
	opts = opts.withDefaults()
	return newClient(netio.Wrap(conn, opts.IOTimeout), opts)
}

func newClient(r reader, opts Options) *Client {
	return &Client{
		conn:    r,
		logger:  opts.Logger,
		readBuf: make([]byte, opts.ChunkSize),
	}
}

// OnOptions registers fn to receive the log options record.
func (c *Client) OnOptions(fn func(options map[string]any)) {
	c.optionsHooks = append(c.optionsHooks, fn)
}

// OnInitProgress registers fn to be called for every data record received
// before the snapshot is complete. initSize is 0 until INIT has arrived.
func (c *Client) OnInitProgress(fn func(rx, initSize uint64)) {
	c.progressHooks = append(c.progressHooks, fn)
}

// OnInitDone registers fn to be called once the snapshot is complete.
func (c *Client) OnInitDone(fn func()) {
	c.initDoneHooks = append(c.initDoneHooks, fn)
}

// OnData registers fn to receive every data record. The payload remains
// valid after fn returns.
func (c *Client) OnData(fn func(payload []byte)) {
	c.dataHooks = append(c.dataHooks, fn)
}

// RX returns the number of data bytes received, frame headers included.
func (c *Client) RX() uint64 {
	return c.rx
}

// InitSize returns the snapshot size announced by the server and whether it
// has been announced yet.
func (c *Client) InitSize() (uint64, bool) {
	return c.initSize, c.haveInit
}

// InitDone reports whether the snapshot has been fully received.
func (c *Client) InitDone() bool {
	return c.initDone
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	return c.closed
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ProcessOnePendingChunk performs one non-blocking read and dispatches every
// frame completed by it. It reports whether any bytes were read. Once an
// error is returned the connection should be closed.
func (c *Client) ProcessOnePendingChunk() (bool, error) {
	if c.closed {
		return false, &ComError{Op: "read", Err: net.ErrClosed}
	}

	n, readErr := c.conn.TryRead(c.readBuf)
	if errors.Is(readErr, netio.ErrWouldBlock) {
		return false, nil
	}
	if n > 0 {
		c.buf = append(c.buf, c.readBuf[:n]...)
		c.dispatch()
	}
	if readErr != nil {
		return n > 0, &ComError{Op: "read", Err: readErr}
	}
	return n > 0, nil
}

// ProcessAvailable calls ProcessOnePendingChunk at least once and keeps going
// while bytes arrive and less than maxDuration has elapsed. It returns the
// result of the last call.
func (c *Client) ProcessAvailable(maxDuration time.Duration) (bool, error) {
	start := time.Now()
	for {
		progressed, err := c.ProcessOnePendingChunk()
		if err != nil || !progressed || time.Since(start) >= maxDuration {
			return progressed, err
		}
	}
}

// Run polls the connection every interval until ctx is cancelled or the
// connection fails.
func (c *Client) Run(ctx context.Context, interval, maxDuration time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.ProcessAvailable(maxDuration); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Client) dispatch() {
	consumed := 0
	defer func() {
		if consumed > 0 {
			c.buf = append([]byte(nil), c.buf[consumed:]...)
		}
	}()

	for {
		payload, size, ok := frame.TryDecode(c.buf[consumed:])
		if !ok {
			return
		}
		consumed += size

		msg := protocol.Classify(payload)
		switch msg.Kind {
		case protocol.KindOptions:
			for _, fn := range c.optionsHooks {
				fn(msg.Options)
			}
		case protocol.KindInit:
			c.initSize = msg.Total
			c.haveInit = true
			c.logger.Debug("snapshot announced", zap.Uint64("init_size", msg.Total))
		case protocol.KindInitDone:
			c.initDone = true
			c.logger.Debug("snapshot received", zap.Uint64("rx", c.rx))
			for _, fn := range c.initDoneHooks {
				fn()
			}
		default:
			c.rx += uint64(size)
			if !c.initDone {
				for _, fn := range c.progressHooks {
					fn(c.rx, c.initSize)
				}
			}
			for _, fn := range c.dataHooks {
				fn(payload)
			}
		}
	}
}
