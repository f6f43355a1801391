// Package server broadcasts a growing event log to TCP subscribers. Every
// subscriber first receives the log as it was when it connected, bracketed
// by INIT/INIT_DONE control frames, then every byte appended afterwards.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/logcast/internal/frame"
	"github.com/dgnsrekt/logcast/internal/netio"
	"github.com/dgnsrekt/logcast/internal/protocol"
)

const (
	DefaultPort           = 20200
	DefaultSamplingPeriod = 50 * time.Millisecond
)

// Source is the tailed event log.
type Source interface {
	PollNewBytes() ([]byte, error)
	SnapshotBytes() ([]byte, error)
	HeaderFound() bool
}

// sink is the write side of a subscriber connection.
type sink interface {
	TryWrite(p []byte) (int, error)
	Close() error
}

// Options tunes the broadcaster. Zero values select the defaults.
type Options struct {
	SamplingPeriod time.Duration
	ChunkSize      int
	IOTimeout      time.Duration
	// Wake, when set, triggers an early tail step (see tail.Watch).
	Wake <-chan struct{}
}

func (o Options) withDefaults() Options {
	if o.SamplingPeriod <= 0 {
		o.SamplingPeriod = DefaultSamplingPeriod
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = frame.DefaultChunkSize
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = netio.DefaultIOTimeout
	}
	return o
}

type subscriber struct {
	id          string
	remoteAddr  string
	connectedAt time.Time
	conn        sink
	queue       outbound
	sent        int64
	closed      bool
}

// Broadcaster owns the source, the subscriber table and every outbound
// queue. All of them are touched only from the goroutine running Serve.
type Broadcaster struct {
	source Source
	opts   Options
	logger *zap.Logger

	register chan net.Conn
	subs     []*subscriber
	tailed   int64

	mu    sync.RWMutex
	addr  net.Addr
	stats Stats
}

// New creates a Broadcaster reading from source.
func New(source Source, opts Options, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		source:   source,
		opts:     opts.withDefaults(),
		logger:   logger,
		register: make(chan net.Conn),
	}
}

// Listen binds a TCP listener on addr.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return ln, nil
}

// Run listens on addr and serves until ctx is cancelled or a fatal error
// occurs.
func (b *Broadcaster) Run(ctx context.Context, addr string) error {
	ln, err := Listen(addr)
	if err != nil {
		return err
	}
	return b.Serve(ctx, ln)
}

// Addr returns the listening address once Serve has started.
func (b *Broadcaster) Addr() net.Addr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.addr
}

// Serve runs the broadcast loop on ln, which it closes on return. It returns
// nil when ctx is cancelled. A malformed or truncated source, a failed
// snapshot read or a closed listener end the loop with an error. Either
// way every subscriber connection is closed.
func (b *Broadcaster) Serve(ctx context.Context, ln net.Listener) error {
	b.mu.Lock()
	b.addr = ln.Addr()
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	acceptErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.acceptLoop(ctx, ln, acceptErr)
	}()
	defer func() {
		cancel()
		_ = ln.Close()
		wg.Wait()
		b.closeAll()
		b.publishStats()
	}()

	b.logger.Info("broadcaster listening",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("sampling_period", b.opts.SamplingPeriod),
		zap.Int("chunk_size", b.opts.ChunkSize),
	)

	ticker := time.NewTicker(b.opts.SamplingPeriod)
	defer ticker.Stop()

	wake := b.opts.Wake
	for {
		if err := b.step(); err != nil {
			b.logger.Error("broadcaster stopping", zap.Error(err))
			return err
		}
		b.publishStats()

		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster stopping")
			return nil
		case err := <-acceptErr:
			b.logger.Error("accept failed", zap.Error(err))
			return fmt.Errorf("accepting subscribers: %w", err)
		case conn := <-b.register:
			if err := b.attach(conn); err != nil {
				b.logger.Error("broadcaster stopping", zap.Error(err))
				return err
			}
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		case <-ticker.C:
		}
	}
}

// acceptLoop hands accepted connections to the coordinator. A failed accept
// only affects the connection being accepted; a closed listener is fatal.
func (b *Broadcaster) acceptLoop(ctx context.Context, ln net.Listener, errc chan<- error) {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				errc <- err
				return
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			b.logger.Warn("accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		backoff = 0
		select {
		case b.register <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

// step runs one accept, tail, drain iteration.
func (b *Broadcaster) step() error {
	if err := b.acceptPending(); err != nil {
		return err
	}
	if err := b.tailSource(); err != nil {
		return err
	}
	b.drain()
	return nil
}

// tailSource appends the chunks of newly tailed bytes to every queue, after
// whatever each queue already holds.
func (b *Broadcaster) tailSource() error {
	data, err := b.source.PollNewBytes()
	if err != nil {
		return fmt.Errorf("tailing event log: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	b.tailed += int64(len(data))
	for _, chunk := range frame.Split(data, b.opts.ChunkSize) {
		for _, s := range b.subs {
			s.queue.push(chunk)
		}
	}
	return nil
}

func (b *Broadcaster) acceptPending() error {
	for {
		select {
		case conn := <-b.register:
			if err := b.attach(conn); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (b *Broadcaster) attach(conn net.Conn) error {
	wrapped := netio.Wrap(conn, b.opts.IOTimeout)
	_, err := b.addSubscriber(wrapped, wrapped.RemoteAddr().String())
	if err != nil {
		_ = conn.Close()
	}
	return err
}

// addSubscriber registers c and queues its snapshot.
func (b *Broadcaster) addSubscriber(c sink, remoteAddr string) (*subscriber, error) {
	s := &subscriber{
		id:          uuid.New().String(),
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		conn:        c,
	}
	if err := b.seed(&s.queue); err != nil {
		return nil, err
	}
	b.subs = append(b.subs, s)

	b.logger.Info("subscriber connected",
		zap.String("conn_id", s.id),
		zap.String("remote_addr", remoteAddr),
		zap.Int("snapshot_bytes", s.queue.len()),
	)
	return s, nil
}

func (b *Broadcaster) seed(q *outbound) error {
	if !b.source.HeaderFound() {
		q.push(protocol.InitFrame(0))
		q.push(protocol.InitDoneFrame())
		return nil
	}

	snapshot, err := b.source.SnapshotBytes()
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	q.push(protocol.InitFrame(uint64(len(snapshot))))
	for _, chunk := range frame.Split(snapshot, b.opts.ChunkSize) {
		q.push(chunk)
	}
	q.push(protocol.InitDoneFrame())
	return nil
}

// drain writes queued bytes to every subscriber without blocking. A
// subscriber whose write went through completely is visited again while
// it still has bytes pending.
func (b *Broadcaster) drain() {
	for {
		progressed := false
		for _, s := range b.subs {
			if s.closed || s.queue.len() == 0 {
				continue
			}
			buf := s.queue.take(b.opts.ChunkSize)
			n, err := s.conn.TryWrite(buf)
			switch {
			case errors.Is(err, netio.ErrWouldBlock):
				s.queue.pushFront(buf)
			case err != nil:
				b.drop(s, err)
			case n < len(buf):
				s.sent += int64(n)
				s.queue.pushFront(buf[n:])
			default:
				s.sent += int64(n)
				if s.queue.len() > 0 {
					progressed = true
				}
			}
		}
		b.removeClosed()
		if !progressed {
			return
		}
	}
}

func (b *Broadcaster) drop(s *subscriber, err error) {
	fields := []zap.Field{
		zap.String("conn_id", s.id),
		zap.String("remote_addr", s.remoteAddr),
		zap.Int64("sent_bytes", s.sent),
		zap.Error(err),
	}
	if reason := netio.CloseReason(err); reason != "" {
		b.logger.Info("subscriber disconnected", append(fields, zap.String("reason", reason))...)
	} else {
		b.logger.Warn("subscriber write failed", fields...)
	}
	s.closed = true
	s.queue.reset()
	_ = s.conn.Close()
}

func (b *Broadcaster) removeClosed() {
	live := b.subs[:0]
	for _, s := range b.subs {
		if !s.closed {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(b.subs); i++ {
		b.subs[i] = nil
	}
	b.subs = live
}

func (b *Broadcaster) closeAll() {
	for _, s := range b.subs {
		s.closed = true
		s.queue.reset()
		_ = s.conn.Close()
	}
	b.subs = nil
}
