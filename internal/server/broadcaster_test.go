package server

import (
	"bytes"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/logcast/internal/frame"
	"github.com/dgnsrekt/logcast/internal/netio"
	"github.com/dgnsrekt/logcast/internal/protocol"
)

// fakeSource serves a scripted event log.
type fakeSource struct {
	headerFound bool
	tailed      []byte
	pending     []byte
	pollErr     error
	snapshotErr error
}

func (f *fakeSource) append(data []byte) {
	f.headerFound = true
	f.pending = append(f.pending, data...)
}

func (f *fakeSource) PollNewBytes() ([]byte, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if len(f.pending) == 0 {
		return nil, nil
	}
	data := f.pending
	f.pending = nil
	f.tailed = append(f.tailed, data...)
	return data, nil
}

func (f *fakeSource) SnapshotBytes() ([]byte, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return append([]byte(nil), f.tailed...), nil
}

func (f *fakeSource) HeaderFound() bool {
	return f.headerFound
}

// fakeSink records what the broadcaster offers and accepts.
type fakeSink struct {
	offered [][]byte
	written []byte
	limit   int
	block   bool
	err     error
	closed  bool
}

func (f *fakeSink) TryWrite(p []byte) (int, error) {
	f.offered = append(f.offered, append([]byte(nil), p...))
	if f.err != nil {
		return 0, f.err
	}
	if f.block {
		return 0, netio.ErrWouldBlock
	}
	n := len(p)
	if f.limit > 0 && n > f.limit {
		n = f.limit
	}
	f.written = append(f.written, p[:n]...)
	return n, nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func newTestBroadcaster(src Source) *Broadcaster {
	return New(src, Options{}, zap.NewNop())
}

func frames(payloads ...string) []byte {
	var out []byte
	for _, p := range payloads {
		out = frame.Append(out, []byte(p))
	}
	return out
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestSeedBeforeHeader(t *testing.T) {
	b := newTestBroadcaster(&fakeSource{})
	sink := &fakeSink{}
	_, err := b.addSubscriber(sink, "test")
	require.NoError(t, err)

	require.NoError(t, b.step())

	assert.Equal(t, concat(protocol.InitFrame(0), protocol.InitDoneFrame()), sink.written)
	assert.Len(t, sink.offered, 1, "control frames are coalesced into one write")
}

func TestSnapshotBeforeLive(t *testing.T) {
	src := &fakeSource{}
	src.append(frames("opts", "one"))
	b := newTestBroadcaster(src)
	require.NoError(t, b.step())

	sink := &fakeSink{}
	_, err := b.addSubscriber(sink, "test")
	require.NoError(t, err)
	src.append(frames("two"))
	require.NoError(t, b.step())

	snapshot := frames("opts", "one")
	want := concat(
		protocol.InitFrame(uint64(len(snapshot))),
		snapshot,
		protocol.InitDoneFrame(),
		frames("two"),
	)
	assert.Equal(t, want, sink.written)
}

func TestLiveBytesReachEverySubscriber(t *testing.T) {
	src := &fakeSource{}
	b := newTestBroadcaster(src)

	first, second := &fakeSink{}, &fakeSink{}
	_, err := b.addSubscriber(first, "first")
	require.NoError(t, err)
	_, err = b.addSubscriber(second, "second")
	require.NoError(t, err)
	require.NoError(t, b.step())

	src.append(frames("live"))
	require.NoError(t, b.step())

	assert.Equal(t, first.written, second.written)
	assert.True(t, bytes.HasSuffix(first.written, frames("live")))
}

func TestLargeSnapshotIsChunked(t *testing.T) {
	src := &fakeSource{}
	snapshot := bytes.Repeat([]byte{0xab}, 40000)
	src.append(snapshot)
	b := newTestBroadcaster(src)
	require.NoError(t, b.step())

	sink := &fakeSink{}
	_, err := b.addSubscriber(sink, "test")
	require.NoError(t, err)
	require.NoError(t, b.step())

	want := concat(protocol.InitFrame(40000), snapshot, protocol.InitDoneFrame())
	assert.Equal(t, want, sink.written)
	for _, offered := range sink.offered {
		assert.LessOrEqual(t, len(offered), frame.DefaultChunkSize)
	}
	require.Len(t, sink.offered, 4)
	assert.Equal(t, protocol.InitFrame(40000), sink.offered[0])
	assert.Len(t, sink.offered[1], 16384)
	assert.Len(t, sink.offered[2], 16384)
	assert.Equal(t, concat(snapshot[:7232], protocol.InitDoneFrame()), sink.offered[3])
}

func TestLargeLiveBurstReachesEveryQueue(t *testing.T) {
	src := &fakeSource{}
	src.append(frames("snapshot"))
	b := newTestBroadcaster(src)
	require.NoError(t, b.step())

	caughtUp := &fakeSink{}
	first, err := b.addSubscriber(caughtUp, "caught-up")
	require.NoError(t, err)
	require.NoError(t, b.step())
	require.Equal(t, 0, first.queue.len())

	draining := &fakeSink{}
	second, err := b.addSubscriber(draining, "draining")
	require.NoError(t, err)
	snapshotQueue := second.queue.bytes()
	require.NotEmpty(t, snapshotQueue)

	burst := make([]byte, 40000)
	for i := range burst {
		burst[i] = byte(i)
	}
	src.append(burst)
	require.NoError(t, b.tailSource())

	for _, s := range []*subscriber{first, second} {
		n := len(s.queue.chunks)
		require.GreaterOrEqual(t, n, 3, s.remoteAddr)
		tail := s.queue.chunks[n-3:]
		assert.Len(t, tail[0], 16384, s.remoteAddr)
		assert.Len(t, tail[1], 16384, s.remoteAddr)
		assert.Len(t, tail[2], 7232, s.remoteAddr)
		assert.Equal(t, burst, concat(tail...), s.remoteAddr)
	}
	assert.Len(t, first.queue.chunks, 3)
	assert.Equal(t, concat(snapshotQueue, burst), second.queue.bytes())

	alreadySent := len(caughtUp.written)
	b.drain()
	assert.Equal(t, burst, caughtUp.written[alreadySent:])
	assert.Equal(t, concat(snapshotQueue, burst), draining.written)
	for _, sink := range []*fakeSink{caughtUp, draining} {
		for _, offered := range sink.offered {
			assert.LessOrEqual(t, len(offered), frame.DefaultChunkSize)
		}
	}
}

func TestWouldBlockDoesNotHoldBackOthers(t *testing.T) {
	src := &fakeSource{}
	src.append(frames("snapshot"))
	b := newTestBroadcaster(src)
	require.NoError(t, b.step())

	blocked := &fakeSink{block: true}
	stuck, err := b.addSubscriber(blocked, "blocked")
	require.NoError(t, err)
	open := &fakeSink{}
	flowing, err := b.addSubscriber(open, "open")
	require.NoError(t, err)

	src.append(frames("live"))
	require.NoError(t, b.tailSource())
	stuckBefore := stuck.queue.bytes()
	flowingBefore := flowing.queue.bytes()

	b.drain()

	assert.Empty(t, blocked.written)
	assert.False(t, blocked.closed)
	assert.Equal(t, stuckBefore, stuck.queue.bytes())
	assert.Equal(t, flowingBefore, open.written)
	assert.Equal(t, 0, flowing.queue.len())
	require.Len(t, b.subs, 2)

	blocked.block = false
	require.NoError(t, b.step())
	assert.Equal(t, stuckBefore, blocked.written)
	require.Len(t, blocked.offered, 2)
	assert.Equal(t, blocked.offered[0], blocked.offered[1])
}

func TestPartialWritesRequeueRemainder(t *testing.T) {
	src := &fakeSource{}
	src.append(frames("options", "cycle one", "cycle two"))
	b := newTestBroadcaster(src)
	require.NoError(t, b.step())

	sink := &fakeSink{limit: 5}
	s, err := b.addSubscriber(sink, "test")
	require.NoError(t, err)
	want := s.queue.bytes()

	for i := 0; i < 100 && s.queue.len() > 0; i++ {
		require.NoError(t, b.step())
	}
	assert.Equal(t, 0, s.queue.len())
	assert.Equal(t, want, sink.written)
	assert.Equal(t, int64(len(want)), s.sent)
}

func TestWouldBlockRetriesSameBytes(t *testing.T) {
	src := &fakeSource{}
	src.append(frames("snapshot"))
	b := newTestBroadcaster(src)
	require.NoError(t, b.step())

	sink := &fakeSink{block: true}
	s, err := b.addSubscriber(sink, "test")
	require.NoError(t, err)
	want := s.queue.bytes()

	require.NoError(t, b.step())
	assert.Empty(t, sink.written)
	assert.Equal(t, want, s.queue.bytes())
	assert.False(t, sink.closed)

	sink.block = false
	require.NoError(t, b.step())
	assert.Equal(t, want, sink.written)
	require.Len(t, sink.offered, 2)
	assert.Equal(t, sink.offered[0], sink.offered[1])
}

func TestFailingSubscriberIsIsolated(t *testing.T) {
	src := &fakeSource{}
	b := newTestBroadcaster(src)

	bad := &fakeSink{err: syscall.ECONNRESET}
	good := &fakeSink{}
	_, err := b.addSubscriber(bad, "bad")
	require.NoError(t, err)
	_, err = b.addSubscriber(good, "good")
	require.NoError(t, err)

	src.append(frames("one"))
	require.NoError(t, b.step())
	src.append(frames("two"))
	require.NoError(t, b.step())

	assert.True(t, bad.closed)
	assert.Len(t, bad.offered, 1)
	assert.False(t, good.closed)
	assert.True(t, bytes.HasSuffix(good.written, frames("one", "two")))
	require.Len(t, b.subs, 1)
	assert.Equal(t, "good", b.subs[0].remoteAddr)
}

func TestTailErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	b := newTestBroadcaster(&fakeSource{pollErr: boom})

	err := b.step()
	assert.ErrorIs(t, err, boom)
}

func TestSnapshotErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	b := newTestBroadcaster(&fakeSource{headerFound: true, snapshotErr: boom})

	_, err := b.addSubscriber(&fakeSink{}, "test")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.subs)
}

func TestCloseAllClosesEverySubscriber(t *testing.T) {
	b := newTestBroadcaster(&fakeSource{})
	sinks := []*fakeSink{{block: true}, {block: true}}
	for _, s := range sinks {
		_, err := b.addSubscriber(s, "test")
		require.NoError(t, err)
	}
	require.NoError(t, b.step())

	b.closeAll()
	for _, s := range sinks {
		assert.True(t, s.closed)
	}
	assert.Empty(t, b.subs)
}

func TestPublishedStats(t *testing.T) {
	src := &fakeSource{}
	src.append(frames("abc"))
	b := newTestBroadcaster(src)
	require.NoError(t, b.step())

	sink := &fakeSink{block: true}
	s, err := b.addSubscriber(sink, "10.0.0.1:4000")
	require.NoError(t, err)
	require.NoError(t, b.step())
	b.publishStats()

	stats := b.Stats()
	assert.True(t, stats.HeaderFound)
	assert.Equal(t, int64(len(frames("abc"))), stats.TailedBytes)
	require.Len(t, stats.Subscribers, 1)
	assert.Equal(t, s.id, stats.Subscribers[0].ID)
	assert.Equal(t, "10.0.0.1:4000", stats.Subscribers[0].RemoteAddr)
	assert.Equal(t, s.queue.len(), stats.Subscribers[0].QueuedBytes)
	assert.Zero(t, stats.Subscribers[0].SentBytes)
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultSamplingPeriod, opts.SamplingPeriod)
	assert.Equal(t, frame.DefaultChunkSize, opts.ChunkSize)
	assert.Equal(t, netio.DefaultIOTimeout, opts.IOTimeout)
}
