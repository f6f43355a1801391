package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/logcast/internal/logfile"
	"github.com/dgnsrekt/logcast/internal/protocol"
	"github.com/dgnsrekt/logcast/internal/tail"
)

func writeArchive(t *testing.T, records ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.zst")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteOptions(map[string]any{"app": "test"}))
	for _, r := range records {
		require.NoError(t, w.WriteRecord([]byte(r)))
	}
	assert.Equal(t, len(records)+1, w.Records())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	return path
}

func TestRoundTrip(t *testing.T) {
	path := writeArchive(t, "one", "two", "")

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	msg := protocol.Classify(first)
	assert.Equal(t, protocol.KindOptions, msg.Kind)
	assert.Equal(t, "test", msg.Options["app"])

	for _, want := range []string{"one", "two", ""} {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteAfterClose(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "recording.zst"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteRecord([]byte("late")), ErrClosed)
}

func TestExtractProducesTailableLog(t *testing.T) {
	src := writeArchive(t, "one", "two")
	dst := filepath.Join(t.TempDir(), "events.log")

	n, err := Extract(src, dst)
	require.NoError(t, err)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), n)

	tailer, err := tail.Open(dst, tail.WithFrameAlignment(true))
	require.NoError(t, err)
	defer tailer.Close()
	data, err := tailer.PollNewBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)+logfile.PrologueSize), n)
}

func TestOpenRejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.zst")
	require.NoError(t, os.WriteFile(path, []byte("not compressed"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenRejectsForeignContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte("GARBAGE!!!!!"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, logfile.ErrInvalidMagic)
}

func writeRawArchive(t *testing.T, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, logfile.WritePrologue(enc))
	_, err = enc.Write(body)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestNextRejectsOversizedRecord(t *testing.T) {
	path := writeRawArchive(t, []byte{0xff, 0xff, 0xff, 0xff, 'x'})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestNextTruncatedRecord(t *testing.T) {
	path := writeRawArchive(t, []byte{10, 0, 0, 0, 'a', 'b', 'c'})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
