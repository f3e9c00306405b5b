package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type captureSink struct {
	entries []*Entry
}

func (c *captureSink) Emit(e *Entry) { c.entries = append(c.entries, e) }

func (c *captureSink) json(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		b, err := e.MarshalJSON()
		require.NoError(t, err)
		out = append(out, string(b))
	}
	return out
}

// binaryField encodes key and payload as a length-prefixed field line.
func binaryField(key string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(key)
	buf.WriteByte('\n')
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(payload)))
	buf.Write(size[:])
	buf.Write(payload)
	buf.WriteByte('\n')
	return buf.Bytes()
}

func parse(t *testing.T, input []byte, opts Options) (*captureSink, Stats, error) {
	t.Helper()
	sink := &captureSink{}
	if opts.Logger == nil {
		opts.Logger = quietLogger
	}
	stats, err := Parse(context.Background(), bytes.NewReader(input), sink, opts)
	return sink, stats, err
}

func TestParseTextEntry(t *testing.T) {
	sink, stats, err := parse(t, []byte("MESSAGE=hello\nPRIORITY=6\n\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"MESSAGE":"hello","PRIORITY":"6"}`}, sink.json(t))
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 2, stats.Fields)
	assert.Equal(t, int64(len("MESSAGE=hello\nPRIORITY=6\n\n")), stats.Bytes)
}

func TestParseBinaryEntry(t *testing.T) {
	input := append(binaryField("DATA", []byte("world")), '\n')
	sink, stats, err := parse(t, input, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"DATA":"world"}`}, sink.json(t))
	assert.Equal(t, 1, stats.BinaryFields)
}

func TestParseBinaryPayloadRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("multi\nline\nvalue"),
		[]byte("with=equals"),
		bytes.Repeat([]byte("x"), 100_000),
	}
	for _, p := range payloads {
		input := append(binaryField("K", p), '\n')
		sink, _, err := parse(t, input, Options{})
		require.NoError(t, err)
		require.Len(t, sink.entries, 1)
		v, ok := sink.entries[0].Get("K")
		require.True(t, ok)
		assert.Equal(t, string(p), v)
	}
}

func TestParseMultipleEntries(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5} {
		var buf bytes.Buffer
		var want []string
		for i := 0; i < n; i++ {
			buf.WriteString("MESSAGE=m" + string(rune('0'+i)) + "\n")
			buf.Write(binaryField("BLOB", []byte{'b', byte('0' + i)}))
			buf.WriteString("SEQ=" + string(rune('0'+i)) + "\n\n")
			want = append(want, `{"MESSAGE":"m`+string(rune('0'+i))+`","BLOB":"b`+string(rune('0'+i))+`","SEQ":"`+string(rune('0'+i))+`"}`)
		}
		sink, stats, err := parse(t, buf.Bytes(), Options{})
		require.NoError(t, err)
		assert.Equal(t, n, stats.Entries)
		if n == 0 {
			assert.Empty(t, sink.entries)
			continue
		}
		assert.Equal(t, want, sink.json(t))
	}
}

func TestParseNoLeakAcrossBoundary(t *testing.T) {
	sink, _, err := parse(t, []byte("A=1\nB=2\n\nC=3\n\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"A":"1","B":"2"}`, `{"C":"3"}`}, sink.json(t))
}

func TestParseDropsUnterminatedEntry(t *testing.T) {
	sink, stats, err := parse(t, []byte("A=1\n"), Options{})
	require.NoError(t, err)
	assert.Empty(t, sink.entries)
	assert.Equal(t, 1, stats.DiscardedFields)
}

func TestParseBlankLinesWithoutEntry(t *testing.T) {
	sink, _, err := parse(t, []byte("\n\n\nA=1\n\n\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"A":"1"}`}, sink.json(t))
}

func TestParseLastWriteWins(t *testing.T) {
	sink, _, err := parse(t, []byte("A=1\nB=2\nA=3\n\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"A":"3","B":"2"}`}, sink.json(t))
}

func TestParseSplitsOnFirstSeparator(t *testing.T) {
	sink, _, err := parse(t, []byte("EXPR=a=b\n=novalue\nEMPTY=\n\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"EXPR":"a=b","":"novalue","EMPTY":""}`}, sink.json(t))
}

func TestParseFramingErrors(t *testing.T) {
	first := []byte("A=1\n\n")

	tests := []struct {
		name   string
		tail   []byte
		reason error
		code   string
	}{
		{
			name:   "truncated header",
			tail:   []byte("B=2\nDATA\n\x05\x00\x00"),
			reason: ErrTruncatedHeader,
			code:   "truncated_header",
		},
		{
			name:   "header missing entirely",
			tail:   []byte("DATA\n"),
			reason: ErrTruncatedHeader,
			code:   "truncated_header",
		},
		{
			name:   "truncated payload",
			tail:   []byte("DATA\n\x05\x00\x00\x00\x00\x00\x00\x00wor"),
			reason: ErrTruncatedPayload,
			code:   "truncated_payload",
		},
		{
			name:   "wrong terminator",
			tail:   append(bytes.TrimSuffix(binaryField("DATA", []byte("world")), []byte("\n")), 'X', '\n', '\n', 'C', '=', '3', '\n', '\n'),
			reason: ErrMissingTerminator,
			code:   "missing_terminator",
		},
		{
			name:   "missing terminator at end",
			tail:   bytes.TrimSuffix(binaryField("DATA", []byte("world")), []byte("\n")),
			reason: ErrMissingTerminator,
			code:   "missing_terminator",
		},
		{
			name:   "unterminated final line",
			tail:   []byte("B=2"),
			reason: ErrTruncatedLine,
			code:   "truncated_line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append(append([]byte{}, first...), tt.tail...)
			sink, stats, err := parse(t, input, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFraming))
			assert.True(t, errors.Is(err, tt.reason))
			assert.Equal(t, tt.code, ReasonCode(err))

			// Only the entry closed before the failure is emitted.
			assert.Equal(t, []string{`{"A":"1"}`}, sink.json(t))
			assert.Equal(t, 1, stats.Entries)
		})
	}
}

func TestParseFieldTooLarge(t *testing.T) {
	input := binaryField("DATA", []byte("0123456789"))
	_, _, err := parse(t, input, Options{MaxFieldSize: 4})
	require.ErrorIs(t, err, ErrFieldTooLarge)

	var fe *FramingError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "DATA", fe.Field)
	assert.Equal(t, int64(len("DATA\n")+8), fe.Offset)
}

func TestParseLineTooLong(t *testing.T) {
	input := []byte("MESSAGE=" + strings.Repeat("x", 100) + "\n\n")
	_, _, err := parse(t, input, Options{MaxLineSize: 32})
	require.ErrorIs(t, err, ErrLineTooLong)

	// Longer than the read buffer but within the limit.
	long := strings.Repeat("y", readBufferSize*2)
	sink, _, err := parse(t, []byte("MESSAGE="+long+"\n\n"), Options{})
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)
	v, _ := sink.entries[0].Get("MESSAGE")
	assert.Equal(t, long, v)
}

func TestParseInvalidUTF8IsReplaced(t *testing.T) {
	input := []byte("MESSAGE=bad\xff\xfebytes\n")
	input = append(input, binaryField("BLOB", []byte{0xc3, 0x28})...)
	input = append(input, '\n')

	sink, stats, err := parse(t, input, Options{})
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)

	msg, _ := sink.entries[0].Get("MESSAGE")
	assert.Equal(t, "bad\uFFFDbytes", msg)
	blob, _ := sink.entries[0].Get("BLOB")
	assert.Equal(t, "\uFFFD(", blob)
	assert.Equal(t, 2, stats.InvalidUTF8)
}

func TestParseStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := SinkFunc(func(*Entry) { cancel() })

	var emitted int
	counting := SinkFunc(func(e *Entry) {
		emitted++
		sink.Emit(e)
	})

	_, err := Parse(ctx, strings.NewReader("A=1\n\nB=2\n\n"), counting, Options{Logger: quietLogger})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, emitted)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestParsePassesThroughReadErrors(t *testing.T) {
	readErr := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("A=1\n\n"), failingReader{err: readErr})

	sink := &captureSink{}
	_, err := Parse(context.Background(), r, sink, Options{Logger: quietLogger})
	require.ErrorIs(t, err, readErr)
	assert.False(t, errors.Is(err, ErrFraming))
	assert.Len(t, sink.entries, 1)
}
