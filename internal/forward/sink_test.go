package forward

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mattjoyce/journalfwd/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSubmitter struct {
	payloads []string
	err      error
}

func (r *recordingSubmitter) Submit(_ context.Context, payload []byte) (string, error) {
	r.payloads = append(r.payloads, string(payload))
	return "id", r.err
}

func TestSinkCapturesJSONWithoutIO(t *testing.T) {
	sub := &recordingSubmitter{}
	sink := NewSink(context.Background(), sub, quietLogger)

	input := "MESSAGE=hello\nPRIORITY=6\n\n_PID=42\n\n"
	stats, err := journal.Parse(context.Background(), strings.NewReader(input), sink, journal.Options{Logger: quietLogger})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, []string{
		`{"MESSAGE":"hello","PRIORITY":"6"}`,
		`{"_PID":"42"}`,
	}, sub.payloads)
}

func TestSinkSwallowsSubmitErrors(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("queue full")}
	sink := NewSink(context.Background(), sub, quietLogger)

	stats, err := journal.Parse(context.Background(), strings.NewReader("A=1\n\nB=2\n\n"), sink, journal.Options{Logger: quietLogger})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Len(t, sub.payloads, 2)
}

func TestSinkKeepsHTMLCharactersUnescaped(t *testing.T) {
	sub := &recordingSubmitter{}
	sink := NewSink(context.Background(), sub, quietLogger)

	_, err := journal.Parse(context.Background(), strings.NewReader("MESSAGE=<tag> & x\n\n"), sink, journal.Options{Logger: quietLogger})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"MESSAGE":"<tag> & x"}`}, sub.payloads)
}
