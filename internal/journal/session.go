package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mattjoyce/journalfwd/internal/log"
)

// Sink receives completed entries. Emit must not retain the parser: the
// entry is never touched again by Parse once handed over.
type Sink interface {
	Emit(e *Entry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e *Entry)

// Emit calls f(e).
func (f SinkFunc) Emit(e *Entry) { f(e) }

// Options bounds the resources a single stream may consume. Zero values
// select the defaults.
type Options struct {
	MaxLineSize  int
	MaxFieldSize int64
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxLineSize <= 0 {
		o.MaxLineSize = DefaultMaxLineSize
	}
	if o.MaxFieldSize <= 0 {
		o.MaxFieldSize = DefaultMaxFieldSize
	}
	if o.Logger == nil {
		o.Logger = log.WithComponent("journal")
	}
	return o
}

// Stats summarizes one parsed stream.
type Stats struct {
	Entries      int
	Fields       int
	BinaryFields int
	InvalidUTF8  int
	Bytes        int64
	// DiscardedFields counts fields of an entry that was still open when the
	// stream ended or failed.
	DiscardedFields int
}

// Parse reads an export stream until it is exhausted, a framing error occurs
// or ctx is done, emitting every entry that is closed by a blank line.
//
// A nil error means the stream ended cleanly on a line boundary. Framing
// failures are returned as *FramingError. Read failures of r are returned
// as is.
func Parse(ctx context.Context, r io.Reader, sink Sink, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	rd := newReader(r, opts, opts.Logger)

	var (
		stats Stats
		open  *Entry
	)
	finish := func(err error) (Stats, error) {
		stats.Bytes = rd.offset
		stats.InvalidUTF8 = rd.invalidUTF8
		stats.DiscardedFields = open.Len()
		return stats, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		line, err := rd.readLine()
		if errors.Is(err, io.EOF) {
			return finish(nil)
		}
		if err != nil {
			return finish(err)
		}

		if line == "" {
			if open.Len() > 0 {
				sink.Emit(open)
				stats.Entries++
			}
			open = nil
			continue
		}

		if open == nil {
			open = NewEntry()
		}
		field, err := rd.readField(line)
		if err != nil {
			return finish(err)
		}
		open.Set(field.Key, field.Value)
		stats.Fields++
		if field.Binary {
			stats.BinaryFields++
		}
	}
}
