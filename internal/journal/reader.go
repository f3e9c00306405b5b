package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxLineSize bounds a single text line, including field names.
	DefaultMaxLineSize = 1 << 20
	// DefaultMaxFieldSize bounds a single binary payload.
	DefaultMaxFieldSize = 64 << 20

	binaryHeaderSize = 8
	readBufferSize   = 64 << 10
)

// reader tokenizes one export stream. It never reads past what it needs and
// never seeks backwards.
type reader struct {
	br           *bufio.Reader
	maxLineSize  int
	maxFieldSize uint64
	logger       *slog.Logger

	offset      int64
	invalidUTF8 int
}

func newReader(r io.Reader, opts Options, logger *slog.Logger) *reader {
	return &reader{
		br:           bufio.NewReaderSize(r, readBufferSize),
		maxLineSize:  opts.MaxLineSize,
		maxFieldSize: uint64(opts.MaxFieldSize),
		logger:       logger,
	}
}

// readLine returns the next line without its terminator. It returns io.EOF
// only when the stream is exhausted on a line boundary.
func (r *reader) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		r.offset += int64(len(chunk))

		switch {
		case err == nil:
			line = append(line, chunk[:len(chunk)-1]...)
			if len(line) > r.maxLineSize {
				return "", r.framing(ErrLineTooLong, "")
			}
			return r.text(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			line = append(line, chunk...)
			if len(line) > r.maxLineSize {
				return "", r.framing(ErrLineTooLong, "")
			}
		case errors.Is(err, io.EOF):
			if len(line)+len(chunk) == 0 {
				return "", io.EOF
			}
			return "", r.framing(ErrTruncatedLine, "")
		default:
			return "", err
		}
	}
}

// readField decodes one field from a non-empty line. A line without '=' names
// a binary field whose value follows as a length-prefixed payload.
func (r *reader) readField(line string) (Field, error) {
	if key, value, ok := strings.Cut(line, "="); ok {
		return Field{Key: key, Value: value}, nil
	}

	value, err := r.readBinary(line)
	if err != nil {
		return Field{}, err
	}
	return Field{Key: line, Value: value, Binary: true}, nil
}

func (r *reader) readBinary(name string) (string, error) {
	var header [binaryHeaderSize]byte
	n, err := io.ReadFull(r.br, header[:])
	r.offset += int64(n)
	if err != nil {
		return "", r.ioOrFraming(err, ErrTruncatedHeader, name)
	}

	size := binary.LittleEndian.Uint64(header[:])
	r.logger.Debug("binary field", "field", name, "size", size)
	if size > r.maxFieldSize {
		return "", r.framing(ErrFieldTooLarge, name)
	}

	payload := make([]byte, size)
	n, err = io.ReadFull(r.br, payload)
	r.offset += int64(n)
	if err != nil {
		return "", r.ioOrFraming(err, ErrTruncatedPayload, name)
	}

	term, err := r.br.ReadByte()
	if err != nil {
		return "", r.ioOrFraming(err, ErrMissingTerminator, name)
	}
	r.offset++
	if term != '\n' {
		r.logger.Warn("expecting newline after binary payload", "field", name, "got", term)
		return "", r.framing(ErrMissingTerminator, name)
	}

	return r.text(payload), nil
}

// ioOrFraming maps a short read to the given framing reason and passes any
// other read failure through untouched.
func (r *reader) ioOrFraming(err, reason error, field string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return r.framing(reason, field)
	}
	return err
}

func (r *reader) framing(reason error, field string) error {
	return &FramingError{Reason: reason, Offset: r.offset, Field: field}
}

func (r *reader) text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	r.invalidUTF8++
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
