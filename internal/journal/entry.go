package journal

import (
	"bytes"
	"encoding/json"
)

// Field is a single key/value pair of an entry.
type Field struct {
	Key   string
	Value string
	// Binary is set by the reader for length-prefixed payloads. Entry does not
	// retain it, so Fields always reports false.
	Binary bool
}

// Entry is an ordered set of fields. Setting an existing key replaces its
// value and keeps its original position.
type Entry struct {
	keys   []string
	values map[string]string
}

// NewEntry returns an empty entry.
func NewEntry() *Entry {
	return &Entry{values: make(map[string]string)}
}

// Set inserts or replaces the value for key.
func (e *Entry) Set(key, value string) {
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Get returns the value for key.
func (e *Entry) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Len returns the number of distinct keys.
func (e *Entry) Len() int {
	if e == nil {
		return 0
	}
	return len(e.keys)
}

// Fields returns the fields in insertion order.
func (e *Entry) Fields() []Field {
	out := make([]Field, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, Field{Key: k, Value: e.values[k]})
	}
	return out
}

// MarshalJSON renders the entry as a JSON object in insertion order. Every
// value is a JSON string regardless of whether it was sent as text or binary.
func (e *Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(&buf, enc, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeString(&buf, enc, e.values[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeString writes s as a JSON string without the encoder's trailing newline.
func encodeString(buf *bytes.Buffer, enc *json.Encoder, s string) error {
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}
