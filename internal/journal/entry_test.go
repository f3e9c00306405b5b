package journal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntrySetKeepsFirstPosition(t *testing.T) {
	e := NewEntry()
	e.Set("MESSAGE", "first")
	e.Set("PRIORITY", "6")
	e.Set("MESSAGE", "second")

	assert.Equal(t, 2, e.Len())
	assert.Equal(t, []Field{
		{Key: "MESSAGE", Value: "second"},
		{Key: "PRIORITY", Value: "6"},
	}, e.Fields())

	v, ok := e.Get("MESSAGE")
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	_, ok = e.Get("MISSING")
	assert.False(t, ok)
}

func TestEntryMarshalJSON(t *testing.T) {
	e := NewEntry()
	e.Set("Z", "last-alpha")
	e.Set("A", "<tag> & \"quoted\"\n")
	e.Set("", "empty key")

	b, err := e.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Z":"last-alpha","A":"<tag> & \"quoted\"\n","":"empty key"}`, string(b))

	// json.Marshal compacts with HTML escaping on; the document is equivalent.
	escaped, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(escaped))
}

func TestEntryMarshalJSONEmpty(t *testing.T) {
	b, err := json.Marshal(NewEntry())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestNilEntryLen(t *testing.T) {
	var e *Entry
	assert.Equal(t, 0, e.Len())
}
