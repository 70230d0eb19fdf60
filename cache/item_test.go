package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetItemGetItem_String(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.SetItem("k", "hello", 0))

	v, err := c.GetItem("k")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestSetItemGetItem_Structured(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.SetItem("k", map[string]any{"a": "b"}, 0))

	v, err := c.GetItem("k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "b"}, v)
}

func TestGetItem_RawBytesSurviveBadJSON(t *testing.T) {
	c := newTestCache(t)

	// Looks like a JSON object but isn't; the raw string comes back.
	require.NoError(t, c.SetItem("k", "{not json}", 0))

	v, err := c.GetItem("k")
	require.NoError(t, err)
	assert.Equal(t, "{not json}", v)
}

func TestGetItem_Miss(t *testing.T) {
	c := newTestCache(t)
	_, err := c.GetItem("missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDefaultCache_Lifecycle(t *testing.T) {
	Teardown()
	t.Cleanup(Teardown)

	require.NoError(t, SetItem("k", "v", 0))

	v, err := GetItem("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, DeleteItem("k"))
	_, err = GetItem("k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestInit_ReplacesDefault(t *testing.T) {
	Teardown()
	t.Cleanup(Teardown)

	first := Init(Unbounded(), WithDisableDiagnostic())
	require.NoError(t, first.SetItem("k", "v", 0))

	second := Init(Unbounded(), WithDisableDiagnostic())
	assert.NotSame(t, first, second)
	assert.Same(t, second, Default())

	_, err := GetItem("k")
	assert.ErrorIs(t, err, ErrCacheMiss, "Init starts from an empty cache")
}
