package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRegistry_RegisterGetList(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.Len(t, r.List(), 2)
	assert.Equal(t, 2, r.Count())
}

func TestBaseRegistry_RejectsEmptyNameAndDuplicate(t *testing.T) {
	r := NewBaseRegistry[int]()

	err := r.Register("", 1)
	assert.Error(t, err)

	require.NoError(t, r.Register("x", 1))
	err = r.Register("x", 2)
	assert.Error(t, err)
}

// TestBaseRegistry_Idempotence covers the registry idempotence invariant:
// register(t); unregister(t.name); get(t.name) == none.
func TestBaseRegistry_Idempotence(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("tool", "payload"))
	require.NoError(t, r.Remove("tool"))

	_, ok := r.Get("tool")
	assert.False(t, ok)
}

func TestBaseRegistry_RemoveMissing(t *testing.T) {
	r := NewBaseRegistry[int]()
	err := r.Remove("missing")
	assert.Error(t, err)
}

func TestBaseRegistry_Clear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	r.Clear()
	assert.Equal(t, 0, r.Count())
}
