package sigengine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	assert.Error(t, r.Register("a", 2))
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry[string]()
	require.NoError(t, r.Register("trend", "trend-strategy"))

	v, ok := r.Get("trend")
	assert.True(t, ok)
	assert.Equal(t, "trend-strategy", v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestBuildMemoizesConstruction(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.Register("one", 1))

	calls := 0
	construct := func(seed int) (string, error) {
		calls++
		return fmt.Sprintf("built-%d", seed), nil
	}

	v1, err := Build(r, "one", construct)
	require.NoError(t, err)
	v2, err := Build(r, "one", construct)
	require.NoError(t, err)

	assert.Equal(t, "built-1", v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls)
}

func TestBuildUnknownNameErrors(t *testing.T) {
	r := NewRegistry[int]()
	_, err := Build(r, "missing", func(int) (string, error) { return "", nil })
	assert.Error(t, err)
}
