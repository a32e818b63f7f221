package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h := New(4) // minimum cost keeps the test fast

	hash, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3rSecret", hash)

	assert.True(t, h.Verify("Sup3rSecret", hash))
	assert.False(t, h.Verify("sup3rsecret", hash))
	assert.False(t, h.Verify("Sup3rSecret2", hash))
}

func TestHashIsSalted(t *testing.T) {
	h := New(4)

	first, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)
	second, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("Sup3rSecret", first))
	assert.True(t, h.Verify("Sup3rSecret", second))
}

func TestVerifyFailsClosed(t *testing.T) {
	h := New(4)
	hash, err := h.Hash("Sup3rSecret")
	require.NoError(t, err)

	assert.False(t, h.Verify("", hash))
	assert.False(t, h.Verify("Sup3rSecret", ""))
	assert.False(t, h.Verify("Sup3rSecret", "not-a-bcrypt-hash"))
}

func TestHashRejectsBadInput(t *testing.T) {
	h := New(4)

	_, err := h.Hash("")
	assert.Error(t, err)

	_, err = h.Hash(strings.Repeat("a", 73))
	assert.Error(t, err)
}

func TestNewClampsCost(t *testing.T) {
	h := New(99)
	assert.Equal(t, DefaultCost, h.cost)

	h = New(-1)
	assert.Equal(t, DefaultCost, h.cost)
}
