package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStateToken(t *testing.T) {
	token, err := GenerateStateToken()
	require.NoError(t, err)

	// 32 bytes, unpadded base64url
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "=")
}

func TestGenerateStateToken_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateStateToken()
		require.NoError(t, err)
		require.False(t, seen[token], "duplicate state token %s", token)
		seen[token] = true
	}
}

func TestGenerateNanoID(t *testing.T) {
	id, err := GenerateNanoID("evt_", 16)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "evt_"))
	assert.Len(t, id, 20)
}

func TestHashSHA256(t *testing.T) {
	h := HashSHA256("state")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashSHA256("state"))
	assert.NotEqual(t, h, HashSHA256("other"))
}
