package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewToken_ShapeAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		tok, err := NewToken()
		require.NoError(t, err)
		require.Len(t, tok, TokenLength)
		require.True(t, WellFormedToken(tok))
		require.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	tok, err := NewToken()
	require.NoError(t, err)
	require.Equal(t, HashToken(tok), HashToken(tok))
	require.NotEqual(t, tok, HashToken(tok))
	require.Len(t, HashToken(tok), 64)
}

func TestWellFormedToken_Rejects(t *testing.T) {
	tok, err := NewToken()
	require.NoError(t, err)

	require.False(t, WellFormedToken(""))
	require.False(t, WellFormedToken(tok[:63]))
	require.False(t, WellFormedToken(tok+"0"))
	require.False(t, WellFormedToken("G"+tok[1:]))
	require.False(t, WellFormedToken("A"+tok[1:]), "upper-case hex is not issued")
}
