package pwdhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	h1 := HashPasswordBase64("correct horse")
	h2 := HashPasswordBase64("correct horse")
	// Salts differ
	require.NotEqual(t, h1, h2)
	require.True(t, IsValidHashBase64(h1))

	require.True(t, VerifyHashBase64("correct horse", h1))
	require.True(t, VerifyHashBase64("correct horse", h2))
	require.False(t, VerifyHashBase64("correct horse ", h1))
	require.False(t, VerifyHashBase64("", h1))
}

func TestInvalidHash(t *testing.T) {
	require.False(t, IsValidHashBase64(""))
	require.False(t, IsValidHashBase64("not base64!"))
	require.False(t, IsValidHashBase64("aGVsbG8"))
	require.False(t, VerifyHashBase64("hello", ""))
	require.False(t, VerifyHashBase64("hello", "not base64!"))

	raw := HashPassword("hello")
	raw[0] = 2
	require.False(t, VerifyHash("hello", raw))
	require.False(t, VerifyHash("hello", raw[:10]))
}
