package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	match, err := Verify(hash, "hunter2")
	require.NoError(t, err)
	assert.True(t, match)

	match, err = Verify(hash, "hunter3")
	require.NoError(t, err)
	assert.False(t, match, "mismatch must be a normal false, not an error")
}

func TestHashSaltsDiffer(t *testing.T) {
	a, err := Hash("same password")
	require.NoError(t, err)
	b, err := Hash("same password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "fresh salts must produce distinct hashes")
}

func TestVerifyEmptyPassword(t *testing.T) {
	hash, err := Hash("")
	require.NoError(t, err)

	match, err := Verify(hash, "")
	require.NoError(t, err)
	assert.True(t, match)

	match, err = Verify(hash, "x")
	require.NoError(t, err)
	assert.False(t, match)
}

func TestVerifyMalformedHash(t *testing.T) {
	for _, bad := range []string{
		"",
		"plainsha256hex",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$not-base64!$aGFzaA",
	} {
		_, err := Verify(bad, "pw")
		assert.Error(t, err, "hash %q", bad)
	}
}
