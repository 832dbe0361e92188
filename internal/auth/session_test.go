package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	keys, err := Generate(0)
	require.NoError(t, err)

	userID := uuid.New()
	tok, err := keys.CreateJWT(userID)
	require.NoError(t, err)

	got, err := keys.AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestTokenFromOtherKeysIsRejected(t *testing.T) {
	a, err := Generate(0)
	require.NoError(t, err)
	b, err := Generate(0)
	require.NoError(t, err)

	tok, err := a.CreateJWT(uuid.New())
	require.NoError(t, err)
	_, err = b.AuthenticateJWT(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.AuthenticateJWT("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpires(t *testing.T) {
	keys, err := Generate(time.Hour)
	require.NoError(t, err)

	issued := time.Now()
	keys.now = func() time.Time { return issued }
	tok, err := keys.CreateJWT(uuid.New())
	require.NoError(t, err)

	keys.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = keys.AuthenticateJWT(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoadFromPath(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "jwt.key")
	pubPath := filepath.Join(dir, "jwt.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	keys, err := LoadFromPath(privPath, pubPath, 0)
	require.NoError(t, err)
	userID := uuid.New()
	tok, err := keys.CreateJWT(userID)
	require.NoError(t, err)

	// a second process with the same files accepts the token
	again, err := LoadFromPath(privPath, pubPath, 0)
	require.NoError(t, err)
	got, err := again.AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = LoadFromPath(filepath.Join(dir, "missing"), pubPath, 0)
	assert.Error(t, err)
}
