// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Keys signs and verifies session JWTs for anonymous users.
type Keys struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// expire is the token lifetime; zero means tokens never expire.
	expire time.Duration
	now    func() time.Time
}

// Generate creates a fresh ed25519 key pair at runtime. Tokens issued by an
// earlier process become invalid, and clients sign in again.
func Generate(expire time.Duration) (*Keys, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Keys{privateKey: priv, publicKey: pub, expire: expire, now: time.Now}, nil
}

// LoadFromPath reads raw ed25519 private/public keys from file.
func LoadFromPath(privatePath, publicPath string, expire time.Duration) (*Keys, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key files are not raw ed25519 keys")
	}
	return &Keys{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		expire:     expire,
		now:        time.Now,
	}, nil
}

// CreateJWT creates a signed JWT token with "sub" = userID and, unless tokens
// never expire, exp = now + the configured lifetime.
func (k *Keys) CreateJWT(userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": k.now().Unix(),
	}
	if k.expire > 0 {
		claims["exp"] = k.now().Add(k.expire).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(k.privateKey)
}

// AuthenticateJWT verifies a JWT string and returns the user id in "sub".
func (k *Keys) AuthenticateJWT(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.publicKey, nil
	}, jwt.WithTimeFunc(k.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !t.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: invalid jwt claims", ErrInvalidToken)
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing sub in jwt", ErrInvalidToken)
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: sub is not a uuid", ErrInvalidToken)
	}
	return userID, nil
}
