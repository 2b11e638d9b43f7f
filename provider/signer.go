package provider

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// signingKeyBits is the RSA modulus size for ID token signing keys
const signingKeyBits = 2048

// Signer signs ID tokens with RS256 and publishes the verification keys as a
// JWKS. Rotation installs a fresh signing key while keeping the retired
// public keys in the set, so tokens issued before the rotation still verify
// within their validity window.
type Signer struct {
	mu      sync.RWMutex
	keyID   string
	key     *rsa.PrivateKey
	retired []jose.JSONWebKey
}

// NewSigner creates a signer with a freshly generated RSA key
func NewSigner() (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	return &Signer{
		keyID: uuid.NewString(),
		key:   key,
	}, nil
}

// SignIDToken signs the given claims into a compact JWS. The extra claims are
// merged on top of the standard set; standard claims win on conflict.
func (s *Signer) SignIDToken(std jwt.Claims, extra map[string]any) (string, error) {
	s.mu.RLock()
	signingKey := jose.SigningKey{
		Algorithm: jose.RS256,
		Key: jose.JSONWebKey{
			Key:       s.key,
			KeyID:     s.keyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		},
	}
	s.mu.RUnlock()

	signer, err := jose.NewSigner(signingKey, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	builder := jwt.Signed(signer)
	if len(extra) > 0 {
		builder = builder.Claims(extra)
	}

	token, err := builder.Claims(std).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign ID token: %w", err)
	}

	return token, nil
}

// Rotate generates a new signing key. The previous public key is retained in
// the JWKS so outstanding tokens keep verifying.
func (s *Signer) Rotate() error {
	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.retired = append(s.retired, jose.JSONWebKey{
		Key:       s.key.Public(),
		KeyID:     s.keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	})
	s.keyID = uuid.NewString()
	s.key = key

	return nil
}

// KeyID returns the identifier of the current signing key
func (s *Signer) KeyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyID
}

// JWKS returns the public key set: the current key first, then retired keys
func (s *Signer) JWKS() jose.JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]jose.JSONWebKey, 0, len(s.retired)+1)
	keys = append(keys, jose.JSONWebKey{
		Key:       s.key.Public(),
		KeyID:     s.keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	})
	keys = append(keys, s.retired...)

	return jose.JSONWebKeySet{Keys: keys}
}
