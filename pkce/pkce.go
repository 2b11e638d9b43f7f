// Package pkce implements Proof Key for Code Exchange (RFC 7636): verifier
// generation, challenge derivation, and constant-time verification of a
// verifier against a previously issued challenge.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Code challenge methods (RFC 7636 section 4.2).
const (
	// MethodS256 derives the challenge as base64url(SHA-256(verifier)).
	// This is the only method that should be used for new clients.
	MethodS256 = "S256"

	// MethodPlain passes the verifier through unchanged. Deprecated in
	// OAuth 2.1; supported only for interoperability with legacy clients
	// and rejected by the Provider unless explicitly allowed.
	MethodPlain = "plain"
)

// Verifier length bounds (RFC 7636 section 4.1).
const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

var (
	// ErrUnsupportedMethod indicates a code_challenge_method other than S256 or plain
	ErrUnsupportedMethod = errors.New("unsupported code challenge method")

	// ErrInvalidVerifier indicates a verifier that violates the RFC 7636 grammar
	ErrInvalidVerifier = errors.New("invalid code verifier")

	// ErrVerificationFailed indicates the verifier does not match the challenge
	ErrVerificationFailed = errors.New("code verifier does not match code challenge")
)

// GenerateVerifier returns a fresh high-entropy code verifier: 43 characters
// of the URL-safe base64 alphabet from a cryptographically secure source.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// ValidateVerifier checks the RFC 7636 grammar: 43-128 characters drawn from
// [A-Za-z0-9-._~]. Rejecting out-of-grammar input also keeps null bytes and
// control characters out of storage and logs.
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidVerifier, MinVerifierLength)
	}
	if len(verifier) > MaxVerifierLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidVerifier, MaxVerifierLength)
	}
	for _, ch := range verifier {
		valid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !valid {
			return fmt.Errorf("%w: must contain only [A-Za-z0-9-._~]", ErrInvalidVerifier)
		}
	}
	return nil
}

// Challenge derives the code challenge for a verifier using the given method.
func Challenge(verifier, method string) (string, error) {
	if err := ValidateVerifier(verifier); err != nil {
		return "", err
	}
	switch method {
	case MethodS256:
		return oauth2.S256ChallengeFromVerifier(verifier), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}

// SupportedMethod reports whether method is a known challenge method.
func SupportedMethod(method string) bool {
	return method == MethodS256 || method == MethodPlain
}

// Verify recomputes the challenge from the verifier and compares it to the
// stored challenge in constant time. Returns nil on a match,
// ErrVerificationFailed on a mismatch, and ErrInvalidVerifier or
// ErrUnsupportedMethod for malformed input.
func Verify(verifier, challenge, method string) error {
	if err := ValidateVerifier(verifier); err != nil {
		return err
	}

	var computed string
	switch method {
	case MethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(hash[:])
	case MethodPlain:
		computed = verifier
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	// subtle.ConstantTimeCompare prevents timing side channels correlated
	// with partial matches.
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return ErrVerificationFailed
	}
	return nil
}
