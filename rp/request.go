package rp

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/jondarrer/oidc-provider-test/security"
)

// DefaultRequestTTL bounds how long a login attempt may sit between the
// redirect to the provider and the callback.
const DefaultRequestTTL = 10 * time.Minute

// Request holds the per-attempt secrets of one authorization request: the
// state that correlates the callback, the nonce that binds the ID token, and
// the PKCE verifier that redeems the code. Every login attempt gets fresh
// values; none of them is ever reused.
type Request struct {
	State    string
	Nonce    string
	Verifier string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewRequest creates a request with freshly generated state, nonce, and PKCE
// verifier. A ttl of zero applies DefaultRequestTTL.
func NewRequest(ttl time.Duration) *Request {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	now := time.Now()
	return &Request{
		State:     security.GenerateRequestID(),
		Nonce:     security.GenerateRequestID(),
		Verifier:  oauth2.GenerateVerifier(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the request's TTL has passed
func (r *Request) Expired() bool {
	return security.IsExpiredWithGracePeriod(r.ExpiresAt, 0)
}
