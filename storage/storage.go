// Package storage defines interfaces for persisting registered clients and
// issued authorization codes. The flow's correctness invariants (single-use
// codes, TTL expiry) must hold identically whether a store is backed by
// memory or by a durable backend.
package storage

import (
	"context"
	"time"
)

// ClientStore defines the interface for the client registry.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID; returns ErrClientNotFound if absent
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret validates a client's secret
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)
}

// FlowStore defines the interface for managing issued authorization codes.
//
// The code store is the single piece of mutable shared state in the flow.
// AtomicConsumeAuthorizationCode is the synchronization point that upholds
// the at-most-once-redemption invariant: the lookup and the consumed mark
// happen in one indivisible step, so of two concurrent redemption attempts
// for the same code exactly one succeeds.
type FlowStore interface {
	// SaveAuthorizationCode saves an issued authorization code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves an authorization code without consuming it
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// AtomicConsumeAuthorizationCode atomically checks that a code exists, is
	// unexpired, and is unconsumed, and marks it consumed. Returns the code
	// record on success, or an error if:
	//   - Code not found (ErrAuthorizationCodeNotFound)
	//   - Code expired (wrapping ErrExpired)
	//   - Code already consumed (ErrAuthorizationCodeConsumed; the record is
	//     returned alongside the error so callers can audit the reuse attempt)
	AtomicConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes an authorization code
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

const (
	// ClientTypeConfidential represents a client that can keep a secret
	ClientTypeConfidential = "confidential"

	// ClientTypePublic represents a client that cannot keep a secret and
	// relies on PKCE instead
	ClientTypePublic = "public"
)

// Client represents a registered relying party.
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash; empty for public clients
	ClientType       string // "public" or "confidential"
	RedirectURIs     []string
	GrantTypes       []string
	ResponseTypes    []string
	ClientName       string
	Scopes           []string
	CreatedAt        time.Time
}

// AuthorizationCode represents an issued authorization code together with
// everything the token endpoint must re-validate at redemption time.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	AccountID           string
	AccountClaims       map[string]any
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Consumed            bool
}
