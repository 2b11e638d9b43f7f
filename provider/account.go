package provider

import (
	"context"
	"fmt"
)

// Account is the authenticated end user an authorization code is issued for.
// Claims are copied into the ID token alongside the standard claims.
type Account struct {
	// ID becomes the ID token's subject
	ID string

	// Claims holds additional profile claims (email, name, ...)
	Claims map[string]any
}

// AccountResolver supplies the account to bind an authorization code to.
// Implementations may consult a session, prompt for login, or return a fixed
// account; the server only requires that a successful resolution yields a
// non-empty account ID.
type AccountResolver interface {
	Resolve(ctx context.Context, clientID string) (*Account, error)
}

// StaticResolver resolves every request to the same account. Intended for
// demos and tests.
type StaticResolver struct {
	Account *Account
}

// Resolve returns the configured account
func (r *StaticResolver) Resolve(_ context.Context, _ string) (*Account, error) {
	if r.Account == nil || r.Account.ID == "" {
		return nil, fmt.Errorf("static resolver has no account configured")
	}
	return r.Account, nil
}
