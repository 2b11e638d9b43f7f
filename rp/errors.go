package rp

import "errors"

var (
	// ErrStateMismatch indicates the callback's state does not match any
	// pending authorization request. Either the response is forged (CSRF)
	// or the request was already completed.
	ErrStateMismatch = errors.New("rp: state does not match a pending authorization request")

	// ErrExpiredRequest indicates the pending request outlived its TTL
	// before the callback arrived.
	ErrExpiredRequest = errors.New("rp: authorization request expired")

	// ErrProviderError indicates the provider redirected back with an
	// error parameter instead of a code.
	ErrProviderError = errors.New("rp: provider returned an error")

	// ErrMissingCode indicates a callback with neither a code nor an error
	ErrMissingCode = errors.New("rp: callback is missing the code parameter")

	// ErrMissingIDToken indicates a token response without an id_token
	ErrMissingIDToken = errors.New("rp: token response is missing an id_token")

	// ErrInvalidIDToken indicates the id_token failed verification
	// (signature, issuer, audience, or expiry).
	ErrInvalidIDToken = errors.New("rp: id_token verification failed")

	// ErrNonceMismatch indicates the id_token's nonce does not match the
	// one sent with the authorization request, which suggests a replayed
	// token.
	ErrNonceMismatch = errors.New("rp: id_token nonce mismatch")
)
