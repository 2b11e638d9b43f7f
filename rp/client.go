// Package rp implements the relying party side of the OpenID Connect
// authorization code flow with PKCE: building authorization requests,
// correlating callbacks by state, exchanging codes, and verifying the
// resulting ID tokens against the provider's published keys.
package rp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Config holds relying party configuration
type Config struct {
	// IssuerURL is the provider's issuer identifier. Endpoints and signing
	// keys are discovered from it.
	IssuerURL string

	// ClientID is the identifier registered with the provider
	ClientID string

	// ClientSecret authenticates the client at the token endpoint.
	// Leave empty for public clients; PKCE protects the exchange.
	ClientSecret string

	// RedirectURL is the callback URL, byte-identical to the one
	// registered with the provider
	RedirectURL string

	// Scopes to request. "openid" is always included.
	Scopes []string

	// RequestTTL bounds how long a login attempt stays redeemable.
	// Default: DefaultRequestTTL.
	RequestTTL time.Duration

	// HTTPClient is used for discovery, JWKS fetches, and the token
	// exchange. Default: http.DefaultClient.
	HTTPClient *http.Client

	// Logger for flow events. Default: slog.Default().
	Logger *slog.Logger
}

// Client is a relying party bound to one provider and one registration
type Client struct {
	oauth      oauth2.Config
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	requests   *RequestStore
	requestTTL time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New discovers the provider's endpoints and signing keys and returns a
// ready relying party client.
func New(ctx context.Context, config Config) (*Client, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if config.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, config.HTTPClient)
	}
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover provider %s: %w", config.IssuerURL, err)
	}

	scopes := config.Scopes
	if !containsScope(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
		provider:   provider,
		verifier:   provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		requests:   NewRequestStore(),
		requestTTL: config.RequestTTL,
		httpClient: config.HTTPClient,
		logger:     logger,
	}, nil
}

// Begin starts a login attempt: it generates a fresh request, registers it
// as pending, and returns the authorization URL to redirect the user to.
func (c *Client) Begin() (*Request, string, error) {
	req := NewRequest(c.requestTTL)
	c.requests.Add(req)

	c.logger.Debug("authorization request started", "state", req.State)
	return req, c.AuthCodeURL(req), nil
}

// AuthCodeURL builds the authorization URL for a request, carrying the
// state, the nonce, and the S256 challenge derived from the verifier. The
// verifier itself stays local.
func (c *Client) AuthCodeURL(req *Request) string {
	return c.oauth.AuthCodeURL(req.State,
		oauth2.S256ChallengeOption(req.Verifier),
		oidc.Nonce(req.Nonce),
	)
}

// Identity is the verified outcome of a completed flow
type Identity struct {
	// Subject is the provider-scoped account identifier from the ID token
	Subject string

	// Token carries the access token and raw token endpoint response
	Token *oauth2.Token

	// IDToken is the verified ID token; use Claims to decode profile data
	IDToken *oidc.IDToken
}

// Claims unmarshals the ID token claims into v
func (i *Identity) Claims(v any) error {
	return i.IDToken.Claims(v)
}

// CallbackParams are the query parameters the provider redirects back with
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// CallbackParamsFromRequest extracts callback parameters from an HTTP request
func CallbackParamsFromRequest(r *http.Request) CallbackParams {
	query := r.URL.Query()
	return CallbackParams{
		State:            query.Get("state"),
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
}

// Callback completes a login attempt. It consumes the pending request for
// the callback's state, exchanges the code with the PKCE verifier, verifies
// the ID token signature and claims against the discovered keys, and checks
// the nonce. The pending request is consumed even on failure, so a given
// state never completes twice.
func (c *Client) Callback(ctx context.Context, params CallbackParams) (*Identity, error) {
	req, err := c.requests.Take(params.State)
	if err != nil {
		c.logger.Warn("callback rejected", "error", err)
		return nil, err
	}

	if params.Error != "" {
		c.logger.Warn("provider returned an error",
			"error", params.Error,
			"description", params.ErrorDescription)
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderError, params.Error, params.ErrorDescription)
	}
	if params.Code == "" {
		return nil, ErrMissingCode
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	token, err := c.oauth.Exchange(ctx, params.Code, oauth2.VerifierOption(req.Verifier))
	if err != nil {
		c.logger.Warn("code exchange failed", "error", err)
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, ErrMissingIDToken
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		c.logger.Warn("id_token verification failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	if subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(req.Nonce)) != 1 {
		c.logger.Warn("id_token nonce mismatch")
		return nil, ErrNonceMismatch
	}

	c.logger.Debug("login completed", "subject_present", idToken.Subject != "")
	return &Identity{
		Subject: idToken.Subject,
		Token:   token,
		IDToken: idToken,
	}, nil
}

// PendingRequests reports the number of login attempts awaiting a callback
func (c *Client) PendingRequests() int {
	return c.requests.Len()
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
