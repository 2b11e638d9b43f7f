// Package oidcflow implements the OpenID Connect Authorization Code flow
// with PKCE for both sides of the exchange: an authorization server (the
// Provider, see the provider subpackage) and a relying party (the Client,
// see the rp subpackage).
//
// The root package holds the wire-level types shared by both sides: the
// token response, the provider metadata served at the discovery endpoint,
// and the OAuth 2.0 error vocabulary.
//
// Subpackages:
//   - pkce: verifier/challenge generation and constant-time verification
//   - provider: authorization endpoint, token endpoint, ID token signing
//   - rp: authorization request builder and callback handling
//   - storage: persistence interfaces; storage/memory is the in-memory store
//   - security: audit logging, rate limiting, clock-skew-aware expiry
//   - instrumentation: OpenTelemetry tracing and metrics
package oidcflow
