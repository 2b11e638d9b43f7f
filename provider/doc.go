// Package provider implements the authorization server side of the
// Authorization Code flow with PKCE: the authorization endpoint that issues
// single-use codes, the token endpoint that redeems them for an access token
// and a signed ID token, and the discovery and JWKS documents that let
// relying parties verify what it issues.
//
// Server holds the flow logic free of HTTP concerns; Handler exposes it over
// net/http. Account resolution is pluggable via AccountResolver, so the core
// never assumes any particular session or login mechanism.
package provider
