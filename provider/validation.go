package provider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jondarrer/oidc-provider-test/storage"
)

// validateRedirectURI checks the requested redirect URI against the client's
// registered URIs. Comparison is exact byte equality; no prefix, host, or
// path normalization of any kind. An attacker who can pass a "close enough"
// URI gets the authorization code delivered to them.
func validateRedirectURI(client *storage.Client, redirectURI string) error {
	if redirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}

	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("redirect_uri is not a valid URL")
	}
	if !parsed.IsAbs() {
		return fmt.Errorf("redirect_uri must be absolute")
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain a fragment")
	}

	for _, registered := range client.RedirectURIs {
		if redirectURI == registered {
			return nil
		}
	}
	return fmt.Errorf("redirect_uri is not registered for this client")
}

// validateScopes checks every requested scope against the supported set.
// The scope parameter is a space-delimited list per RFC 6749 section 3.3.
// An empty supported set means no restriction.
func validateScopes(scope string, supported []string) error {
	if scope == "" || len(supported) == 0 {
		return nil
	}
	for _, requested := range strings.Fields(scope) {
		found := false
		for _, s := range supported {
			if requested == s {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported scope: %s", requested)
		}
	}
	return nil
}

// clientAllowsResponseType reports whether the client registration permits
// the response type. An empty registration list permits "code" only.
func clientAllowsResponseType(client *storage.Client, responseType string) bool {
	if len(client.ResponseTypes) == 0 {
		return responseType == "code"
	}
	for _, rt := range client.ResponseTypes {
		if rt == responseType {
			return true
		}
	}
	return false
}

// clientAllowsGrantType reports whether the client registration permits the
// grant type. An empty registration list permits "authorization_code" only.
func clientAllowsGrantType(client *storage.Client, grantType string) bool {
	if len(client.GrantTypes) == 0 {
		return grantType == "authorization_code"
	}
	for _, gt := range client.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}
