package provider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	jose "github.com/go-jose/go-jose/v4"

	oidcflow "github.com/jondarrer/oidc-provider-test"
	"github.com/jondarrer/oidc-provider-test/internal/testutil"
	"github.com/jondarrer/oidc-provider-test/security"
)

func newTestHandler(t *testing.T) (*Handler, *Server) {
	t.Helper()
	srv, _, _ := newTestProvider(t, testConfig())
	return NewHandler(srv), srv
}

func authorizeQuery(challenge string) url.Values {
	return url.Values{
		"client_id":             {"test-client-id"},
		"redirect_uri":          {"https://example.com/callback"},
		"response_type":         {"code"},
		"scope":                 {"openid email"},
		"state":                 {"s1"},
		"nonce":                 {"n1"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
}

func TestHandler_Authorization(t *testing.T) {
	handler, _ := newTestHandler(t)
	routes := handler.Routes()

	challenge, _ := testutil.GeneratePKCEPair()
	req := httptest.NewRequest(http.MethodGet, AuthorizationPath+"?"+authorizeQuery(challenge).Encode(), nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusFound, rec.Body.String())
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location header does not parse: %v", err)
	}
	if location.Query().Get("code") == "" {
		t.Errorf("Location %q is missing the code parameter", location)
	}
	if got := location.Query().Get("state"); got != "s1" {
		t.Errorf("state = %q, want %q", got, "s1")
	}
}

func TestHandler_Authorization_ErrorRedirect(t *testing.T) {
	handler, _ := newTestHandler(t)
	routes := handler.Routes()

	challenge, _ := testutil.GeneratePKCEPair()
	query := authorizeQuery(challenge)
	query.Set("response_type", "token")

	req := httptest.NewRequest(http.MethodGet, AuthorizationPath+"?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	location, _ := url.Parse(rec.Header().Get("Location"))
	if got := location.Query().Get("error"); got != oidcflow.ErrorCodeUnsupportedResponseType {
		t.Errorf("error = %q, want %q", got, oidcflow.ErrorCodeUnsupportedResponseType)
	}
}

func TestHandler_Authorization_DirectError(t *testing.T) {
	handler, _ := newTestHandler(t)
	routes := handler.Routes()

	challenge, _ := testutil.GeneratePKCEPair()
	query := authorizeQuery(challenge)
	query.Set("redirect_uri", "https://attacker.example.com/callback")

	req := httptest.NewRequest(http.MethodGet, AuthorizationPath+"?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Errorf("unexpected redirect to %q", loc)
	}

	var body oidcflow.ErrorResponse
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	if body.Error != oidcflow.ErrorCodeInvalidRedirectURI {
		t.Errorf("error = %q, want %q", body.Error, oidcflow.ErrorCodeInvalidRedirectURI)
	}
}

func TestHandler_Token(t *testing.T) {
	handler, srv := newTestHandler(t)
	routes := handler.Routes()
	code, verifier := issueCode(t, srv)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://example.com/callback"},
		"code_verifier": {verifier},
		"client_id":     {"test-client-id"},
		"client_secret": {"test"},
	}
	req := httptest.NewRequest(http.MethodPost, TokenPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}
	if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	var tokens oidcflow.TokenResponse
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	if tokens.AccessToken == "" || tokens.IDToken == "" {
		t.Errorf("incomplete token response: %+v", tokens)
	}
}

func TestHandler_Token_BasicAuth(t *testing.T) {
	handler, srv := newTestHandler(t)
	routes := handler.Routes()
	code, verifier := issueCode(t, srv)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://example.com/callback"},
		"code_verifier": {verifier},
	}
	req := httptest.NewRequest(http.MethodPost, TokenPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("test-client-id", "test")
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestHandler_Token_InvalidClientGets401(t *testing.T) {
	handler, srv := newTestHandler(t)
	routes := handler.Routes()
	code, verifier := issueCode(t, srv)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://example.com/callback"},
		"code_verifier": {verifier},
	}
	req := httptest.NewRequest(http.MethodPost, TokenPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("test-client-id", "wrong")
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 response is missing WWW-Authenticate")
	}
}

func TestHandler_Metadata(t *testing.T) {
	handler, _ := newTestHandler(t)
	routes := handler.Routes()

	req := httptest.NewRequest(http.MethodGet, MetadataPath, nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var metadata oidcflow.ProviderMetadata
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &metadata))

	if metadata.Issuer != "https://op.example.com" {
		t.Errorf("issuer = %q, want %q", metadata.Issuer, "https://op.example.com")
	}
	if metadata.AuthorizationEndpoint != "https://op.example.com/authorize" {
		t.Errorf("authorization_endpoint = %q", metadata.AuthorizationEndpoint)
	}
	if metadata.TokenEndpoint != "https://op.example.com/token" {
		t.Errorf("token_endpoint = %q", metadata.TokenEndpoint)
	}
	if metadata.JWKSURI != "https://op.example.com/jwks" {
		t.Errorf("jwks_uri = %q", metadata.JWKSURI)
	}
	if len(metadata.CodeChallengeMethodsSupported) != 1 || metadata.CodeChallengeMethodsSupported[0] != "S256" {
		t.Errorf("code_challenge_methods_supported = %v, want [S256]", metadata.CodeChallengeMethodsSupported)
	}
}

func TestHandler_JWKS(t *testing.T) {
	handler, srv := newTestHandler(t)
	routes := handler.Routes()

	req := httptest.NewRequest(http.MethodGet, JWKSPath, nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var jwks jose.JSONWebKeySet
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	if len(jwks.Keys) != 1 {
		t.Fatalf("JWKS has %d keys, want 1", len(jwks.Keys))
	}
	if jwks.Keys[0].KeyID != srv.Signer().KeyID() {
		t.Errorf("kid = %q, want %q", jwks.Keys[0].KeyID, srv.Signer().KeyID())
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(t)
	routes := handler.Routes()

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, AuthorizationPath},
		{http.MethodGet, TokenPath},
		{http.MethodPost, JWKSPath},
		{http.MethodPost, MetadataPath},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, http.StatusMethodNotAllowed)
		}
	}
}

func TestHandler_SecurityHeaders(t *testing.T) {
	handler, _ := newTestHandler(t)
	routes := handler.Routes()

	req := httptest.NewRequest(http.MethodGet, MetadataPath, nil)
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	headers := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	// Issuer is https, so HSTS must be present
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("Strict-Transport-Security header missing for https issuer")
	}
	if rec.Header().Get(security.RequestIDHeader) == "" {
		t.Error("response is missing a request ID")
	}
}

func TestHandler_RateLimit(t *testing.T) {
	handler, srv := newTestHandler(t)
	limiter := security.NewRateLimiter(1, 1, testLogger())
	t.Cleanup(limiter.Stop)
	srv.SetRateLimiter(limiter)
	routes := handler.Routes()

	challenge, _ := testutil.GeneratePKCEPair()
	target := AuthorizationPath + "?" + authorizeQuery(challenge).Encode()

	first := httptest.NewRecorder()
	routes.ServeHTTP(first, httptest.NewRequest(http.MethodGet, target, nil))
	if first.Code != http.StatusFound {
		t.Fatalf("first request status = %d, want %d", first.Code, http.StatusFound)
	}

	second := httptest.NewRecorder()
	routes.ServeHTTP(second, httptest.NewRequest(http.MethodGet, target, nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
}
