package provider

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	oidcflow "github.com/jondarrer/oidc-provider-test"
	"github.com/jondarrer/oidc-provider-test/pkce"
	"github.com/jondarrer/oidc-provider-test/security"
)

// Endpoint paths served by the Handler, relative to the issuer.
const (
	AuthorizationPath = "/authorize"
	TokenPath         = "/token"
	JWKSPath          = "/jwks"
	MetadataPath      = "/.well-known/openid-configuration"
)

// Handler exposes a Server over HTTP. It owns request parsing, response
// encoding, security headers, request IDs, and rate limiting; all flow
// decisions live in the Server.
type Handler struct {
	server *Server
	logger *slog.Logger
}

// NewHandler creates an HTTP handler for the given server
func NewHandler(server *Server) *Handler {
	return &Handler{
		server: server,
		logger: server.logger,
	}
}

// Routes returns a mux with all provider endpoints mounted, wrapped with
// request ID propagation.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(AuthorizationPath, h.handleAuthorization)
	mux.HandleFunc(TokenPath, h.handleToken)
	mux.HandleFunc(JWKSPath, h.handleJWKS)
	mux.HandleFunc(MetadataPath, h.handleMetadata)
	return security.RequestIDMiddleware(mux)
}

// handleAuthorization serves the authorization endpoint
func (h *Handler) handleAuthorization(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, h.server.Issuer())

	if r.Method != http.MethodGet {
		h.writeError(w, r, oidcflow.NewError(oidcflow.ErrorCodeInvalidRequest, "method not allowed", http.StatusMethodNotAllowed))
		h.recordHTTPRequest(r, AuthorizationPath, http.StatusMethodNotAllowed, start)
		return
	}

	query := r.URL.Query()
	req := &AuthorizationRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		Nonce:               query.Get("nonce"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
		IPAddress:           remoteIP(r),
	}

	if !h.allowRequest(r, req.ClientID) {
		h.writeError(w, r, oidcflow.NewError(oidcflow.ErrorCodeInvalidRequest, "rate limit exceeded", http.StatusTooManyRequests))
		h.recordHTTPRequest(r, AuthorizationPath, http.StatusTooManyRequests, start)
		return
	}

	redirectURL, err := h.server.Authorize(r.Context(), req)
	if err != nil {
		status := h.writeFlowError(w, r, err)
		h.recordHTTPRequest(r, AuthorizationPath, status, start)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
	h.recordHTTPRequest(r, AuthorizationPath, http.StatusFound, start)
}

// handleToken serves the token endpoint
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, h.server.Issuer())

	if r.Method != http.MethodPost {
		h.writeError(w, r, oidcflow.NewError(oidcflow.ErrorCodeInvalidRequest, "method not allowed", http.StatusMethodNotAllowed))
		h.recordHTTPRequest(r, TokenPath, http.StatusMethodNotAllowed, start)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, oidcflow.ErrInvalidRequest("failed to parse request body"))
		h.recordHTTPRequest(r, TokenPath, http.StatusBadRequest, start)
		return
	}

	req := &ExchangeRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		IPAddress:    remoteIP(r),
	}

	// HTTP Basic credentials take precedence over form fields
	// (RFC 6749 section 2.3.1).
	if username, password, ok := r.BasicAuth(); ok {
		req.ClientID = username
		req.ClientSecret = password
	}

	if !h.allowRequest(r, req.ClientID) {
		h.writeError(w, r, oidcflow.NewError(oidcflow.ErrorCodeInvalidRequest, "rate limit exceeded", http.StatusTooManyRequests))
		h.recordHTTPRequest(r, TokenPath, http.StatusTooManyRequests, start)
		return
	}

	tokens, err := h.server.Exchange(r.Context(), req)
	if err != nil {
		status := h.writeFlowError(w, r, err)
		h.recordHTTPRequest(r, TokenPath, status, start)
		return
	}

	h.writeJSON(w, http.StatusOK, tokens)
	h.recordHTTPRequest(r, TokenPath, http.StatusOK, start)
}

// handleJWKS serves the public signing keys
func (h *Handler) handleJWKS(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, h.server.Issuer())

	if r.Method != http.MethodGet {
		h.writeError(w, r, oidcflow.NewError(oidcflow.ErrorCodeInvalidRequest, "method not allowed", http.StatusMethodNotAllowed))
		h.recordHTTPRequest(r, JWKSPath, http.StatusMethodNotAllowed, start)
		return
	}

	// Keys rotate rarely; allow relying parties to cache the set briefly
	w.Header().Set("Cache-Control", "public, max-age=300")
	h.writeJSON(w, http.StatusOK, h.server.Signer().JWKS())
	h.recordHTTPRequest(r, JWKSPath, http.StatusOK, start)
}

// handleMetadata serves OpenID Connect discovery metadata
func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	security.SetSecurityHeaders(w, h.server.Issuer())

	if r.Method != http.MethodGet {
		h.writeError(w, r, oidcflow.NewError(oidcflow.ErrorCodeInvalidRequest, "method not allowed", http.StatusMethodNotAllowed))
		h.recordHTTPRequest(r, MetadataPath, http.StatusMethodNotAllowed, start)
		return
	}

	h.writeJSON(w, http.StatusOK, h.server.Metadata())
	h.recordHTTPRequest(r, MetadataPath, http.StatusOK, start)
}

// Metadata returns the discovery document for this server
func (s *Server) Metadata() *oidcflow.ProviderMetadata {
	issuer := s.config.Issuer
	methods := []string{pkce.MethodS256}
	if s.config.AllowPKCEPlain {
		methods = append(methods, pkce.MethodPlain)
	}
	return &oidcflow.ProviderMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + AuthorizationPath,
		TokenEndpoint:                     issuer + TokenPath,
		JWKSURI:                           issuer + JWKSPath,
		ScopesSupported:                   s.config.SupportedScopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		CodeChallengeMethodsSupported:     methods,
	}
}

// allowRequest applies rate limiting keyed by client ID, falling back to the
// remote IP when the request names no client.
func (h *Handler) allowRequest(r *http.Request, clientID string) bool {
	if h.server.rateLimiter == nil {
		return true
	}
	identifier := clientID
	if identifier == "" {
		identifier = remoteIP(r)
	}
	if h.server.rateLimiter.Allow(identifier) {
		return true
	}

	h.logger.Warn("rate limit exceeded",
		"client_id", clientID,
		"request_id", security.GetRequestID(r.Context()))
	if h.server.auditor != nil {
		h.server.auditor.LogRateLimitExceeded(remoteIP(r), clientID)
	}
	if h.server.inst != nil {
		h.server.inst.Metrics().RecordRateLimitExceeded(r.Context(), "endpoint")
	}
	return false
}

// writeFlowError renders an error returned by the Server and reports the
// HTTP status used.
func (h *Handler) writeFlowError(w http.ResponseWriter, r *http.Request, err error) int {
	var oerr *oidcflow.Error
	if !errors.As(err, &oerr) {
		oerr = oidcflow.ErrServerError("internal error")
	}
	h.writeError(w, r, oerr)
	return oerr.Status
}

// writeError writes an OAuth error response as JSON
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, oerr *oidcflow.Error) {
	if oerr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="token endpoint"`)
	}
	h.logger.Debug("request failed",
		"error", oerr.Code,
		"status", oerr.Status,
		"request_id", security.GetRequestID(r.Context()))
	h.writeJSON(w, oerr.Status, &oidcflow.ErrorResponse{
		Error:            oerr.Code,
		ErrorDescription: oerr.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) recordHTTPRequest(r *http.Request, endpoint string, status int, start time.Time) {
	if h.server.inst == nil {
		return
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	h.server.inst.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint, status, durationMs)
}

// remoteIP extracts the host portion of the request's remote address
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
