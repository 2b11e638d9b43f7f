package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	oidcflow "github.com/jondarrer/oidc-provider-test"
	"github.com/jondarrer/oidc-provider-test/instrumentation"
	"github.com/jondarrer/oidc-provider-test/internal/util"
	"github.com/jondarrer/oidc-provider-test/pkce"
	"github.com/jondarrer/oidc-provider-test/storage"
)

// AuthorizationRequest carries the parsed parameters of an authorization
// request. The handler fills it from the query string; callers embedding the
// Server directly can construct it themselves.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string

	// IPAddress is the remote address of the requester, used for audit
	// logging only.
	IPAddress string
}

// Authorize runs the authorization endpoint flow. On success it returns the
// redirect URL carrying the authorization code and the client's state.
//
// Errors split two ways. Failures detected before the redirect URI is
// validated (unknown client, unregistered redirect URI) return a non-nil
// *oidcflow.Error and no redirect: sending a user to an unvalidated URI is
// an open redirect. Failures detected after that point return a nil error
// and a redirect URL carrying error and error_description parameters, so
// the relying party learns the outcome.
func (s *Server) Authorize(ctx context.Context, req *AuthorizationRequest) (string, error) {
	if s.inst != nil {
		var span trace.Span
		ctx, span = s.inst.Tracer("provider").Start(ctx, "provider.Authorize")
		defer span.End()
	}
	span := trace.SpanFromContext(ctx)

	if req.ClientID == "" {
		return "", oidcflow.ErrInvalidRequest("client_id is required")
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.logger.Warn("authorization request from unknown client", "client_id", req.ClientID)
			if s.auditor != nil {
				s.auditor.LogAuthFailure("", req.ClientID, req.IPAddress, "unknown client")
			}
			s.recordAuthorizationRequest(ctx, req.ClientID, false)
			return "", oidcflow.ErrInvalidClient("unknown client")
		}
		instrumentation.RecordError(span, err)
		return "", oidcflow.ErrServerError("failed to look up client")
	}

	if err := validateRedirectURI(client, req.RedirectURI); err != nil {
		s.logger.Warn("authorization request with invalid redirect URI",
			"client_id", req.ClientID,
			"error", err)
		if s.auditor != nil {
			s.auditor.LogAuthFailure("", req.ClientID, req.IPAddress, "invalid redirect_uri")
		}
		s.recordAuthorizationRequest(ctx, req.ClientID, false)
		return "", oidcflow.ErrInvalidRedirectURI(err.Error())
	}

	// The redirect URI is registered for this client: from here on,
	// failures are reported by redirecting with error parameters.

	if s.auditor != nil {
		s.auditor.LogAuthorizationRequested(req.ClientID, req.IPAddress, req.Scope)
	}
	instrumentation.AddFlowAttributes(span, req.ClientID, "", req.Scope)

	if req.ResponseType != "code" {
		return s.errorRedirect(ctx, req,
			oidcflow.ErrUnsupportedResponseType(fmt.Sprintf("unsupported response_type: %s", req.ResponseType)))
	}
	if !clientAllowsResponseType(client, req.ResponseType) {
		return s.errorRedirect(ctx, req,
			oidcflow.NewError(oidcflow.ErrorCodeUnauthorizedClient, "client is not authorized for this response_type", http.StatusBadRequest))
	}

	if err := validateScopes(req.Scope, s.config.SupportedScopes); err != nil {
		return s.errorRedirect(ctx, req, oidcflow.ErrInvalidScope(err.Error()))
	}

	challengeMethod := req.CodeChallengeMethod
	if req.CodeChallenge == "" {
		if s.config.RequirePKCE {
			return s.errorRedirect(ctx, req, oidcflow.ErrInvalidRequest("code_challenge is required"))
		}
		challengeMethod = ""
	} else {
		if challengeMethod == "" {
			// RFC 7636 section 4.3: a missing method means plain
			challengeMethod = pkce.MethodPlain
		}
		if !pkce.SupportedMethod(challengeMethod) {
			return s.errorRedirect(ctx, req,
				oidcflow.ErrInvalidRequest(fmt.Sprintf("unsupported code_challenge_method: %s", challengeMethod)))
		}
		if challengeMethod == pkce.MethodPlain && !s.config.AllowPKCEPlain {
			return s.errorRedirect(ctx, req,
				oidcflow.ErrInvalidRequest("plain code_challenge_method is not allowed"))
		}
		if len(req.CodeChallenge) < pkce.MinVerifierLength || len(req.CodeChallenge) > pkce.MaxVerifierLength {
			return s.errorRedirect(ctx, req, oidcflow.ErrInvalidRequest("invalid code_challenge"))
		}
		instrumentation.AddPKCEAttributes(span, challengeMethod)
	}

	account, err := s.resolver.Resolve(ctx, req.ClientID)
	if err != nil {
		s.logger.Error("account resolution failed", "client_id", req.ClientID, "error", err)
		if s.auditor != nil {
			s.auditor.LogAuthFailure("", req.ClientID, req.IPAddress, "account resolution failed")
		}
		instrumentation.RecordError(span, err)
		// Resolution failures are transient (no session yet, backend down)
		// and safe for the relying party to retry.
		return s.errorRedirect(ctx, req, oidcflow.ErrServerError("account resolution failed"))
	}

	now := time.Now()
	code := generateAuthorizationCode()
	record := &storage.AuthorizationCode{
		Code:                code,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: challengeMethod,
		AccountID:           account.ID,
		AccountClaims:       account.Claims,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.config.AuthorizationCodeTTL) * time.Second),
	}

	if err := s.flowStore.SaveAuthorizationCode(ctx, record); err != nil {
		s.logger.Error("failed to save authorization code", "client_id", req.ClientID, "error", err)
		instrumentation.RecordError(span, err)
		return s.errorRedirect(ctx, req, oidcflow.ErrServerError("failed to issue authorization code"))
	}

	s.logger.Info("authorization code issued",
		"client_id", req.ClientID,
		"code_prefix", util.SafeTruncate(code, codeLogLength),
		"pkce_method", challengeMethod)
	if s.auditor != nil {
		s.auditor.LogCodeIssued(account.ID, req.ClientID, req.IPAddress)
	}
	if s.inst != nil {
		s.inst.Metrics().RecordCodeIssued(ctx, req.ClientID)
	}
	s.recordAuthorizationRequest(ctx, req.ClientID, true)
	instrumentation.SetSpanSuccess(span)

	return buildRedirectURL(req.RedirectURI, map[string]string{
		"code":  code,
		"state": req.State,
	})
}

// errorRedirect builds a redirect to the already-validated redirect URI
// carrying the OAuth error parameters. The client's state is echoed back
// when present.
func (s *Server) errorRedirect(ctx context.Context, req *AuthorizationRequest, oerr *oidcflow.Error) (string, error) {
	s.logger.Warn("authorization request rejected",
		"client_id", req.ClientID,
		"error", oerr.Code,
		"description", oerr.Description)
	s.recordAuthorizationRequest(ctx, req.ClientID, false)

	return buildRedirectURL(req.RedirectURI, map[string]string{
		"error":             oerr.Code,
		"error_description": oerr.Description,
		"state":             req.State,
	})
}

func (s *Server) recordAuthorizationRequest(ctx context.Context, clientID string, success bool) {
	if s.inst != nil {
		s.inst.Metrics().RecordAuthorizationRequest(ctx, clientID, success)
	}
}

// buildRedirectURL appends the given parameters to the redirect URI's query
// string, preserving any query parameters the client registered.
func buildRedirectURL(redirectURI string, params map[string]string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", oidcflow.ErrServerError("failed to build redirect URL")
	}
	q := u.Query()
	for key, value := range params {
		if value != "" {
			q.Set(key, value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// codeLogLength bounds how much of an authorization code appears in logs
const codeLogLength = 8
