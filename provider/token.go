package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	oidcflow "github.com/jondarrer/oidc-provider-test"
	"github.com/jondarrer/oidc-provider-test/instrumentation"
	"github.com/jondarrer/oidc-provider-test/internal/util"
	"github.com/jondarrer/oidc-provider-test/pkce"
	"github.com/jondarrer/oidc-provider-test/security"
	"github.com/jondarrer/oidc-provider-test/storage"
)

// ExchangeRequest carries the parsed parameters of a token request. Client
// credentials may arrive as form fields or HTTP Basic auth; the handler
// normalizes both into ClientID and ClientSecret.
type ExchangeRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	ClientID     string
	ClientSecret string

	// IPAddress is the remote address of the requester, used for audit
	// logging only.
	IPAddress string
}

// Exchange runs the token endpoint flow: it redeems an authorization code
// for an access token and a signed ID token.
//
// All code-related failures after the grant type check return the same
// invalid_grant error. Whether the code was unknown, expired, already
// redeemed, bound to another client or redirect URI, or failed PKCE is
// recorded in logs and audit events but never revealed on the wire, so a
// caller probing with stolen codes learns nothing from the responses.
func (s *Server) Exchange(ctx context.Context, req *ExchangeRequest) (*oidcflow.TokenResponse, error) {
	if s.inst != nil {
		var span trace.Span
		ctx, span = s.inst.Tracer("provider").Start(ctx, "provider.Exchange")
		defer span.End()
	}
	span := trace.SpanFromContext(ctx)

	if req.GrantType != "authorization_code" {
		return nil, oidcflow.ErrUnsupportedGrantType("only authorization_code is supported")
	}
	if req.Code == "" {
		return nil, oidcflow.ErrInvalidRequest("code is required")
	}
	if req.ClientID == "" {
		return nil, oidcflow.ErrInvalidRequest("client_id is required")
	}

	instrumentation.AddFlowAttributes(span, req.ClientID, "", "")

	// Consuming the code is atomic: under concurrent redemption exactly one
	// request observes an unconsumed code. The returned record on the reuse
	// path identifies who the code belonged to for the audit trail.
	code, err := s.flowStore.AtomicConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeConsumed) && code != nil {
			s.logger.Error("authorization code reuse detected",
				"client_id", code.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, codeLogLength))
			if s.auditor != nil {
				s.auditor.LogCodeReuse(code.AccountID, code.ClientID, req.IPAddress)
			}
			if s.inst != nil {
				s.inst.Metrics().RecordCodeReuseDetected(ctx)
			}
			// Revoke the code outright so the window for further probing
			// is as small as possible.
			_ = s.flowStore.DeleteAuthorizationCode(ctx, req.Code)
		} else {
			s.logger.Warn("token request with unredeemable code",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, codeLogLength),
				"error", err)
		}
		return nil, oidcflow.ErrInvalidGrant("invalid authorization code")
	}

	// The code is burnt from here on regardless of how this request ends.
	defer func() {
		_ = s.flowStore.DeleteAuthorizationCode(ctx, req.Code)
	}()

	if security.IsExpiredWithGracePeriod(code.ExpiresAt, time.Duration(s.config.ClockSkewGracePeriod)*time.Second) {
		s.logger.Warn("token request with expired code", "client_id", req.ClientID)
		return nil, oidcflow.ErrInvalidGrant("invalid authorization code")
	}

	if code.ClientID != req.ClientID {
		s.logger.Warn("token request client mismatch",
			"client_id", req.ClientID,
			"code_client_id", code.ClientID)
		if s.auditor != nil {
			s.auditor.LogAuthFailure(code.AccountID, req.ClientID, req.IPAddress, "code issued to another client")
		}
		return nil, oidcflow.ErrInvalidGrant("invalid authorization code")
	}

	if code.RedirectURI != req.RedirectURI {
		s.logger.Warn("token request redirect_uri mismatch", "client_id", req.ClientID)
		if s.auditor != nil {
			s.auditor.LogAuthFailure(code.AccountID, req.ClientID, req.IPAddress, "redirect_uri mismatch")
		}
		return nil, oidcflow.ErrInvalidGrant("invalid authorization code")
	}

	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			if s.auditor != nil {
				s.auditor.LogInvalidPKCE(code.AccountID, req.ClientID, req.IPAddress)
			}
			return nil, oidcflow.ErrInvalidGrant("invalid authorization code")
		}
		if err := pkce.Verify(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod); err != nil {
			s.logger.Warn("PKCE verification failed",
				"client_id", req.ClientID,
				"method", code.CodeChallengeMethod)
			if s.auditor != nil {
				s.auditor.LogInvalidPKCE(code.AccountID, req.ClientID, req.IPAddress)
			}
			if s.inst != nil {
				s.inst.Metrics().RecordPKCEVerificationFailed(ctx, code.CodeChallengeMethod)
			}
			return nil, oidcflow.ErrInvalidGrant("invalid authorization code")
		}
		instrumentation.AddPKCEAttributes(span, code.CodeChallengeMethod)
	} else if req.CodeVerifier != "" {
		return nil, oidcflow.ErrInvalidRequest("code_verifier provided but no code_challenge was issued")
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, oidcflow.ErrInvalidClient("client authentication failed")
		}
		instrumentation.RecordError(span, err)
		return nil, oidcflow.ErrServerError("failed to look up client")
	}
	if !clientAllowsGrantType(client, req.GrantType) {
		return nil, oidcflow.NewError(oidcflow.ErrorCodeUnauthorizedClient, "client is not authorized for this grant_type", http.StatusBadRequest)
	}
	if client.ClientType == storage.ClientTypeConfidential {
		if err := s.clientStore.ValidateClientSecret(ctx, req.ClientID, req.ClientSecret); err != nil {
			s.logger.Warn("client authentication failed", "client_id", req.ClientID)
			if s.auditor != nil {
				s.auditor.LogAuthFailure(code.AccountID, req.ClientID, req.IPAddress, "client authentication failed")
			}
			return nil, oidcflow.ErrInvalidClient("client authentication failed")
		}
	}

	now := time.Now()
	idToken, err := s.signer.SignIDToken(jwt.Claims{
		Issuer:   s.config.Issuer,
		Subject:  code.AccountID,
		Audience: jwt.Audience{req.ClientID},
		Expiry:   jwt.NewNumericDate(now.Add(time.Duration(s.config.IDTokenTTL) * time.Second)),
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}, idTokenExtraClaims(code))
	if err != nil {
		s.logger.Error("failed to sign ID token", "client_id", req.ClientID, "error", err)
		instrumentation.RecordError(span, err)
		return nil, oidcflow.ErrServerError("failed to issue tokens")
	}

	accessToken := oauth2.GenerateVerifier()

	s.logger.Info("tokens issued",
		"client_id", req.ClientID,
		"scope", code.Scope)
	if s.auditor != nil {
		s.auditor.LogTokenIssued(code.AccountID, req.ClientID, req.IPAddress, code.Scope)
	}
	if s.inst != nil {
		s.inst.Metrics().RecordCodeExchange(ctx, req.ClientID, code.CodeChallengeMethod)
	}
	instrumentation.SetSpanSuccess(span)

	return &oidcflow.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   s.config.AccessTokenTTL,
		IDToken:     idToken,
		Scope:       code.Scope,
	}, nil
}

// idTokenExtraClaims collects the non-standard ID token claims for a
// redeemed code: the account's profile claims plus the nonce that binds the
// token to the authorization request that produced it.
func idTokenExtraClaims(code *storage.AuthorizationCode) map[string]any {
	extra := make(map[string]any, len(code.AccountClaims)+1)
	for name, value := range code.AccountClaims {
		extra[name] = value
	}
	if code.Nonce != "" {
		extra["nonce"] = code.Nonce
	}
	return extra
}
