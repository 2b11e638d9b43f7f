package provider

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/jondarrer/oidc-provider-test/instrumentation"
	"github.com/jondarrer/oidc-provider-test/security"
	"github.com/jondarrer/oidc-provider-test/storage"
)

// Server implements the authorization and token endpoints of the provider.
// It contains the flow logic only; HTTP parsing and encoding live in Handler.
type Server struct {
	clientStore storage.ClientStore
	flowStore   storage.FlowStore
	signer      *Signer
	resolver    AccountResolver
	config      *Config
	logger      *slog.Logger

	auditor     *security.Auditor
	rateLimiter *security.RateLimiter
	inst        *instrumentation.Instrumentation
}

// New creates a Server. The config is validated and secure defaults applied.
func New(clientStore storage.ClientStore, flowStore storage.FlowStore, signer *Signer, resolver AccountResolver, config *Config, logger *slog.Logger) (*Server, error) {
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("account resolver is required")
	}
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	applySecureDefaults(config, logger)

	return &Server{
		clientStore: clientStore,
		flowStore:   flowStore,
		signer:      signer,
		resolver:    resolver,
		config:      config,
		logger:      logger,
	}, nil
}

// SetAuditor enables security audit logging
func (s *Server) SetAuditor(auditor *security.Auditor) {
	s.auditor = auditor
}

// SetRateLimiter enables per-client rate limiting at the endpoints
func (s *Server) SetRateLimiter(limiter *security.RateLimiter) {
	s.rateLimiter = limiter
}

// SetInstrumentation enables metrics and tracing
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
}

// Issuer returns the configured issuer identifier
func (s *Server) Issuer() string {
	return s.config.Issuer
}

// Signer returns the ID token signer, for serving the JWKS
func (s *Server) Signer() *Signer {
	return s.signer
}

// generateAuthorizationCode mints an opaque single-use code with at least
// 256 bits of entropy.
func generateAuthorizationCode() string {
	return oauth2.GenerateVerifier()
}
