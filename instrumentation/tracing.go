package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// SECURITY WARNING: Never put actual sensitive values (authorization codes,
// tokens, verifiers, client secrets) in traces or metrics. Only record
// metadata such as PKCE methods, expiry times, and validation results.
// Traces are persisted, replicated, and visible to wider audiences than the
// systems they describe.
const (
	// Flow attributes - metadata only
	AttrClientID     = "oidc.client_id"     // Client identifier (non-secret)
	AttrAccountID    = "oidc.account_id"    // Account identifier (non-secret)
	AttrScope        = "oidc.scope"         // Requested scopes
	AttrPKCEMethod   = "oidc.pkce.method"   // PKCE method used (S256, plain)
	AttrCodeReuse    = "oidc.code.reuse"    // Whether code reuse was detected (boolean)
	AttrGrantType    = "oidc.grant_type"    // Grant type
	AttrResponseType = "oidc.response_type" // Response type
	AttrClientType   = "oidc.client_type"   // Client type (public/confidential)
	AttrRedirectURI  = "oidc.redirect_uri"  // Redirect URI
	AttrError        = "oidc.error"         // Error code

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"

	// HTTP attributes
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds common flow attributes to a span (nil-safe)
func AddFlowAttributes(span trace.Span, clientID, accountID, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if accountID != "" {
		SetSpanAttributes(span, attribute.String(AttrAccountID, accountID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddPKCEAttributes adds PKCE-related attributes to a span (nil-safe)
func AddPKCEAttributes(span trace.Span, method string) {
	if method != "" {
		SetSpanAttributes(span, attribute.String(AttrPKCEMethod, method))
	}
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}
