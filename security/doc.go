// Package security provides supporting security features for the
// authorization flow: audit logging with PII protection, per-identifier
// rate limiting, secure response headers, request ID propagation, and
// clock-skew tolerant expiry checks.
package security
