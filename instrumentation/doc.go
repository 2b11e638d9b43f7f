// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization flow.
//
// The package wraps the OpenTelemetry API behind a single Instrumentation
// type that components receive via dependency injection. When disabled, all
// instruments are no-ops with negligible overhead, so callers never need to
// guard recording calls.
//
// Scopes follow the package layout: "http", "provider", "storage", and
// "security". Each scope gets its own named meter and tracer.
package instrumentation
