package instrumentation

import (
	"context"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.config.ServiceName != "oidc-provider" {
		t.Errorf("ServiceName = %q, want default", inst.config.ServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
	if inst.Metrics() == nil {
		t.Error("Metrics() should not be nil")
	}
}

func TestNew_Disabled(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Recording against no-op providers must not panic
	ctx := context.Background()
	inst.Metrics().RecordHTTPRequest(ctx, "GET", "/authorize", 200, 1.5)
	inst.Metrics().RecordAuthorizationRequest(ctx, "client-1", true)
	inst.Metrics().RecordCodeIssued(ctx, "client-1")
	inst.Metrics().RecordCodeExchange(ctx, "client-1", "S256")
	inst.Metrics().RecordCodeReuseDetected(ctx)
	inst.Metrics().RecordStorageOperation(ctx, "save_client", "success", 0.2)
}

func TestMeterAndTracer(t *testing.T) {
	inst, err := New(Config{ServiceName: "test-service", Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.Meter("storage") == nil {
		t.Error("Meter() returned nil")
	}
	if inst.Tracer("provider") == nil {
		t.Error("Tracer() returned nil")
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 3 },
		func() int64 { return 7 },
	)
	if err != nil {
		t.Errorf("RegisterStorageSizeCallbacks() error = %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
