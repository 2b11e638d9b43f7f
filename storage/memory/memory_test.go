package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jondarrer/oidc-provider-test/internal/testutil"
	"github.com/jondarrer/oidc-provider-test/storage"
)

// ============================================================
// ClientStore Tests
// ============================================================

func TestStore_SaveClient(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	client := testutil.GenerateTestClient()

	err := store.SaveClient(ctx, client)
	if err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := store.GetClient(ctx, client.ClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}

	if got.ClientID != client.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, client.ClientID)
	}
}

func TestStore_SaveClient_Nil(t *testing.T) {
	store := New()
	defer store.Stop()

	err := store.SaveClient(context.Background(), nil)
	if err == nil {
		t.Error("SaveClient() with nil client should return error")
	}
}

func TestStore_SaveClient_EmptyID(t *testing.T) {
	store := New()
	defer store.Stop()

	client := testutil.GenerateTestClient()
	client.ClientID = ""

	err := store.SaveClient(context.Background(), client)
	if err == nil {
		t.Error("SaveClient() with empty client ID should return error")
	}
}

func TestStore_GetClient_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetClient(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
}

func TestStore_ValidateClientSecret(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	secret := "super-secret-value"
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error = %v", err)
	}

	client := testutil.GenerateTestClient()
	client.ClientType = "confidential"
	client.ClientSecretHash = string(hash)

	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	// Correct secret
	if err := store.ValidateClientSecret(ctx, client.ClientID, secret); err != nil {
		t.Errorf("ValidateClientSecret() with correct secret error = %v", err)
	}

	// Wrong secret
	if err := store.ValidateClientSecret(ctx, client.ClientID, "wrong-secret"); err == nil {
		t.Error("ValidateClientSecret() with wrong secret should return error")
	}
}

func TestStore_ValidateClientSecret_FixtureClient(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	// The fixture's stored hash must actually match its plaintext secret,
	// otherwise every confidential-client exchange built on it fails.
	client := testutil.GenerateTestClient()
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	if err := store.ValidateClientSecret(ctx, client.ClientID, testutil.TestClientSecret); err != nil {
		t.Errorf("ValidateClientSecret() with fixture secret error = %v", err)
	}
}

func TestStore_ValidateClientSecret_PublicClient(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	client.ClientType = "public"
	client.ClientSecretHash = ""

	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	if err := store.ValidateClientSecret(ctx, client.ClientID, ""); err != nil {
		t.Errorf("ValidateClientSecret() for public client error = %v", err)
	}
}

func TestStore_ValidateClientSecret_ClientNotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	err := store.ValidateClientSecret(context.Background(), "nonexistent", "any-secret")
	if err == nil {
		t.Error("ValidateClientSecret() for nonexistent client should return error")
	}
}

func TestStore_ListClients(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	for _, id := range []string{"client-a", "client-b", "client-c"} {
		client := testutil.GenerateTestClient()
		client.ClientID = id
		if err := store.SaveClient(ctx, client); err != nil {
			t.Fatalf("SaveClient(%q) error = %v", id, err)
		}
	}

	clients, err := store.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}

	if len(clients) != 3 {
		t.Errorf("ListClients() returned %d clients, want 3", len(clients))
	}
}

// ============================================================
// FlowStore Tests
// ============================================================

func TestStore_SaveAuthorizationCode(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()

	err := store.SaveAuthorizationCode(ctx, code)
	if err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := store.GetAuthorizationCode(ctx, code.Code)
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}

	if got.Code != code.Code {
		t.Errorf("Code = %q, want %q", got.Code, code.Code)
	}
}

func TestStore_GetAuthorizationCode_Expired(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	code.ExpiresAt = time.Now().Add(-1 * time.Minute)

	if err := store.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	_, err := store.GetAuthorizationCode(ctx, code.Code)
	if !errors.Is(err, storage.ErrExpired) {
		t.Errorf("GetAuthorizationCode() error = %v, want ErrExpired", err)
	}
}

func TestStore_GetAuthorizationCode_ReturnsCopy(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	if err := store.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := store.GetAuthorizationCode(ctx, code.Code)
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}

	// Mutating the returned record must not affect the stored one
	got.Consumed = true

	again, err := store.GetAuthorizationCode(ctx, code.Code)
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if again.Consumed {
		t.Error("stored code was mutated through the returned copy")
	}
}

func TestStore_AtomicConsumeAuthorizationCode(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	if err := store.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	// First consume succeeds and returns the record
	got, err := store.AtomicConsumeAuthorizationCode(ctx, code.Code)
	if err != nil {
		t.Fatalf("AtomicConsumeAuthorizationCode() error = %v", err)
	}
	if got.ClientID != code.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, code.ClientID)
	}

	// Second consume fails with the consumed sentinel but still returns the
	// record so the caller can audit the reuse attempt
	reused, err := store.AtomicConsumeAuthorizationCode(ctx, code.Code)
	if !errors.Is(err, storage.ErrAuthorizationCodeConsumed) {
		t.Errorf("second consume error = %v, want ErrAuthorizationCodeConsumed", err)
	}
	if reused == nil {
		t.Error("second consume should return the code record for auditing")
	}
}

func TestStore_AtomicConsumeAuthorizationCode_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	got, err := store.AtomicConsumeAuthorizationCode(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("AtomicConsumeAuthorizationCode() error = %v, want ErrAuthorizationCodeNotFound", err)
	}
	if got != nil {
		t.Error("AtomicConsumeAuthorizationCode() should return nil record for unknown code")
	}
}

func TestStore_AtomicConsumeAuthorizationCode_Expired(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	code.ExpiresAt = time.Now().Add(-1 * time.Minute)

	if err := store.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	got, err := store.AtomicConsumeAuthorizationCode(ctx, code.Code)
	if !errors.Is(err, storage.ErrExpired) {
		t.Errorf("AtomicConsumeAuthorizationCode() error = %v, want ErrExpired", err)
	}
	if got != nil {
		t.Error("AtomicConsumeAuthorizationCode() should return nil record for expired code")
	}
}

// TestStore_ConcurrentCodeConsumption verifies that of N goroutines racing to
// consume the same code, exactly one succeeds.
func TestStore_ConcurrentCodeConsumption(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	if err := store.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	const goroutines = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	reuseErrors := 0

	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := store.AtomicConsumeAuthorizationCode(ctx, code.Code)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, storage.ErrAuthorizationCodeConsumed):
				reuseErrors++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if reuseErrors != goroutines-1 {
		t.Errorf("reuse errors = %d, want %d", reuseErrors, goroutines-1)
	}
}

func TestStore_DeleteAuthorizationCode(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()

	if err := store.SaveAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	if err := store.DeleteAuthorizationCode(ctx, code.Code); err != nil {
		t.Fatalf("DeleteAuthorizationCode() error = %v", err)
	}

	_, err := store.GetAuthorizationCode(ctx, code.Code)
	if !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("GetAuthorizationCode() error = %v, want ErrAuthorizationCodeNotFound", err)
	}
}

// ============================================================
// Cleanup Tests
// ============================================================

func TestStore_CleanupExpiredCodes(t *testing.T) {
	store := NewWithInterval(10 * time.Millisecond)
	defer store.Stop()
	ctx := context.Background()

	expired := testutil.GenerateTestAuthorizationCode()
	expired.Code = "expired-code"
	expired.ExpiresAt = time.Now().Add(-10 * time.Minute)

	valid := testutil.GenerateTestAuthorizationCode()
	valid.Code = "valid-code"

	if err := store.SaveAuthorizationCode(ctx, expired); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}
	if err := store.SaveAuthorizationCode(ctx, valid); err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	// Run the sweep directly rather than waiting for the ticker
	store.cleanup()

	store.mu.RLock()
	_, expiredPresent := store.authCodes[expired.Code]
	_, validPresent := store.authCodes[valid.Code]
	store.mu.RUnlock()

	if expiredPresent {
		t.Error("expired code should have been cleaned up")
	}
	if !validPresent {
		t.Error("valid code should not have been cleaned up")
	}
}
