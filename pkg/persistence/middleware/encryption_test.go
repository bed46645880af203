package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/orbitel/journey/pkg/adapters/memory"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/persistence/middleware"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func testSnapshot(tenantID string) *domain.Snapshot {
	return &domain.Snapshot{
		TenantID: tenantID,
		Journeys: []*domain.Journey{
			{
				ID:         "jrn-1",
				TenantID:   tenantID,
				TemplateID: "onboarding",
				Status:     domain.JourneyActive,
				Context: map[string]any{
					"customer_email": "ana@example.com",
					"plan":           "fiber-600",
				},
				Metadata: map[string]any{},
			},
		},
		TakenAt: time.Now().UTC(),
	}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	key := generateKey(t)
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
	secureStore := mw(underlying)

	ctx := context.Background()
	original := testSnapshot("acme")

	if err := secureStore.Save(ctx, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The backing store must only see the sealed envelope.
	stored, err := underlying.Load(ctx, "acme")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if len(stored.Journeys) != 0 {
		t.Fatalf("Expected journeys to be hidden, found %d", len(stored.Journeys))
	}
	if stored.Encrypted == "" {
		t.Fatal("Expected encrypted payload in envelope")
	}
	if stored.TenantID != "acme" {
		t.Errorf("Expected tenant id to stay visible, got %q", stored.TenantID)
	}

	loaded, err := secureStore.Load(ctx, "acme")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if len(loaded.Journeys) != 1 {
		t.Fatalf("Expected 1 journey after decryption, got %d", len(loaded.Journeys))
	}
	if loaded.Journeys[0].Context["customer_email"] != "ana@example.com" {
		t.Errorf("Expected decrypted context, got %v", loaded.Journeys[0].Context["customer_email"])
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	mwOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	secureOld := mwOld(underlying)

	ctx := context.Background()
	original := testSnapshot("acme")
	original.Journeys[0].Context["data"] = "encrypted-with-old-key"

	if err := secureOld.Save(ctx, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mwNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	secureNew := mwNew(underlying)

	loaded, err := secureNew.Load(ctx, "acme")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Journeys[0].Context["data"] != "encrypted-with-old-key" {
		t.Error("Decryption with fallback key failed")
	}

	// Re-saving seals with the new active key; the old middleware can no
	// longer read it.
	loaded.Journeys[0].Context["data"] = "encrypted-with-new-key"
	if err := secureNew.Save(ctx, loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}

	if _, err := secureOld.Load(ctx, "acme"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_PlainSnapshotFailsSecure(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()

	// Written before encryption was enabled.
	if err := underlying.Save(ctx, testSnapshot("acme")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := mw(underlying).Load(ctx, "acme"); err == nil {
		t.Error("Expected error when loading a plain snapshot through the encrypting store")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for invalid key size")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
}
