package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new snapshots.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.SnapshotStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts snapshots at
// rest using AES-GCM (envelope encryption).
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, snap *domain.Snapshot) error {
	plainText, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt snapshot: %w", err)
	}

	// The envelope keeps TenantID and TakenAt visible so the backing store
	// can still key and inspect snapshots. Everything else is sealed.
	envelope := &domain.Snapshot{
		TenantID:  snap.TenantID,
		TakenAt:   snap.TakenAt,
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
	envelope, err := m.next.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if envelope.Encrypted == "" {
		// A plain snapshot under an encrypting store means either tampering
		// or data written before encryption was enabled. Fail secure.
		return nil, errors.New("snapshot is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(plainText, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted snapshot: %w", err)
	}

	return &snap, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, tenantID string) error {
	return m.next.Delete(ctx, tenantID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
