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

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// envelopeKey marks an encrypted snapshot's state map.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ExecutionStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts execution state
// at rest using AES-GCM. Snapshots and provenance entries are stored as opaque
// envelopes; only the execution ID, status, and timestamps stay visible for
// listing and monitoring.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ExecutionStore) ports.ExecutionStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	plainText, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt snapshot: %w", err)
	}

	envelope := &domain.Snapshot{
		ExecutionID: snap.ExecutionID,
		GraphName:   snap.GraphName,
		Status:      snap.Status,
		UpdatedAt:   snap.UpdatedAt,
		State: domain.GraphState{
			envelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
		},
	}
	return m.next.SaveSnapshot(ctx, envelope)
}

func (m *encryptionMiddleware) LoadSnapshot(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	envelope, err := m.next.LoadSnapshot(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return m.openSnapshot(envelope)
}

func (m *encryptionMiddleware) openSnapshot(envelope *domain.Snapshot) (*domain.Snapshot, error) {
	encryptedStr, ok := envelope.State[envelopeKey].(string)
	if !ok {
		// Fail secure: with encryption configured, plaintext snapshots are
		// treated as corruption, not silently passed through.
		return nil, errors.New("snapshot is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
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

func (m *encryptionMiddleware) AppendProvenance(ctx context.Context, executionID string, entry domain.ProvenanceEntry) (uint64, error) {
	plainText, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal provenance entry: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt provenance entry: %w", err)
	}

	// Kind and timestamp stay visible so the chain keeps its auditable shape;
	// node identity, results, and details are hidden.
	envelope := domain.ProvenanceEntry{
		Kind:      entry.Kind,
		Timestamp: entry.Timestamp,
		Detail:    base64.StdEncoding.EncodeToString(ciphertext),
	}
	return m.next.AppendProvenance(ctx, executionID, envelope)
}

func (m *encryptionMiddleware) History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	rec, err := m.next.History(ctx, executionID)
	if err != nil {
		return nil, err
	}

	snap, err := m.openSnapshot(rec.Snapshot)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ProvenanceEntry, 0, len(rec.Provenance))
	for _, envelope := range rec.Provenance {
		ciphertext, err := base64.StdEncoding.DecodeString(envelope.Detail)
		if err != nil {
			return nil, fmt.Errorf("failed to decode provenance ciphertext: %w", err)
		}
		plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt provenance entry: %w", err)
		}
		var entry domain.ProvenanceEntry
		if err := json.Unmarshal(plainText, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted provenance entry: %w", err)
		}
		// Seq is assigned by the inner store on append; the envelope's value
		// is authoritative.
		entry.Seq = envelope.Seq
		entries = append(entries, entry)
	}

	return &domain.ExecutionRecord{
		ExecutionID:        executionID,
		Snapshot:           snap,
		Provenance:         entries,
		Replay:             snap.Replay,
		OriginalID:         snap.OriginalID,
		DeterminismFlagged: snap.DeterminismFlagged,
	}, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, executionID string) error {
	return m.next.Delete(ctx, executionID)
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
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
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
