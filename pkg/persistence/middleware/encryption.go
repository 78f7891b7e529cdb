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

	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
)

const envelopeKey = "__encrypted__"

// ErrMissingEnvelope is returned when a stored record was not written encrypted.
var ErrMissingEnvelope = errors.New("experiment is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt.
	FallbackKeys [][]byte
}

// sealed is the part of an experiment hidden inside the envelope.
type sealed struct {
	Task     domain.Task            `json:"task"`
	BestCode string                 `json:"best_code,omitempty"`
	Config   map[string]any         `json:"config,omitempty"`
	Journal  domain.JournalSnapshot `json:"journal"`
}

type encryptionMiddleware struct {
	next   ports.ExperimentStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts the task, code,
// config and journal of every experiment with AES-GCM. Status, progress and
// the best metric stay readable so stored experiments can still be listed
// and monitored.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("%w: active key must be 32 bytes (AES-256), got %d", domain.ErrInvalidConfig, len(config.ActiveKey))
	}
	return func(next ports.ExperimentStore) ports.ExperimentStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, exp *domain.Experiment) error {
	plainText, err := json.Marshal(sealed{
		Task:     exp.Task,
		BestCode: exp.BestCode,
		Config:   exp.Config,
		Journal:  exp.Journal,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal experiment: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt experiment: %w", err)
	}

	envelope := *exp
	envelope.Task = domain.Task{}
	envelope.BestCode = ""
	envelope.Journal = domain.JournalSnapshot{}
	envelope.Config = map[string]any{
		envelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return m.next.Save(ctx, &envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.Experiment, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	encoded, ok := envelope.Config[envelopeKey].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnvelope, id)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt experiment %s: %w", id, err)
	}

	var s sealed
	if err := json.Unmarshal(plainText, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted experiment: %w", err)
	}

	exp := *envelope
	exp.Task = s.Task
	exp.BestCode = s.BestCode
	exp.Config = s.Config
	exp.Journal = s.Journal
	return &exp, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
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
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
