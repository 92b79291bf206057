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

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// EnvelopeKey is the only collected-data key written by the encryption
// middleware; it holds the sealed contact data.
const EnvelopeKey = "__encrypted__"

// ErrMissingEnvelope is returned when a stored session was not written by
// the encryption middleware.
var ErrMissingEnvelope = errors.New("session is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte

	// AllowPlaintext accepts sessions stored before encryption was enabled.
	// They are encrypted on their next save.
	AllowPlaintext bool
}

// sealed is the part of a session that carries contact-provided data.
// Routing fields (ids, status, node) stay readable for the store's
// uniqueness checks.
type sealed struct {
	CollectedData  map[string]string `json:"collectedData"`
	LastBotMessage string            `json:"lastBotMessage,omitempty"`
}

type encryptionMiddleware struct {
	next   ports.SessionStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals collected data
// using AES-GCM before it reaches the wrapped store.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Create(ctx context.Context, session *domain.Session) error {
	envelope, err := m.seal(session)
	if err != nil {
		return err
	}
	return m.next.Create(ctx, envelope)
}

func (m *encryptionMiddleware) Save(ctx context.Context, session *domain.Session) error {
	envelope, err := m.seal(session)
	if err != nil {
		return err
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) FindActiveByContact(ctx context.Context, key domain.ContactKey) (*domain.Session, error) {
	envelope, err := m.next.FindActiveByContact(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	envelope, err := m.next.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) seal(session *domain.Session) (*domain.Session, error) {
	plainText, err := json.Marshal(sealed{CollectedData: session.CollectedData, LastBotMessage: session.LastBotMessage})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session data: %w", err)
	}

	// Copy so the engine's in-memory session keeps its plain data.
	envelope := session.Clone()
	envelope.CollectedData = map[string]string{
		EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	envelope.LastBotMessage = ""
	return envelope, nil
}

func (m *encryptionMiddleware) open(envelope *domain.Session) (*domain.Session, error) {
	encryptedStr, ok := envelope.CollectedData[EnvelopeKey]
	if !ok {
		if m.config.AllowPlaintext {
			return envelope, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingEnvelope, envelope.ID)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session %s: %w", envelope.ID, err)
	}

	var data sealed
	if err := json.Unmarshal(plainText, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted session data: %w", err)
	}

	session := envelope.Clone()
	session.CollectedData = data.CollectedData
	if session.CollectedData == nil {
		session.CollectedData = make(map[string]string)
	}
	session.LastBotMessage = data.LastBotMessage
	return session, nil
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
