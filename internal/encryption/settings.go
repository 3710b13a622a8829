package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrKeyNotFound       = errors.New("encryption key not found")
	ErrInvalidKeyLength  = errors.New("encryption key must be 32 bytes for AES-256")
)

const prefix = "$enc$v1$"

// Encryptor encrypts and decrypts single setting values
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SettingsEncryptor protects gateway credentials at rest with AES-256-GCM
type SettingsEncryptor struct {
	mu         sync.RWMutex
	key        []byte
	keyVersion string
}

// Config holds configuration for the settings encryptor
type Config struct {
	// GCP Secret Manager configuration
	GCPProjectID string
	SecretName   string

	// LocalKey is a base64 or hex encoded 32 byte key. It wins over Secret Manager.
	LocalKey string
}

// NewSettingsEncryptor loads the key from the local config or Secret Manager
func NewSettingsEncryptor(ctx context.Context, cfg Config) (*SettingsEncryptor, error) {
	if cfg.LocalKey != "" {
		key, err := decodeKey(cfg.LocalKey)
		if err != nil {
			return nil, err
		}
		return NewWithKey(key, "local")
	}

	if cfg.GCPProjectID == "" || cfg.SecretName == "" {
		return nil, ErrKeyNotFound
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer client.Close()

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", cfg.GCPProjectID, cfg.SecretName)
	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret: %w", err)
	}

	return NewWithKey(result.Payload.Data, versionLabel(result.Name))
}

// NewWithKey creates an encryptor from a raw 32 byte key
func NewWithKey(key []byte, version string) (*SettingsEncryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeyLength
	}
	return &SettingsEncryptor{key: key, keyVersion: version}, nil
}

func decodeKey(raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		key, err = hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid local key format: %w", err)
		}
	}
	return key, nil
}

// versionLabel keeps the trailing version number of a secret version name
func versionLabel(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return "sm" + name[i+1:]
	}
	return "sm"
}

// Encrypt encrypts plaintext. Empty values stay empty.
func (e *SettingsEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	e.mu.RLock()
	key, version := e.key, e.keyVersion
	e.mu.RUnlock()

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	// Format: $enc$v1$keyVersion$ciphertext
	return prefix + version + "$" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the envelope prefix are returned as-is.
func (e *SettingsEncryptor) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, prefix) {
		return ciphertext, nil
	}

	parts := strings.SplitN(strings.TrimPrefix(ciphertext, prefix), "$", 2)
	if len(parts) != 2 {
		return "", ErrInvalidCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	e.mu.RLock()
	key := e.key
	e.mu.RUnlock()

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the envelope prefix
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, prefix)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
