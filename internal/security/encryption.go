package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"golang.org/x/crypto/hkdf"
)

// EncryptionService encrypts billing keys before they reach the store
type EncryptionService interface {
	// Encrypt encrypts plaintext using AES-GCM
	Encrypt(plaintext string) (string, error)

	// Decrypt decrypts ciphertext using AES-GCM
	Decrypt(ciphertext string) (string, error)

	// Hash creates a keyed one-way digest usable as a lookup column
	Hash(value string) string
}

type aesEncryptionService struct {
	encKey  []byte
	hashKey []byte
	logger  *logger.Logger
}

// NewEncryptionService derives separate encryption and hashing keys from the configured master secret
func NewEncryptionService(cfg *config.Configuration, logger *logger.Logger) (EncryptionService, error) {
	if cfg.Secrets.EncryptionKey == "" {
		return nil, ierr.NewError("master encryption key not configured").
			WithHint("secrets.encryption_key must be set").
			Mark(ierr.ErrSystem)
	}

	encKey, err := deriveKey(cfg.Secrets.EncryptionKey, "billing-key-encryption")
	if err != nil {
		return nil, err
	}
	hashKey, err := deriveKey(cfg.Secrets.EncryptionKey, "billing-key-hash")
	if err != nil {
		return nil, err
	}

	return &aesEncryptionService{
		encKey:  encKey,
		hashKey: hashKey,
		logger:  logger,
	}, nil
}

func deriveKey(master, info string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(master), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to derive key").
			Mark(ierr.ErrSystem)
	}
	return key, nil
}

// Encrypt encrypts plaintext using AES-GCM and returns base64-encoded ciphertext
func (s *aesEncryptionService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ierr.WithError(err).
			WithHint("failed to generate nonce").
			Mark(ierr.ErrSystem)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext using AES-GCM
func (s *aesEncryptionService) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("failed to decode ciphertext").
			Mark(ierr.ErrSystem)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(decoded) < nonceSize {
		return "", ierr.NewError("ciphertext too short").
			Mark(ierr.ErrSystem)
	}

	nonce, body := decoded[:nonceSize], decoded[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("failed to decrypt ciphertext").
			Mark(ierr.ErrSystem)
	}

	return string(plaintext), nil
}

// Hash creates an HMAC-SHA256 digest of the value
func (s *aesEncryptionService) Hash(value string) string {
	if value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, s.hashKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *aesEncryptionService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to create cipher block").
			Mark(ierr.ErrSystem)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to create GCM").
			Mark(ierr.ErrSystem)
	}
	return gcm, nil
}

// GenerateRandomKey generates a random 32-byte key for AES-256
func GenerateRandomKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
