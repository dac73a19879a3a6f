package security

import (
	"testing"

	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, key string) EncryptionService {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Secrets.EncryptionKey = key
	svc, err := NewEncryptionService(cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	return svc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestService(t, "test-encryption-key-for-unit-tests-only")

	ciphertext, err := svc.Encrypt("bk_live_123")
	require.NoError(t, err)
	assert.NotEqual(t, "bk_live_123", ciphertext)

	again, err := svc.Encrypt("bk_live_123")
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, again, "nonce must differ per call")

	plaintext, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "bk_live_123", plaintext)

	empty, err := svc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	a := newTestService(t, "key-a")
	b := newTestService(t, "key-b")

	ciphertext, err := a.Encrypt("bk_live_123")
	require.NoError(t, err)

	_, err = b.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestHashIsKeyed(t *testing.T) {
	a := newTestService(t, "key-a")
	b := newTestService(t, "key-b")

	assert.Equal(t, a.Hash("4330-****-****-1234"), a.Hash("4330-****-****-1234"))
	assert.NotEqual(t, a.Hash("4330-****-****-1234"), b.Hash("4330-****-****-1234"))
	assert.Empty(t, a.Hash(""))
}

func TestMissingKeyRejected(t *testing.T) {
	cfg := config.GetDefaultConfig()
	_, err := NewEncryptionService(cfg, logger.NewNoopLogger())
	assert.Error(t, err)
}
