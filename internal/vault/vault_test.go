package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestVault(t *testing.T) *Vault {
	v, err := New(Config{
		MasterKey: "test-master-key-please-rotate",
		Salt:      []byte("0123456789abcdef"),
	})
	assert.NoError(t, err)
	return v
}

func TestVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)

	encrypted, err := v.EncryptField([]byte("123412341234"))
	assert.NoError(t, err)
	assert.NotEmpty(t, encrypted)

	decrypted, err := v.DecryptField(encrypted)
	assert.NoError(t, err)
	assert.Equal(t, "123412341234", string(decrypted))
}

func TestVaultNonDeterministic(t *testing.T) {
	v := newTestVault(t)

	a, err := v.EncryptField([]byte("same plaintext"))
	assert.NoError(t, err)
	b, err := v.EncryptField([]byte("same plaintext"))
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVaultTamperedCiphertext(t *testing.T) {
	v := newTestVault(t)

	encrypted, err := v.EncryptField([]byte("face-embedding"))
	assert.NoError(t, err)

	tampered := "A" + encrypted[1:]
	_, err = v.DecryptField(tampered)
	assert.Error(t, err)
}

func TestVaultRequiresMasterKey(t *testing.T) {
	_, err := New(Config{Salt: []byte("0123456789abcdef")})
	assert.Error(t, err)

	_, err = New(Config{MasterKey: "k", Salt: []byte("short")})
	assert.Error(t, err)
}
