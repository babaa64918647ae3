package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ciphertext, nonce, err := Encrypt("EAAG-provider-access-token")
	assert.NoError(t, err)
	assert.NotEmpty(t, ciphertext)
	assert.NotEmpty(t, nonce)

	plaintext, err := Decrypt(ciphertext, nonce)
	assert.NoError(t, err)
	assert.Equal(t, "EAAG-provider-access-token", plaintext)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	c1, n1, err := Encrypt("token")
	assert.NoError(t, err)
	c2, n2, err := Encrypt("token")
	assert.NoError(t, err)

	assert.NotEqual(t, n1, n2)
	assert.NotEqual(t, c1, c2)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	ciphertext, nonce, err := Encrypt("token")
	assert.NoError(t, err)

	ciphertext[0] ^= 0xFF
	_, err = Decrypt(ciphertext, nonce)
	assert.Error(t, err)
}
