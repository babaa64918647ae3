package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"os"
)

// Encryption key for channel access tokens (in production, use a secure key
// management system). Must be 32 bytes for AES-256.
var encryptionKey = loadKey()

func loadKey() []byte {
	if k := os.Getenv("CHANNEL_TOKEN_KEY"); len(k) == 32 {
		return []byte(k)
	}
	return []byte("32-byte-key-for-aes-encryption!!")
}

// Encrypt encrypts data using AES-GCM and returns the ciphertext and nonce
func Encrypt(plaintext string) ([]byte, []byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	ciphertext := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt decrypts AES-GCM encrypted data
func Decrypt(ciphertext, nonce []byte) (string, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
