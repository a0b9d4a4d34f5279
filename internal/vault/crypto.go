// Package vault provides the security primitives used around state
// payloads: AES-GCM encryption for sensitive state types and
// self-signed certificates for the TCP console.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
)

// KeySize is the required AES-256 key length.
const KeySize = 32

var errCiphertextShort = errors.New("ciphertext too short")

// Seal encrypts data with a 32-byte key and returns a hex string.
// The random nonce is prepended to the ciphertext so Open can recover
// it.
func Seal(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	// GCM gives us authenticated encryption: tampering fails Open.
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	return hex.EncodeToString(gcm.Seal(nonce, nonce, data, nil)), nil
}

// Open decrypts a hex string produced by Seal with the same key.
func Open(sealed string, key []byte) ([]byte, error) {
	ciphertext, err := hex.DecodeString(sealed)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errCiphertextShort
	}

	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	data, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, errors.New("decryption failed (wrong key or tampered data)")
	}
	return data, nil
}
