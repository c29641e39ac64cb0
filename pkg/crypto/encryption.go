package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// ErrCiphertextTooShort is returned when the sealed payload is shorter than a nonce
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor handles AES-256-GCM encryption/decryption
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates a new encryptor with a 32-byte key
func NewEncryptor(key string) (*Encryptor, error) {
	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return nil, errors.New("encryption key must be exactly 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Encryptor{aead: gcm}, nil
}

// EncryptBytes seals plaintext; the random nonce is prepended to the output
func (e *Encryptor) EncryptBytes(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBytes opens a payload produced by EncryptBytes
func (e *Encryptor) DecryptBytes(ciphertext []byte) ([]byte, error) {
	size := e.aead.NonceSize()
	if len(ciphertext) < size {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:size], ciphertext[size:]
	return e.aead.Open(nil, nonce, sealed, nil)
}

// EncryptToString seals plaintext and encodes it as URL-safe base64 for JSON transport
func (e *Encryptor) EncryptToString(plaintext []byte) (string, error) {
	sealed, err := e.EncryptBytes(plaintext)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptToString
func (e *Encryptor) DecryptString(encoded string) ([]byte, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return e.DecryptBytes(sealed)
}
