package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Algorithm is the only supported encryption scheme.
const Algorithm = "aes-256-gcm"

const (
	saltSize   = 16
	keySize    = 32
	iterations = 210000
)

// ErrDecrypt is returned for a wrong password or a corrupted payload.
var ErrDecrypt = errors.New("decryption failed")

func deriveKey(password string, salt []byte) ([]byte, error) {
	return pbkdf2.Key(sha256.New, password, salt, iterations, keySize)
}

// Encrypt seals plain with a key derived from password and returns the
// base64 payload.
func Encrypt(plain []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := append(salt, nonce...)
	out = gcm.Seal(out, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt.
func Decrypt(payload, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not base64: %w", err)
	}
	if len(raw) < saltSize {
		return nil, ErrDecrypt
	}
	salt, rest := raw[:saltSize], raw[saltSize:]

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptDocument turns a plain settings document into an encrypted one.
func EncryptDocument(plainDoc []byte, password string) ([]byte, error) {
	var doc document
	if err := yaml.Unmarshal(plainDoc, &doc); err != nil {
		return nil, fmt.Errorf("malformed settings document: %w", err)
	}
	if doc.Encrypted != "" {
		return nil, errors.New("settings document is already encrypted")
	}
	if _, err := decodeMapping(&doc.Settings); err != nil {
		return nil, fmt.Errorf("settings must be a mapping of strings: %w", err)
	}

	inner, err := yaml.Marshal(&doc.Settings)
	if err != nil {
		return nil, err
	}
	payload, err := Encrypt(inner, password)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(map[string]string{
		"algorithm": Algorithm,
		"encrypted": payload,
	})
}
