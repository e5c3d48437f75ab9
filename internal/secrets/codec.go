// Package secrets implements the field-level encryption boundary. Values are
// stored as "enc:" + base64(nonce || AES-GCM ciphertext); anything without the
// prefix is plaintext and passes through untouched.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const prefix = "enc:"

// argon2id parameters.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 2
	keyLen     = 32
	saltLen    = 16
)

var (
	// ErrNoKey is returned when an encrypted value is read without a key.
	ErrNoKey = errors.New("secrets: value is encrypted and no key was supplied")
	// ErrBadCiphertext is returned for values with the prefix that fail to decode or authenticate.
	ErrBadCiphertext = errors.New("secrets: malformed ciphertext")
)

// Codec encrypts and decrypts stored field values.
type Codec interface {
	Encrypt(plain string) (string, error)
	Decrypt(stored string) (string, error)
	HasKey() bool
}

// IsEncrypted reports whether v carries the encrypted-value prefix.
func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, prefix)
}

// NewSalt returns a fresh random KDF salt, base64 encoded.
func NewSalt() (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// DeriveKey stretches passphrase with argon2id over the base64 salt.
func DeriveKey(passphrase, saltB64 string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, keyLen), nil
}

// Plain is the codec used when no key is unlocked.
type Plain struct{}

func (Plain) Encrypt(plain string) (string, error) { return plain, nil }

func (Plain) Decrypt(stored string) (string, error) {
	if IsEncrypted(stored) {
		return "", ErrNoKey
	}
	return stored, nil
}

func (Plain) HasKey() bool { return false }

// Cipher is an AES-GCM codec bound to one key.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher builds a codec from a 16, 24 or 32 byte key.
func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

func (c *Cipher) HasKey() bool { return true }

// Encrypt seals plain. Input that already looks encrypted is sealed again.
func (c *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	blob := c.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.StdEncoding.EncodeToString(blob), nil
}

func (c *Cipher) Decrypt(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}
	blob, err := base64.StdEncoding.DecodeString(stored[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	if len(blob) < c.gcm.NonceSize() {
		return "", fmt.Errorf("%w: too short", ErrBadCiphertext)
	}
	nonce, body := blob[:c.gcm.NonceSize()], blob[c.gcm.NonceSize():]
	pt, err := c.gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	return string(pt), nil
}
