// Package crypto provides transparent at-rest encryption for stored chat
// fields.
//
// Values are sealed with AES-256-CBC under a single process-wide key derived
// from the operator secret. The persisted form is a tagged envelope:
//
//	enc:<hex iv>:<hex ciphertext>
//
// Open is deliberately forgiving: unprefixed input is treated as legacy
// plaintext and returned unchanged, and any decryption failure yields a fixed
// sentinel instead of an error so one corrupted row cannot break a listing.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// EnvelopePrefix marks a stored value as encrypted.
const EnvelopePrefix = "enc:"

// DecryptFailedSentinel replaces any field that cannot be decrypted.
const DecryptFailedSentinel = "[decryption failed]"

// fallbackSecret keys the cipher when no operator secret is configured.
// KNOWN LIMITATION: a shared hardcoded key only obfuscates data at rest; set
// ENCRYPTION_SECRET for anything beyond casual protection.
const fallbackSecret = "pocketllama-default-at-rest-key"

// Cipher seals and opens opaque text fields. The key is immutable after
// construction, so a single Cipher is safe for concurrent use.
type Cipher struct {
	key [32]byte
}

// New derives the process-wide key by hashing the operator secret. An empty
// secret selects the hardcoded fallback key.
func New(secret string) *Cipher {
	if secret == "" {
		secret = fallbackSecret
	}
	return &Cipher{key: sha256.Sum256([]byte(secret))}
}

// IsSealed reports whether a value already carries the envelope prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, EnvelopePrefix)
}

// Seal encrypts a plaintext field into envelope form. Empty input and values
// that are already sealed are returned unchanged, so Seal never double-wraps.
func (c *Cipher) Seal(plaintext string) string {
	if plaintext == "" || IsSealed(plaintext) {
		return plaintext
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		// rand.Read failing means the platform RNG is broken; storing
		// plaintext is preferable to storing a predictably keyed value.
		return plaintext
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return plaintext
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return EnvelopePrefix + hex.EncodeToString(iv) + ":" + hex.EncodeToString(out)
}

// Open decrypts an enveloped field. Unprefixed input is legacy plaintext and
// passes through untouched. Any failure (wrong key, truncation, tampering)
// returns the sentinel; Open never returns an error.
func (c *Cipher) Open(value string) string {
	if !IsSealed(value) {
		return value
	}

	plaintext, err := c.open(value)
	if err != nil {
		return DecryptFailedSentinel
	}
	return plaintext
}

func (c *Cipher) open(value string) (string, error) {
	body := strings.TrimPrefix(value, EnvelopePrefix)
	parts := strings.SplitN(body, ":", 2)
	if len(parts) != 2 {
		return "", errors.New("malformed envelope")
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", err
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", err
	}
	if len(iv) != aes.BlockSize {
		return "", errors.New("bad iv length")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("bad ciphertext length")
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", err
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
