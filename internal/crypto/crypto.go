// Package crypto provides at-rest field encryption with a rotating key list.
// Values are encrypted with the primary key; decryption tries every configured
// key so that history does not need re-encryption after a rotation.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const prefix = "enc:"

// ErrNoKeyMatched is returned when no configured key can decrypt a value.
var ErrNoKeyMatched = errors.New("unable to decrypt: no key matched")

// Box encrypts and decrypts strings with AES-256-GCM.
type Box struct {
	aeads []cipher.AEAD
}

// NewBox builds a Box from 32-byte keys. The first key is the primary.
func NewBox(keys [][]byte) (*Box, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one encryption key is required")
	}
	aeads := make([]cipher.AEAD, 0, len(keys))
	for i, key := range keys {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		aeads = append(aeads, gcm)
	}
	return &Box{aeads: aeads}, nil
}

// Encrypt seals value with the primary key and returns a prefixed token.
func (b *Box) Encrypt(value string) (string, error) {
	gcm := b.aeads[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(value), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a prefixed token, trying each configured key in turn. Values
// without the prefix are returned unchanged (legacy plaintext).
func (b *Box) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(value[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", err)
	}
	for _, gcm := range b.aeads {
		if len(sealed) < gcm.NonceSize() {
			continue
		}
		nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
		plain, err := gcm.Open(nil, nonce, body, nil)
		if err == nil {
			return string(plain), nil
		}
	}
	return "", ErrNoKeyMatched
}
