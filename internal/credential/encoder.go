// Package credential implements the two-stage password pipeline used when
// provisioning accounts: a reversible AES encoding followed by bcrypt.
package credential

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	ErrEmptySecret      = errors.New("credential: server secret is empty")
	ErrMalformedEncoded = errors.New("credential: malformed encoded value")
)

// Encoder encrypts passwords with AES-256-CBC under a server key.
// Output format is ivHex:cipherHex.
type Encoder struct {
	key [32]byte
}

// NewEncoder derives the server key as the BLAKE3-256 digest of secret.
func NewEncoder(secret string) (*Encoder, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Encoder{key: blake3.Sum256([]byte(secret))}, nil
}

// EncodeDerived uses an IV derived from the password and the server key, so the
// same password always yields the same output.
func (e *Encoder) EncodeDerived(password string) (string, error) {
	return e.EncodeWithIV(password, e.deriveIV(password))
}

// Encode uses a fresh random IV per call.
func (e *Encoder) Encode(password string) (string, error) {
	iv, err := RandomIV()
	if err != nil {
		return "", err
	}
	return e.EncodeWithIV(password, iv)
}

func (e *Encoder) EncodeWithIV(password string, iv []byte) (string, error) {
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("credential: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return "", fmt.Errorf("credential: init cipher: %w", err)
	}
	plain := pad([]byte(password))
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (e *Encoder) Decode(encoded string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", ErrMalformedEncoded
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrMalformedEncoded
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrMalformedEncoded
	}
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return "", fmt.Errorf("credential: init cipher: %w", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	unpadded, err := unpad(plain)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// Validate reports whether encoded decodes to password. Works for both IV modes.
func (e *Encoder) Validate(password, encoded string) bool {
	decoded, err := e.Decode(encoded)
	if err != nil {
		return false
	}
	return decoded == password
}

func (e *Encoder) deriveIV(password string) []byte {
	h, err := blake3.NewKeyed(e.key[:])
	if err != nil {
		panic("credential: keyed hash init failed: " + err.Error())
	}
	_, _ = h.Write([]byte(password))
	return h.Sum(nil)[:aes.BlockSize]
}

func RandomIV() ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("credential: read iv: %w", err)
	}
	return iv, nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrMalformedEncoded
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrMalformedEncoded
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrMalformedEncoded
		}
	}
	return b[:len(b)-n], nil
}
