package credential

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/bcrypt"
)

var ErrMalformedHash = errors.New("credential: malformed stored hash")

// Hasher produces the persisted credential: ivHex:bcrypt(prehash(encode(password))).
// The IV is random per record and kept next to the bcrypt digest so the
// encoding can be replayed on verification. A bare bcrypt digest is treated
// as a record written with the derived IV.
type Hasher struct {
	enc  *Encoder
	cost int
}

func NewHasher(enc *Encoder, cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{enc: enc, cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	iv, err := RandomIV()
	if err != nil {
		return "", err
	}
	encoded, err := h.enc.EncodeWithIV(password, iv)
	if err != nil {
		return "", err
	}
	digest, err := bcrypt.GenerateFromPassword(prehash(encoded), h.cost)
	if err != nil {
		return "", fmt.Errorf("credential: bcrypt: %w", err)
	}
	return hex.EncodeToString(iv) + ":" + string(digest), nil
}

// HashDerived writes a record in the deterministic-IV form.
func (h *Hasher) HashDerived(password string) (string, error) {
	encoded, err := h.enc.EncodeDerived(password)
	if err != nil {
		return "", err
	}
	digest, err := bcrypt.GenerateFromPassword(prehash(encoded), h.cost)
	if err != nil {
		return "", fmt.Errorf("credential: bcrypt: %w", err)
	}
	return string(digest), nil
}

func (h *Hasher) Verify(password, stored string) bool {
	encoded, digest, err := h.replay(password, stored)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), prehash(encoded)) == nil
}

func (h *Hasher) replay(password, stored string) (string, string, error) {
	ivHex, digest, ok := strings.Cut(stored, ":")
	if !ok {
		encoded, err := h.enc.EncodeDerived(password)
		return encoded, stored, err
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", "", ErrMalformedHash
	}
	encoded, err := h.enc.EncodeWithIV(password, iv)
	if err != nil {
		return "", "", ErrMalformedHash
	}
	return encoded, digest, nil
}

// bcrypt only reads the first 72 bytes; the encoded form of a long password exceeds that.
func prehash(encoded string) []byte {
	sum := blake3.Sum256([]byte(encoded))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
