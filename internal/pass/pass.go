package pass

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const signatureSize = ed25519.SignatureSize

var (
	ErrMalformed        = errors.New("pass: malformed payload")
	ErrInvalidSignature = errors.New("pass: invalid signature")
	ErrExpired          = errors.New("pass: expired")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pass: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("pass: CBOR decoder initialization failed: " + err.Error())
	}
}

// Claims is what a scanner learns from a ticket's QR code.
type Claims struct {
	TicketID   string `cbor:"1,keyasint"`
	ListingID  string `cbor:"2,keyasint"`
	BuyerEmail string `cbor:"3,keyasint"`
	// ValidUntil is a Unix timestamp (seconds), normally the listing end.
	ValidUntil int64 `cbor:"4,keyasint"`
}

type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func NewSigner(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("pass: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{private: priv, public: priv.Public().(ed25519.PublicKey)}, nil
}

func GenerateSeed() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("pass: read seed: %w", err)
	}
	return seed, nil
}

// Mint returns base64url(CBOR claims || Ed25519 signature).
func (s *Signer) Mint(c Claims) (string, error) {
	payload, err := encMode.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("pass: encoding claims: %w", err)
	}
	signature := ed25519.Sign(s.private, payload)

	raw := make([]byte, len(payload)+signatureSize)
	copy(raw, payload)
	copy(raw[len(payload):], signature)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func (s *Signer) Verify(encoded string) (*Claims, error) {
	return s.VerifyAt(encoded, time.Now())
}

func (s *Signer) VerifyAt(encoded string, now time.Time) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) <= signatureSize {
		return nil, ErrMalformed
	}

	split := len(raw) - signatureSize
	payload, signature := raw[:split], raw[split:]
	if !ed25519.Verify(s.public, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var c Claims
	if err := decMode.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if c.ValidUntil > 0 && now.Unix() > c.ValidUntil {
		return nil, ErrExpired
	}
	return &c, nil
}
