// Package pass mints ticket codes and the signed payload encoded into a
// ticket's QR code.
package pass

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

// Crockford base32: no I, L, O or U.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var ticketIDPattern = regexp.MustCompile(`^TKT-[0-9A-Z]{6}-\d{6,}-[0-9A-HJKMNP-TV-Z]{8}$`)

// NewTicketID builds TKT-<LISTING6>-<SEQ06>-<RAND8>. The random tail carries 40 bits.
func NewTicketID(listingID string, seq int64) (string, error) {
	var raw [5]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("pass: read random: %w", err)
	}
	return fmt.Sprintf("TKT-%s-%06d-%s", listingPrefix(listingID), seq, encode40(raw)), nil
}

func ValidTicketID(id string) bool {
	return ticketIDPattern.MatchString(id)
}

func listingPrefix(listingID string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(listingID) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
		if b.Len() == 6 {
			break
		}
	}
	s := b.String()
	return s + strings.Repeat("0", 6-len(s))
}

func encode40(raw [5]byte) string {
	var v uint64
	for _, c := range raw {
		v = v<<8 | uint64(c)
	}
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = crockford[v&31]
		v >>= 5
	}
	return string(out)
}
