// Package ticketcode mints the redeemable codes printed on tickets.
package ticketcode

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// Crockford base32 without I, L, O and U.
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	groups     = 3
	groupSize  = 4
	codeLength = groups * groupSize
)

// Generator produces codes formatted XXXX-XXXX-XXXX, 60 bits of entropy.
type Generator interface {
	Generate() (string, error)
}

type RandomGenerator struct {
	src io.Reader
}

func NewGenerator() *RandomGenerator {
	return &RandomGenerator{src: rand.Reader}
}

func (g *RandomGenerator) Generate() (string, error) {
	var buf [codeLength]byte
	if _, err := io.ReadFull(g.src, buf[:]); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}

	var b strings.Builder
	b.Grow(codeLength + groups - 1)
	for i, v := range buf {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(alphabet[v&31])
	}
	return b.String(), nil
}

// Normalize folds scanner input onto the canonical form: upper case,
// ambiguous letters mapped to digits, dashes re-inserted.
func Normalize(code string) string {
	var raw strings.Builder
	for _, r := range strings.ToUpper(code) {
		switch r {
		case 'O':
			r = '0'
		case 'I', 'L':
			r = '1'
		case '-', ' ':
			continue
		}
		raw.WriteRune(r)
	}
	s := raw.String()
	if len(s) != codeLength {
		return s
	}
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12]
}

func Valid(code string) bool {
	if len(code) != codeLength+groups-1 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if i%(groupSize+1) == groupSize {
			if code[i] != '-' {
				return false
			}
			continue
		}
		if !strings.ContainsRune(alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
