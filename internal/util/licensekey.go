package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	licenseKeyRawBytes = 16
	licenseKeyChars    = 16
	licenseKeyGroup    = 4
)

var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// KeyGenerator draws license keys of the form XXXX-XXXX-XXXX-XXXX.
// The zero value reads from crypto/rand.
type KeyGenerator struct {
	Rand io.Reader
}

func NewKeyGenerator(r io.Reader) *KeyGenerator {
	return &KeyGenerator{Rand: r}
}

func (g *KeyGenerator) source() io.Reader {
	if g == nil || g.Rand == nil {
		return rand.Reader
	}
	return g.Rand
}

func (g *KeyGenerator) generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(g.source(), b); err != nil {
		return nil, err
	}
	return b, nil
}

// Generate returns one freshly drawn key. Uniqueness is the caller's concern.
func (g *KeyGenerator) Generate() (string, error) {
	var sb strings.Builder
	for sb.Len() < licenseKeyChars {
		b, err := g.generateRandomBytes(licenseKeyRawBytes)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		str := base64.StdEncoding.EncodeToString(b)
		str = strings.NewReplacer("+", "", "/", "", "=", "").Replace(str)
		sb.WriteString(strings.ToUpper(str))
	}
	raw := sb.String()[:licenseKeyChars]

	groups := make([]string, 0, licenseKeyChars/licenseKeyGroup)
	for i := 0; i < licenseKeyChars; i += licenseKeyGroup {
		groups = append(groups, raw[i:i+licenseKeyGroup])
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeLicenseKey trims and uppercases user input.
func NormalizeLicenseKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func IsValidLicenseKey(key string) bool {
	return licenseKeyPattern.MatchString(key)
}
