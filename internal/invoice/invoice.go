package invoice

import (
	"crypto/rand"
	"strings"

	pkgerrors "github.com/shopvibe/shopvibe-backend/pkg/errors"
)

const (
	// Prefix starts every invoice number.
	Prefix = "INV-"
	// CodeLength is the number of random characters after the prefix.
	CodeLength = 5

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces candidate invoice numbers. Uniqueness is enforced by the
// orders table constraint; callers retry on collision.
type Generator interface {
	Generate() (string, error)
}

type generator struct{}

// NewGenerator returns the default random invoice number generator.
func NewGenerator() Generator {
	return generator{}
}

// Generate returns a fresh candidate of the form INV-XXXXX.
func (generator) Generate() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate invoice number")
	}
	var sb strings.Builder
	sb.WriteString(Prefix)
	for _, b := range buf {
		sb.WriteByte(alphabet[int(b)%len(alphabet)])
	}
	return sb.String(), nil
}

// IsWellFormed reports whether value is a complete invoice number.
func IsWellFormed(value string) bool {
	if len(value) != len(Prefix)+CodeLength {
		return false
	}
	if !strings.HasPrefix(value, Prefix) {
		return false
	}
	for _, r := range value[len(Prefix):] {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}

// Normalize uppercases and trims a caller-supplied invoice reference.
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
