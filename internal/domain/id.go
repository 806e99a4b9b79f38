package domain

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for application-owned entities.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ShortID returns the random tail of a UUIDv4 without dashes, suitable as a
// collision-resistant name suffix.
func ShortID(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(s) {
		return s
	}
	return s[len(s)-n:]
}
