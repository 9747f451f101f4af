package util

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.NewString()
}

// ContentHash returns a short content fingerprint used for change detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)[:16]
}
