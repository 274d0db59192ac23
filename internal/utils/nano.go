package utils

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Kiosk session ids travel in a cookie, so the alphabet stays URL safe
// without escaping.
const (
	SessionIDLength   = 32
	sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

func NewSessionID() (string, error) {
	id, err := gonanoid.Generate(sessionIDAlphabet, SessionIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return id, nil
}

// ValidSessionID reports whether id could have come from NewSessionID.
func ValidSessionID(id string) bool {
	if len(id) != SessionIDLength {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune(sessionIDAlphabet, r) {
			return false
		}
	}
	return true
}
