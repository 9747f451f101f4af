// Package auth signs and verifies the dev-user cookie. There is no real
// authentication in this product; the cookie carries a user id chosen via
// the user-switch endpoint, signed so a tampered id falls back to the
// default user instead of impersonating an arbitrary row.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidCookie = errors.New("invalid dev-user cookie")

// SignUserID produces the cookie value "userID.signature".
func SignUserID(secret []byte, userID string) string {
	return userID + "." + sign(secret, userID)
}

// ParseUserID verifies the cookie value and returns the embedded user id.
func ParseUserID(secret []byte, value string) (string, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 || parts[0] == "" {
		return "", ErrInvalidCookie
	}
	expected := sign(secret, parts[0])
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return "", ErrInvalidCookie
	}
	return parts[0], nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
