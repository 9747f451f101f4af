package auth

import (
	"errors"
	"testing"
)

func TestSignAndParseRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	userID := "00000000-0000-0000-0000-000000000010"

	value := SignUserID(secret, userID)
	parsed, err := ParseUserID(secret, value)
	if err != nil {
		t.Fatalf("ParseUserID() error = %v", err)
	}
	if parsed != userID {
		t.Errorf("expected %s, got %s", userID, parsed)
	}
}

func TestParseRejectsTamperedID(t *testing.T) {
	secret := []byte("test-secret")
	value := SignUserID(secret, "user-a")
	tampered := "user-b." + value[len("user-a."):]

	if _, err := ParseUserID(secret, tampered); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie, got %v", err)
	}
}

func TestParseRejectsMalformedValue(t *testing.T) {
	secret := []byte("test-secret")
	for _, value := range []string{"", "no-dot", ".sig-only", "a.b.c"} {
		if _, err := ParseUserID(secret, value); !errors.Is(err, ErrInvalidCookie) {
			t.Errorf("value %q: expected ErrInvalidCookie, got %v", value, err)
		}
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	value := SignUserID([]byte("secret-one"), "user-a")
	if _, err := ParseUserID([]byte("secret-two"), value); !errors.Is(err, ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie, got %v", err)
	}
}
