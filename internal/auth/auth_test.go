package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens("test-secret", func() time.Time { return now })

	token, err := tokens.CreateToken(42, PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	userID, err := tokens.ParseToken(token, PurposeSession)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != 42 {
		t.Errorf("user id = %d, want 42", userID)
	}
}

func TestTokenPurposeMismatch(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens("test-secret", func() time.Time { return now })

	token, err := tokens.CreateToken(42, PurposeReset, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tokens.ParseToken(token, PurposeSession); err == nil {
		t.Errorf("reset token accepted as session token")
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens := NewTokens("test-secret", clock)

	token, err := tokens.CreateToken(42, PurposeSession, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := tokens.ParseToken(token, PurposeSession); err == nil {
		t.Errorf("expired token accepted")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	issued := NewTokens("secret-a", clock)
	token, err := issued.CreateToken(42, PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	other := NewTokens("secret-b", clock)
	if _, err := other.ParseToken(token, PurposeSession); err == nil {
		t.Errorf("token verified under a different secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hashed, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hashed == "correct horse battery staple" {
		t.Fatalf("password stored in the clear")
	}
	if !CheckPassword(hashed, "correct horse battery staple") {
		t.Errorf("correct password rejected")
	}
	if CheckPassword(hashed, "wrong password") {
		t.Errorf("wrong password accepted")
	}
}
