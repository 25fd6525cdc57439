package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/errand/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	raw, err := tokens.Issue(&model.User{ID: "u-1", IsGuest: true, Role: "member"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ac, err := tokens.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ac.UserID != "u-1" || !ac.Guest || ac.Role != "member" {
		t.Errorf("identity = %+v", ac)
	}
}

func TestTokenRejections(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	raw, _ := tokens.Issue(&model.User{ID: "u-1", Role: "member"})

	other := NewTokens("other-secret", time.Hour)
	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret err = %v", err)
	}

	expired := NewTokens("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := expired.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired err = %v", err)
	}

	if _, err := tokens.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage err = %v", err)
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("short err = %v", err)
	}

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Error("wrong password accepted")
	}
	if CheckPassword("", "anything") {
		t.Error("empty hash matched")
	}
}
