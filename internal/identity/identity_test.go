package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestVerify_RoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	want := &Identity{
		UserID:      uuid.New(),
		DisplayName: "Asha",
		Year:        "2nd",
		Gender:      "Female",
		IsAdmin:     false,
	}

	tok, err := v.Sign(want, time.Now().Add(time.Hour).Unix())
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	got, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.UserID != want.UserID {
		t.Errorf("UserID = %s, want %s", got.UserID, want.UserID)
	}
	if got.DisplayName != want.DisplayName || got.Year != want.Year || got.Gender != want.Gender {
		t.Errorf("profile mismatch: %+v", got)
	}
	if got.IsAdmin {
		t.Error("IsAdmin should be false")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewVerifier("right").Sign(&Identity{UserID: uuid.New()},
		time.Now().Add(time.Hour).Unix())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewVerifier("wrong").Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: got %v, want ErrInvalidToken", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Sign(&Identity{UserID: uuid.New()}, time.Now().Add(-time.Hour).Unix())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: got %v, want ErrInvalidToken", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	v := NewVerifier("secret")
	for _, tok := range []string{"", "not.a.token", "a.b"} {
		if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q): got %v, want ErrInvalidToken", tok, err)
		}
	}
}
