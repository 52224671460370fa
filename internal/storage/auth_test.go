package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := hashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hashPassword error: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2$sha256$") {
		t.Fatalf("unexpected hash format %q", hash)
	}
	if err := verifyPassword(hash, "correct-horse"); err != nil {
		t.Fatalf("verifyPassword error: %v", err)
	}
	if err := verifyPassword(hash, "battery-staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	again, err := hashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hashPassword error: %v", err)
	}
	if again == hash {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	tests := map[string]string{
		"parts":      "pbkdf2$sha256$1000",
		"identifier": "bcrypt$sha256$1000$c2FsdA$a2V5",
		"iterations": "pbkdf2$sha256$zero$c2FsdA$a2V5",
		"salt":       "pbkdf2$sha256$1000$!!!$a2V5",
	}
	for name, hash := range tests {
		t.Run(name, func(t *testing.T) {
			err := verifyPassword(hash, "whatever")
			if err == nil || errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected format error, got %v", err)
			}
		})
	}
}

func TestAuthenticateUserRequiresPassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, CreateUserParams{Username: "reader", Password: "long-enough"}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, "reader", ""); err == nil {
		t.Fatal("expected empty password to be rejected")
	}
	if _, err := store.AuthenticateUser(ctx, "  READER ", "long-enough"); err != nil {
		t.Fatalf("expected trimmed case-insensitive login, got %v", err)
	}
}

func TestCreateUserRequiresUsername(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.CreateUser(context.Background(), CreateUserParams{Username: "  "}); err == nil {
		t.Fatal("expected blank username to be rejected")
	}
}

func TestUpdateUserPersistFailureLeavesDataUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user, err := store.CreateUser(ctx, CreateUserParams{Username: "reader", DisplayName: "Reader"})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	store.persistOverride = func(dataset) error {
		return errors.New("persist failed")
	}
	name := "Renamed"
	if _, err := store.UpdateUser(ctx, user.ID, UserUpdate{DisplayName: &name}); err == nil {
		t.Fatal("expected UpdateUser error when persist fails")
	}
	store.persistOverride = nil

	stored, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if stored.DisplayName != "Reader" {
		t.Fatalf("expected display name Reader, got %q", stored.DisplayName)
	}
}
