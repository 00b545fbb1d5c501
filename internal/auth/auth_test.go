package auth

import "testing"

func TestServiceValidateAPIKey(t *testing.T) {
	service := NewService(Config{APIKey: "abc123"})
	user, err := service.ValidateAPIKey("abc123")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if user.ID != "admin" {
		t.Fatalf("expected admin user id, got %q", user.ID)
	}
}

func TestServiceValidateAPIKeyRejectsWrongKey(t *testing.T) {
	service := NewService(Config{APIKey: "abc123"})
	if _, err := service.ValidateAPIKey("wrong"); err != ErrInvalidKey {
		t.Fatalf("ValidateAPIKey() error = %v, want ErrInvalidKey", err)
	}
}

func TestServiceDisabledWithoutAPIKey(t *testing.T) {
	service := NewService(Config{})
	if service.Enabled() {
		t.Fatal("expected Enabled() to be false without an api key")
	}
	if _, err := service.ValidateAPIKey("anything"); err != ErrAuthDisabled {
		t.Fatalf("ValidateAPIKey() error = %v, want ErrAuthDisabled", err)
	}
}

func TestServiceGenerateAndValidateJWT(t *testing.T) {
	service := NewService(Config{APIKey: "abc123", JWTSecret: "secret"})
	token, err := service.GenerateJWT()
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}
	user, err := service.ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if user.ID != "admin" {
		t.Fatalf("expected admin user id, got %q", user.ID)
	}
}
