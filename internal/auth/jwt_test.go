package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	token, err := mgr.GenerateToken(UserClaims{UserID: 42, Role: "admin"})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "admin" {
		t.Errorf("claims = %+v, want user 42 admin", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Hour)
	verifier := NewJWTManager("secret-b", time.Hour)

	token, err := issuer.GenerateToken(UserClaims{UserID: 1, Role: "viewer"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	mgr := NewJWTManager("test-secret", -time.Minute)

	token, err := mgr.GenerateToken(UserClaims{UserID: 1, Role: "viewer"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	if _, err := mgr.ValidateToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
