package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	token, err := GenerateToken("user-1", "joe@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "user-1" || claims.Email != "joe@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "first-secret")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	token, err := GenerateToken("user-1", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv(secretEnvVariable, "second-secret")
	ResetSecretCache()

	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestTokenRejectsGarbage(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAndValidate(token); err != ErrInvalidToken {
			t.Errorf("ParseAndValidate(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestGenerateTokenRequiresConfig(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	if _, err := GenerateToken("user-1", "", time.Hour); err == nil {
		t.Fatal("expected error with no signing secret configured")
	}
}

func TestGenerateTokenValidatesInput(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	if _, err := GenerateToken("", "x@example.com", time.Hour); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := GenerateToken("user-1", "", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
