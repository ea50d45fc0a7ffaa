package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		Sub:  "usr_1",
		Name: "Amina",
		Role: "reviewer",
		JTI:  "jti_1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	}

	token, err := IssueToken(secret, claims)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if strings.Count(token, ".") != 1 {
		t.Fatalf("expected payload.signature token, got %q", token)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed != claims {
		t.Errorf("claims = %+v, want %+v", parsed, claims)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{
		Sub: "usr_1", Role: "investor", JTI: "jti_1",
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := ParseToken([]byte("other-secret"), token); err != ErrInvalidToken {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseToken(secret, "not-a-token"); err != ErrInvalidToken {
		t.Errorf("malformed: err = %v, want ErrInvalidToken", err)
	}
	parts := strings.Split(token, ".")
	forged := parts[0] + "x." + parts[1]
	if _, err := ParseToken(secret, forged); err != ErrInvalidToken {
		t.Errorf("forged payload: err = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenExpiry(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{
		Sub: "usr_1", Role: "investor", JTI: "jti_1",
		Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ParseToken(secret, token); err != ErrExpiredToken {
		t.Errorf("err = %v, want ErrExpiredToken", err)
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("refresh-1")
	b := HashToken("refresh-1")
	c := HashToken("refresh-2")
	if a != b {
		t.Error("same input must hash identically")
	}
	if a == c {
		t.Error("different inputs must not collide")
	}
	if a == "refresh-1" {
		t.Error("hash must not be the plaintext")
	}
}
