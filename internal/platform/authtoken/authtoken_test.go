package authtoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/upkeephq/upkeep/internal/platform/errors"
)

const (
	testIssuer   = "https://id.upkeep.test"
	testAudience = "upkeep-api"
)

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func mintToken(t *testing.T, priv ed25519.PrivateKey, mutate func(*jwt.RegisteredClaims, *map[string]any)) string {
	t.Helper()
	registered := jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		Subject:   "tenant-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	extra := map[string]any{"email": "Tenant@Example.com"}
	if mutate != nil {
		mutate(&registered, &extra)
	}

	claims := jwt.MapClaims{
		"iss": registered.Issuer,
		"aud": []string(registered.Audience),
		"sub": registered.Subject,
	}
	if registered.ExpiresAt != nil {
		claims["exp"] = registered.ExpiresAt.Unix()
	}
	if registered.IssuedAt != nil {
		claims["iat"] = registered.IssuedAt.Unix()
	}
	for key, value := range extra {
		claims[key] = value
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func testConfig(pub ed25519.PublicKey) Config {
	return Config{
		Issuer:   testIssuer,
		Audience: testAudience,
		Key:      pub,
		Now:      time.Now,
	}
}

func TestVerifyValidToken(t *testing.T) {
	t.Parallel()

	pub, priv := newKeyPair(t)
	token := mintToken(t, priv, nil)

	claims, err := Verify(token, testConfig(pub))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "tenant-1" {
		t.Fatalf("UserID = %q, want %q", claims.UserID, "tenant-1")
	}
	if claims.Email != "tenant@example.com" {
		t.Fatalf("Email = %q, want lower-cased %q", claims.Email, "tenant@example.com")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	t.Parallel()

	_, priv := newKeyPair(t)
	otherPub, _ := newKeyPair(t)
	token := mintToken(t, priv, nil)

	_, err := Verify(token, testConfig(otherPub))
	if !errors.Is(err, apperrors.New(apperrors.CodeUnauthenticated, "")) {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	pub, priv := newKeyPair(t)
	token := mintToken(t, priv, func(claims *jwt.RegisteredClaims, _ *map[string]any) {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	})

	if _, err := Verify(token, testConfig(pub)); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	t.Parallel()

	pub, priv := newKeyPair(t)
	token := mintToken(t, priv, func(claims *jwt.RegisteredClaims, _ *map[string]any) {
		claims.Issuer = "https://other.test"
	})

	if _, err := Verify(token, testConfig(pub)); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestVerifyRejectsMissingEmail(t *testing.T) {
	t.Parallel()

	pub, priv := newKeyPair(t)
	token := mintToken(t, priv, func(_ *jwt.RegisteredClaims, extra *map[string]any) {
		delete(*extra, "email")
	})

	if _, err := Verify(token, testConfig(pub)); err == nil {
		t.Fatal("expected missing email error")
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	pub, _ := newKeyPair(t)
	if _, err := Verify("", testConfig(pub)); err == nil {
		t.Fatal("expected empty token error")
	}
}
