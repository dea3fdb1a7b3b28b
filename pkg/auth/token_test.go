package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/google/uuid"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "fueltax"}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()
	accountID := uuid.New()

	token, err := MintAccessToken(testJWT, now, 30*time.Minute, AccessTokenPayload{
		UserID:     userID,
		AccountIDs: []uuid.UUID{accountID},
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(testJWT, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected uid %s, got %s", userID, claims.UserID)
	}
	if !claims.HasAccount(accountID) {
		t.Fatalf("expected membership in %s", accountID)
	}
	if claims.HasAccount(uuid.New()) || claims.HasAccount(uuid.Nil) {
		t.Fatal("unexpected membership")
	}
	if claims.Issuer != testJWT.Issuer || claims.ID == "" {
		t.Fatalf("registered claims not populated: %+v", claims.RegisteredClaims)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), time.Minute, AccessTokenPayload{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(testJWT, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseAccessTokenRejectsWrongSecretAndIssuer(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now(), time.Minute, AccessTokenPayload{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "other", Issuer: "fueltax"}, token); err == nil {
		t.Fatal("expected bad signature error")
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, token); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	now := time.Now()
	if _, err := MintAccessToken(config.JWTConfig{Issuer: "x"}, now, time.Minute, AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := MintAccessToken(testJWT, now, 0, AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, err := MintAccessToken(testJWT, now, time.Minute, AccessTokenPayload{}); err == nil {
		t.Fatal("expected missing user error")
	}
}
