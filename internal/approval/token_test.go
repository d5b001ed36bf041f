package approval

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	tm := NewTokenManager("test-secret", 96)

	token, expiresAt, err := tm.Generate("t-1", "a-1", "l-1", ActionApprove)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(expiresAt) < 95*time.Hour {
		t.Errorf("expiresAt %v sooner than expected TTL", expiresAt)
	}

	claims, err := tm.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.TicketID != "t-1" || claims.AccountID != "a-1" || claims.LetterID != "l-1" {
		t.Errorf("claims = %+v, want ids t-1/a-1/l-1", claims)
	}
	if claims.Action != ActionApprove {
		t.Errorf("Action = %s, want approve", claims.Action)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", 96).Generate("t-1", "a-1", "l-1", ActionSkip)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := NewTokenManager("secret-b", 96).Parse(token); err == nil {
		t.Error("Parse accepted token signed with a different secret")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	tm := &TokenManager{secret: []byte("test-secret"), ttl: -time.Hour}
	token, _, err := tm.Generate("t-1", "a-1", "l-1", ActionApprove)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := tm.Parse(token); err == nil {
		t.Error("Parse accepted expired token")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 96)
	if _, err := tm.Parse("not-a-token"); err == nil {
		t.Error("Parse accepted malformed token")
	}
}
