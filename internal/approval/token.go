// Package approval issues and validates the signed, time-boxed tokens
// embedded in approval links. A token encodes exactly one action for one
// letter; single use is enforced by the lifecycle state guard, not here.
package approval

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Action is what the link holder asked for.
type Action string

const (
	ActionApprove Action = "approve"
	ActionSkip    Action = "skip"
)

// TokenManager handles issuing and validating approval tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlHours int) *TokenManager {
	if ttlHours <= 0 {
		ttlHours = 96
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlHours) * time.Hour}
}

// Claims describes the approval token payload.
type Claims struct {
	TicketID  string `json:"ticket_id"`
	AccountID string `json:"account_id"`
	LetterID  string `json:"letter_id"`
	Action    Action `json:"action"`
	jwt.RegisteredClaims
}

// Generate builds and signs a token for one approval action.
func (tm *TokenManager) Generate(ticketID, accountID, letterID string, action Action) (string, time.Time, error) {
	expiresAt := time.Now().Add(tm.ttl)
	claims := &Claims{
		TicketID:  ticketID,
		AccountID: accountID,
		LetterID:  letterID,
		Action:    action,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ticketID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Parse validates and returns claims.
func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Action != ActionApprove && claims.Action != ActionSkip {
		return nil, errors.New("unknown approval action")
	}
	return claims, nil
}
