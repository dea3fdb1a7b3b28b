package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	AccountIDs []uuid.UUID
	JTI        string
}

// AccessTokenClaims represents the typed JWT presented by clients. Tokens are
// issued by the identity service; this backend only verifies them.
type AccessTokenClaims struct {
	UserID     uuid.UUID   `json:"uid"`
	AccountIDs []uuid.UUID `json:"accounts"`
	jwt.RegisteredClaims
}

// HasAccount reports whether the bearer is a member of accountID.
func (c *AccessTokenClaims) HasAccount(accountID uuid.UUID) bool {
	if c == nil || accountID == uuid.Nil {
		return false
	}
	for _, id := range c.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}
