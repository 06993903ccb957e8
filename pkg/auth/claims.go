package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// BuyerTokenPayload captures the data available when minting a buyer JWT.
type BuyerTokenPayload struct {
	UserID uuid.UUID
	Email  string
	JTI    string
}

// BuyerClaims represents the typed JWT carried by signed-in buyers.
type BuyerClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}
