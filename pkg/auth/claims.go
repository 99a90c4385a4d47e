package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	PrincipalID uuid.UUID
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients. Who the
// principal is and how they authenticated is owned by the platform's identity
// service; this subsystem only verifies the signature and issuer.
type AccessTokenClaims struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	jwt.RegisteredClaims
}
