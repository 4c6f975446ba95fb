package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
)

// Verifier checks bearer tokens issued by the authentication collaborator.
// The core trusts the verified identity for creator-only and
// participant-only checks.
type Verifier struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewVerifier(secret string, tokenTTL time.Duration) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Verify parses and validates a token, returning the subject identity.
func (v *Verifier) Verify(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, apperrors.Permission("invalid_token", "invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, apperrors.Permission("invalid_token", "malformed token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, apperrors.Permission("invalid_token", "token has no subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, apperrors.Permission("invalid_token", "token subject is not an identity")
	}
	return userID, nil
}

// Issue mints a token for a user. Used by tests and local tooling; in
// production the authentication collaborator issues tokens.
func (v *Verifier) Issue(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": now.Unix(),
		"exp": now.Add(v.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
