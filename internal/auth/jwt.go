package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// SubjectEnrichment identifies the enrichment workflow as token bearer.
const SubjectEnrichment = "enrichment"

var ErrInvalidToken = errors.New("invalid token")

func GenerateToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

// ParseToken verifies an HS256 token and returns its subject.
func ParseToken(secret []byte, tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
