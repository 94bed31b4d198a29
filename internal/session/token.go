package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "userhub"

var ErrInvalidToken = errors.New("invalid session token")

type tokenClaims struct {
	jwt.RegisteredClaims
}

// Signer wraps session ids in HS256 tokens so a client cannot forge or
// guess an id the server never issued.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(id string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse returns the session id carried by raw.
func (s *Signer) Parse(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())

	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", ErrInvalidToken
	}

	return claims.ID, nil
}
