package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims wraps a session token for transport. The JWT only proves the token
// came from us; the server-side session row decides validity.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenCodec signs session tokens as HS256 JWTs with the token in jti.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenCodec(secret, issuer string, now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{secret: []byte(secret), issuer: issuer, now: now}
}

func (c *TokenCodec) Encode(s *Session) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(s.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode returns the session token inside a signed JWT. Every failure,
// including a wrong algorithm, maps to ErrMalformedToken.
func (c *TokenCodec) Decode(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMalformedToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.Join(ErrMalformedToken, err)
		}
		return "", ErrMalformedToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", ErrMalformedToken
	}
	return claims.ID, nil
}
