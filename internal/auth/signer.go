package auth

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues ID tokens in the identity provider's format. The server
// never signs tokens itself; Signer exists for local development and tests.
type Signer struct {
	method   jwt.SigningMethod
	key      interface{}
	kid      string
	issuer   string
	audience string
	duration time.Duration
}

// NewHMACSigner returns a Signer producing HS256 tokens.
func NewHMACSigner(secret []byte, issuer, audience string, duration time.Duration) *Signer {
	return &Signer{
		method:   jwt.SigningMethodHS256,
		key:      secret,
		issuer:   issuer,
		audience: audience,
		duration: duration,
	}
}

// NewRSASigner returns a Signer producing RS256 tokens tagged with kid.
func NewRSASigner(key *rsa.PrivateKey, kid, issuer, audience string, duration time.Duration) *Signer {
	return &Signer{
		method:   jwt.SigningMethodRS256,
		key:      key,
		kid:      kid,
		issuer:   issuer,
		audience: audience,
		duration: duration,
	}
}

// Sign issues a token for id valid from now for the signer's duration.
func (s *Signer) Sign(id Identity, now time.Time) (string, error) {
	claims := &IDClaims{
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	token := jwt.NewWithClaims(s.method, claims)
	if s.kid != "" {
		token.Header["kid"] = s.kid
	}
	return token.SignedString(s.key)
}
