// Package auth verifies third-party identity tokens and derives the local
// api keys handed out in exchange for them.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// DefaultClockSkew is how far token timestamps may drift from local time.
const DefaultClockSkew = 20 * time.Second

// ErrInvalidToken is the root of every verification failure.
var ErrInvalidToken = errors.New("invalid identity token")

// tokenError is a parser rejection. It matches ErrInvalidToken and the
// jwt sentinel behind it, such as jwt.ErrTokenExpired.
type tokenError struct{ cause error }

func (e *tokenError) Error() string { return ErrInvalidToken.Error() + ": " + e.cause.Error() }
func (e *tokenError) Unwrap() []error { return []error{ErrInvalidToken, e.cause} }

// Identity is what a verified ID token says about its holder.
type Identity struct {
	UserID  string
	Email   string
	Name    string
	Picture string
}

// IDClaims is the JWT payload of an identity-provider token. UserID is a
// fallback for providers that do not put the user id in "sub".
type IDClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// VerifierConfig selects the accepted keys and claim checks. At least one
// of HMACSecret and PublicKeys must be set.
type VerifierConfig struct {
	// HMACSecret verifies HS256 tokens.
	HMACSecret []byte
	// PublicKeys verifies RS256 tokens by their "kid" header.
	PublicKeys map[string]*rsa.PublicKey
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
	// Now overrides the clock; tests only.
	Now func() time.Time
}

// Verifier checks identity-provider ID tokens. It is safe for concurrent
// use.
type Verifier struct {
	hmacSecret []byte
	publicKeys map[string]*rsa.PublicKey
	parser     *jwt.Parser
}

// NewVerifier builds a Verifier from cfg.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.HMACSecret) == 0 && len(cfg.PublicKeys) == 0 {
		return nil, errors.New("auth: no identity key material configured")
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = DefaultClockSkew
	}

	var methods []string
	if len(cfg.HMACSecret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if len(cfg.PublicKeys) > 0 {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(skew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &Verifier{
		hmacSecret: cfg.HMACSecret,
		publicKeys: cfg.PublicKeys,
		parser:     jwt.NewParser(opts...),
	}, nil
}

// Verify parses raw, checks its signature and claims and returns the
// identity it asserts.
func (v *Verifier) Verify(_ context.Context, raw string) (*Identity, error) {
	claims := &IDClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.keyFor); err != nil {
		return nil, &tokenError{cause: err}
	}

	id := &Identity{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}
	if id.UserID == "" {
		id.UserID = claims.UserID
	}
	if id.UserID == "" {
		return nil, errors.Wrap(ErrInvalidToken, "token has no subject")
	}
	if data.CheckUserID(id.UserID) != nil {
		return nil, errors.Wrap(ErrInvalidToken, "subject contains a NUL byte")
	}
	if id.Email == "" {
		return nil, errors.Wrap(ErrInvalidToken, "token has no email")
	}
	return id, nil
}

func (v *Verifier) keyFor(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return v.hmacSecret, nil
	case *jwt.SigningMethodRSA:
		kid, _ := token.Header["kid"].(string)
		key, ok := v.publicKeys[kid]
		if !ok {
			return nil, errors.Errorf("unknown key id %q", kid)
		}
		return key, nil
	default:
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// LoadPublicKeys reads a JSON object mapping key ids to PEM-encoded RSA
// public keys, the shape identity providers publish their x509 certs in.
func LoadPublicKeys(path string) (map[string]*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "auth: read public keys")
	}
	var pems map[string]string
	if err := json.Unmarshal(raw, &pems); err != nil {
		return nil, errors.Wrap(err, "auth: decode public keys")
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, errors.Wrapf(err, "auth: key %q", kid)
		}
		keys[kid] = key
	}
	return keys, nil
}
