package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

const apiKeyBytes = 32

// Issuer derives local api keys from verified identity tokens.
type Issuer struct {
	secret []byte
}

// NewIssuer returns an Issuer keyed by the application secret.
func NewIssuer(appSecret string) *Issuer {
	return &Issuer{secret: []byte(appSecret)}
}

// Issue derives the api key for idToken and email and stamps it with the
// fixed credential lifetime. The same inputs always yield the same key.
func (i *Issuer) Issue(idToken, email, userID string, now time.Time) (data.Credential, error) {
	r := hkdf.New(sha256.New, []byte(idToken), i.secret, []byte(email))
	key := make([]byte, apiKeyBytes)
	if _, err := io.ReadFull(r, key); err != nil {
		return data.Credential{}, errors.Wrap(err, "auth: derive api key")
	}
	return data.Credential{
		Key:       hex.EncodeToString(key),
		UserID:    userID,
		ExpiresAt: now.Add(data.CredentialTTL),
	}, nil
}
