package pebblestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// PutAPIKey stores c. Earlier keys of the same user stay valid until they
// expire.
func (s *Store) PutAPIKey(_ context.Context, c data.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	if err := setJSON(b, apiKeyKey(c.Key), c); err != nil {
		_ = b.Close()
		return errors.Wrap(err, "pebbleStore.PutAPIKey")
	}
	return s.commit(b, "pebbleStore.PutAPIKey.Commit")
}

// UserIDByAPIKey returns the owner of key if the key is still valid at now.
func (s *Store) UserIDByAPIKey(_ context.Context, key string, now time.Time) (string, error) {
	var c data.Credential
	if err := s.getJSON(apiKeyKey(key), &c); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", data.ErrNotFound
		}
		return "", errors.Wrap(err, "pebbleStore.UserIDByAPIKey")
	}
	if !c.Valid(now) {
		return "", data.ErrNotFound
	}
	return c.UserID, nil
}

// PutPushToken registers t, moving it to a new owner if it changed hands.
func (s *Store) PutPushToken(_ context.Context, t data.PushToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	var prev data.PushToken
	err := s.getJSON(tokenKey(t.Token), &prev)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = b.Close()
		return errors.Wrap(err, "pebbleStore.PutPushToken.get")
	case prev.UserID != t.UserID:
		if err := b.Delete(userTokenKey(prev.UserID, t.Token), nil); err != nil {
			_ = b.Close()
			return errors.Wrap(err, "pebbleStore.PutPushToken.dropOwner")
		}
	}
	if err := setJSON(b, tokenKey(t.Token), t); err != nil {
		_ = b.Close()
		return errors.Wrap(err, "pebbleStore.PutPushToken.set")
	}
	if err := b.Set(userTokenKey(t.UserID, t.Token), nil, nil); err != nil {
		_ = b.Close()
		return errors.Wrap(err, "pebbleStore.PutPushToken.index")
	}
	return s.commit(b, "pebbleStore.PutPushToken.Commit")
}

// PushTokens lists the tokens of userID that are valid at now.
func (s *Store) PushTokens(_ context.Context, userID string, now time.Time) ([]string, error) {
	prefix := userTokenPrefix(userID)
	var candidates []string
	err := s.scan(prefix, func(key, _ []byte) error {
		candidates = append(candidates, string(key[len(prefix):]))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "pebbleStore.PushTokens.scan")
	}

	tokens := make([]string, 0, len(candidates))
	for _, tok := range candidates {
		var t data.PushToken
		if err := s.getJSON(tokenKey(tok), &t); err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				continue
			}
			return nil, errors.Wrap(err, "pebbleStore.PushTokens.get")
		}
		if t.UserID == userID && t.Valid(now) {
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

// SweepExpired deletes api keys and push tokens whose expiry is not after
// now. It is safe to run at any time.
func (s *Store) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	removed := 0

	err := s.scan(apiKeyPrefix, func(key, value []byte) error {
		var c data.Credential
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		if !c.Valid(now) {
			removed++
			return b.Delete(append([]byte(nil), key...), nil)
		}
		return nil
	})
	if err != nil {
		_ = b.Close()
		return 0, errors.Wrap(err, "pebbleStore.SweepExpired.apiKeys")
	}

	err = s.scan(tokenPrefix, func(key, value []byte) error {
		var t data.PushToken
		if err := json.Unmarshal(value, &t); err != nil {
			return err
		}
		if t.Valid(now) {
			return nil
		}
		removed++
		if err := b.Delete(append([]byte(nil), key...), nil); err != nil {
			return err
		}
		return b.Delete(userTokenKey(t.UserID, t.Token), nil)
	})
	if err != nil {
		_ = b.Close()
		return 0, errors.Wrap(err, "pebbleStore.SweepExpired.pushTokens")
	}

	if removed == 0 {
		return 0, b.Close()
	}
	if err := s.commit(b, "pebbleStore.SweepExpired.Commit"); err != nil {
		return 0, err
	}
	log.Debug().Int("removed", removed).Msg("pebble sweep committed")
	return removed, nil
}
