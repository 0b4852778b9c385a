package pebblestore

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// UpsertUser creates or overwrites the profile of u.UserID and keeps the
// email index pointing at it.
func (s *Store) UpsertUser(_ context.Context, u data.User) error {
	if err := data.CheckUserID(u.UserID); err != nil {
		return errors.Wrapf(err, "pebbleStore.UpsertUser: %q", u.UserID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.get(emailKey(u.Email))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return errors.Wrap(err, "pebbleStore.UpsertUser.emailIndex")
	case string(owner) != u.UserID:
		return errors.Wrap(data.ErrEmailTaken, "pebbleStore.UpsertUser")
	}

	b := s.db.NewBatch()
	var prev data.User
	err = s.getJSON(userKey(u.UserID), &prev)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = b.Close()
		return errors.Wrap(err, "pebbleStore.UpsertUser.get")
	case prev.Email != u.Email:
		if err := b.Delete(emailKey(prev.Email), nil); err != nil {
			_ = b.Close()
			return errors.Wrap(err, "pebbleStore.UpsertUser.dropEmail")
		}
	}

	if err := setJSON(b, userKey(u.UserID), u); err != nil {
		_ = b.Close()
		return errors.Wrap(err, "pebbleStore.UpsertUser.set")
	}
	if err := b.Set(emailKey(u.Email), []byte(u.UserID), nil); err != nil {
		_ = b.Close()
		return errors.Wrap(err, "pebbleStore.UpsertUser.setEmail")
	}
	return s.commit(b, "pebbleStore.UpsertUser.Commit")
}

// GetUser returns the profile of userID.
func (s *Store) GetUser(_ context.Context, userID string) (*data.User, error) {
	var u data.User
	if err := s.getJSON(userKey(userID), &u); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, data.ErrNotFound
		}
		return nil, errors.Wrap(err, "pebbleStore.GetUser")
	}
	return &u, nil
}

// GetUserByEmail resolves email through the email index.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*data.User, error) {
	id, err := s.get(emailKey(email))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, data.ErrNotFound
		}
		return nil, errors.Wrap(err, "pebbleStore.GetUserByEmail")
	}
	return s.GetUser(ctx, string(id))
}

func (s *Store) userExists(userID string) (bool, error) {
	_, err := s.get(userKey(userID))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
