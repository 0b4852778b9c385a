// Package pebblestore is the embedded storage backend. All writes are
// serialised by one mutex and land as a single atomic batch, so the
// append-only log and its indexes never disagree.
package pebblestore

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// Store implements data.Store on top of a pebble database.
type Store struct {
	db *pebble.DB

	// mu is the single-writer lock around every read-modify-write.
	mu  sync.Mutex
	seq uint64
}

var _ data.Store = (*Store)(nil)

// Open opens (or creates) a pebble database at path.
func Open(path string) (*Store, error) {
	return open(path, &pebble.Options{})
}

// OpenInMemory opens a store backed by an in-memory filesystem.
func OpenInMemory() (*Store, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(path string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "pebbleStore.Open")
	}
	s := &Store{db: db}

	v, err := s.get(seqKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, errors.Wrap(err, "pebbleStore.Open.loadSeq")
	default:
		s.seq, err = strconv.ParseUint(string(v), 10, 64)
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "pebbleStore.Open.parseSeq")
		}
	}
	log.Info().Str("path", path).Uint64("seq", s.seq).Msg("pebble store opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

// get returns a copy of the value at key.
func (s *Store) get(key []byte) ([]byte, error) {
	return readValue(s.db.Get(key))
}

func readValue(v []byte, closer interface{ Close() error }, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	return out, closer.Close()
}

func (s *Store) getJSON(key []byte, dst any) error {
	v, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(v, dst)
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, raw, nil)
}

// scan calls fn for every key under prefix, in key order.
func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	return iter.Close()
}

func (s *Store) commit(b *pebble.Batch, op string) error {
	if err := b.Commit(pebble.Sync); err != nil {
		_ = b.Close()
		return errors.Wrap(err, op)
	}
	return b.Close()
}
