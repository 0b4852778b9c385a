// Package media stores uploaded images under the SHA-256 of their content.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/relaychat/internal/apperr"
)

// Store is a content-addressed directory of blobs. Identical uploads land
// on the same name, so a repeated upload rewrites the same bytes.
type Store struct {
	dir      string
	maxBytes int64
}

// New creates dir if needed. maxBytes <= 0 disables the size limit.
func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Internal("create media dir", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes is the upload limit, 0 when unlimited.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Put streams r to disk and returns its hex digest and size. The blob is
// written to a temp file first and renamed into place, so readers never see
// a partial file.
func (s *Store) Put(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", 0, apperr.Internal("create temp file", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, apperr.Internal("write upload", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return "", 0, apperr.Invalid("file exceeds " + humanize.IBytes(uint64(s.maxBytes)))
	}

	hash := hex.EncodeToString(h.Sum(nil))
	if err := os.Rename(tmpName, s.path(hash)); err != nil {
		return "", 0, apperr.Internal("store upload", err)
	}
	committed = true

	log.Debug().Str("hash", hash).Str("size", humanize.IBytes(uint64(n))).Msg("image stored")
	return hash, n, nil
}

// Open returns the blob named hash. The caller closes it.
func (s *Store) Open(hash string) (*os.File, error) {
	if !ValidHash(hash) {
		return nil, apperr.Invalid("malformed image hash")
	}
	f, err := os.Open(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("image not found")
		}
		return nil, apperr.Internal("open image", err)
	}
	return f, nil
}

func (s *Store) path(hash string) string {
	return filepath.Join(s.dir, hash)
}

// ValidHash reports whether hash is a lower-case hex SHA-256 digest.
func ValidHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
