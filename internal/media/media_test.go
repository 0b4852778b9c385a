package media

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/relaychat/internal/apperr"
)

func TestPutTwiceSameContent(t *testing.T) {
	s, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	content := []byte("\x89PNG\r\n\x1a\n not really a png \x00\xff")
	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])

	for i := 0; i < 2; i++ {
		hash, n, err := s.Put(bytes.NewReader(content))
		require.NoError(t, err)
		assert.Equal(t, want, hash)
		assert.Equal(t, int64(len(content)), n)

		f, err := s.Open(hash)
		require.NoError(t, err)
		got, err := io.ReadAll(f)
		_ = f.Close()
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}

	// no temp files left behind
	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPutTooLarge(t *testing.T) {
	s, err := New(t.TempDir(), 8)
	require.NoError(t, err)

	_, _, err = s.Put(strings.NewReader("123456789"))
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	_, _, err = s.Put(strings.NewReader("12345678"))
	assert.NoError(t, err)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenErrors(t *testing.T) {
	s, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = s.Open(strings.Repeat("a", 64))
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	for _, bad := range []string{"", "../etc/passwd", strings.Repeat("A", 64), strings.Repeat("a", 63)} {
		_, err = s.Open(bad)
		assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err), "hash %q", bad)
	}
}
