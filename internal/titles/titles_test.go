package titles

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAndStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.db")

	w, err := Create(path, 2)
	require.NoError(t, err)
	require.NoError(t, w.Put(1, "Barack Obama"))
	require.NoError(t, w.Put(2, "Python (programming language)"))
	require.NoError(t, w.Put(3, "Cat"))
	require.NoError(t, w.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	title, ok := s.Title(2)
	require.True(t, ok)
	assert.Equal(t, "Python (programming language)", title)

	_, ok = s.Title(99)
	assert.False(t, ok)
	assert.Equal(t, 3, s.Count())

	assert.Equal(t, "Cat", Resolve(s, 3))
	assert.Equal(t, "99", Resolve(s, 99))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestStaticAndNilLookup(t *testing.T) {
	s := Static{7: "Seven"}
	assert.Equal(t, "Seven", Resolve(s, 7))
	assert.Equal(t, "8", Resolve(s, 8))
	assert.Equal(t, "42", Resolve(nil, 42))
}
