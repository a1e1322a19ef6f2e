package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

func writeFixture(t *testing.T) (string, *Reader) {
	t.Helper()
	dir := t.TempDir()
	w := NewWriter(dir)
	name, err := w.Write(index.FieldBody, 3, []index.TermEntry{
		{Term: "dog", Postings: index.PostingList{{DocID: 2, TF: 1}}},
		{Term: "cat", Postings: index.PostingList{{DocID: 1, TF: 3}, {DocID: 2, TF: 1}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "body_000003.spdx", name)

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return filepath.Join(dir, name), r
}

func TestWriteThenSearch(t *testing.T) {
	_, r := writeFixture(t)

	assert.Equal(t, 2, r.Terms())
	assert.Equal(t, uint32(2), r.DocCount())

	cat, err := r.Search("cat")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: 1, TF: 3}, {DocID: 2, TF: 1}}, cat)

	missing, err := r.Search("bird")
	require.NoError(t, err)
	assert.Nil(t, missing)

	entry, ok := r.Lookup("cat")
	require.True(t, ok)
	assert.Equal(t, 2, entry.DocFreq)
	assert.Equal(t, 16, entry.PostLen)
}

func TestDictionaryIsSorted(t *testing.T) {
	_, r := writeFixture(t)
	dict := r.Dictionary()
	require.Len(t, dict, 2)
	assert.Equal(t, "cat", dict[0].Term)
	assert.Equal(t, "dog", dict[1].Term)
}

func TestWriteEmptySegmentFails(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write(index.FieldTitle, 0, nil)
	assert.Error(t, err)
}

func TestOpenRejectsCorruptDictionary(t *testing.T) {
	path, r := writeFixture(t)
	r.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	dictStart := int(r.header.DictOffset)
	data[dictStart+2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "checksum")
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.spdx")
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize+FooterSize), 0o644))
	_, err := OpenReader(path)
	assert.ErrorContains(t, err, "magic")
}

func TestReadPostingsOutOfRange(t *testing.T) {
	_, r := writeFixture(t)
	_, err := r.ReadPostings(DictEntry{Term: "cat", PostOffset: 1 << 20, PostLen: 8})
	assert.ErrorIs(t, err, apperrors.ErrMalformedPostings)
}

func TestDecodePostings(t *testing.T) {
	want := index.PostingList{{DocID: 10, TF: 1}, {DocID: 4294967295, TF: 7}}
	got, err := DecodePostings(EncodePostings(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodePostings(make([]byte, 7))
	assert.ErrorIs(t, err, apperrors.ErrMalformedPostings)

	_, err = DecodePostings(make([]byte, 8))
	assert.ErrorIs(t, err, apperrors.ErrMalformedPostings, "zero tf must be rejected")
}
