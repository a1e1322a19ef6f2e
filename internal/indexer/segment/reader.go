package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
)

// Reader serves posting reads from one segment file. All read methods use
// ReadAt and are safe for concurrent use.
type Reader struct {
	file     *os.File
	filePath string
	size     int64
	header   SegmentHeader
	dict     []DictEntry
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("invalid segment file %s: too short (%d bytes)", path, size)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	if header.DictOffset+header.DictSize > size-int64(FooterSize) || header.DictSize < 0 {
		return nil, fmt.Errorf("invalid segment file %s: dictionary out of bounds", path)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(dictBytes); want != got {
		return nil, fmt.Errorf("dictionary checksum mismatch in %s: want %08x, got %08x", path, want, got)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if !sort.SliceIsSorted(dict, func(i, j int) bool { return dict[i].Term < dict[j].Term }) {
		sort.Slice(dict, func(i, j int) bool { return dict[i].Term < dict[j].Term })
	}
	return &Reader{
		file:     f,
		filePath: path,
		size:     size,
		header:   header,
		dict:     dict,
	}, nil
}

// Lookup returns the dictionary entry for term.
func (r *Reader) Lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the postings for term, or nil when the segment does not
// hold it.
func (r *Reader) Search(term string) (index.PostingList, error) {
	entry, ok := r.Lookup(term)
	if !ok {
		return nil, nil
	}
	return r.ReadPostings(entry)
}

// ReadPostings reads and decodes the postings an entry points at.
func (r *Reader) ReadPostings(entry DictEntry) (index.PostingList, error) {
	if entry.PostLen < 0 || entry.PostOffset < 0 || entry.PostOffset+int64(entry.PostLen) > r.header.PostSize {
		return nil, fmt.Errorf("%w: term %q range [%d,+%d) outside postings region in %s",
			apperrors.ErrMalformedPostings, entry.Term, entry.PostOffset, entry.PostLen, r.filePath)
	}
	buf := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(buf, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("%w: reading postings for %q: %v", apperrors.ErrStoreRead, entry.Term, err)
	}
	postings, err := DecodePostings(buf)
	if err != nil {
		return nil, fmt.Errorf("term %q in %s: %w", entry.Term, r.filePath, err)
	}
	return postings, nil
}

// DecodePostings unpacks fixed 8-byte records. A zero term frequency or a
// truncated record is reported as ErrMalformedPostings.
func DecodePostings(buf []byte) (index.PostingList, error) {
	if len(buf)%PostingSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", apperrors.ErrMalformedPostings, len(buf), PostingSize)
	}
	postings := make(index.PostingList, len(buf)/PostingSize)
	for i := range postings {
		off := i * PostingSize
		tf := binary.LittleEndian.Uint32(buf[off+4 : off+8])
		if tf == 0 {
			return nil, fmt.Errorf("%w: zero term frequency at record %d", apperrors.ErrMalformedPostings, i)
		}
		postings[i] = index.Posting{
			DocID: binary.LittleEndian.Uint32(buf[off : off+4]),
			TF:    tf,
		}
	}
	return postings, nil
}

// Dictionary returns the segment's offset directory, sorted by term.
func (r *Reader) Dictionary() []DictEntry {
	return r.dict
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
