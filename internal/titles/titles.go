// Package titles maps document ids to their titles for response rendering.
// Titles are kept in a bolt file written by the offline indexer and opened
// read-only by the searcher.
package titles

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/boltdb/bolt"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
)

var bucketName = []byte("titles")

// Lookup resolves a document id to its title.
type Lookup interface {
	Title(id index.DocID) (string, bool)
}

// Resolve returns the title of id, falling back to the decimal id string.
func Resolve(l Lookup, id index.DocID) string {
	if l != nil {
		if title, ok := l.Title(id); ok {
			return title
		}
	}
	return strconv.FormatUint(uint64(id), 10)
}

func key(id index.DocID) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], id)
	return k[:]
}

// Store is a read-only bolt-backed Lookup.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens an existing title file read-only.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("opening title store %s: %w", path, err)
	}
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "titles"),
	}, nil
}

func (s *Store) Title(id index.DocID) (string, bool) {
	var title string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get(key(id)); v != nil {
			title = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("title lookup failed", "doc_id", id, "error", err)
		return "", false
	}
	return title, found
}

// Count returns the number of stored titles.
func (s *Store) Count() int {
	n := 0
	s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketName); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Writer batches titles into a bolt file.
type Writer struct {
	db        *bolt.DB
	pending   map[index.DocID]string
	batchSize int
}

// Create opens (or creates) a title file for writing.
func Create(path string, batchSize int) (*Writer, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("creating title store %s: %w", path, err)
	}
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &Writer{db: db, pending: make(map[index.DocID]string, batchSize), batchSize: batchSize}, nil
}

func (w *Writer) Put(id index.DocID, title string) error {
	w.pending[id] = title
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	err := w.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		for id, title := range w.pending {
			if err := b.Put(key(id), []byte(title)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing titles: %w", err)
	}
	clear(w.pending)
	return nil
}

// Close flushes pending titles and closes the file.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	if err := w.db.Close(); err != nil {
		return err
	}
	return flushErr
}

// Static is an in-memory Lookup.
type Static map[index.DocID]string

func (s Static) Title(id index.DocID) (string, bool) {
	t, ok := s[id]
	return t, ok
}
