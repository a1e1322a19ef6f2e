package index

import (
	"context"
	"sort"
	"sync"

	"github.com/huichen/murmur"
)

// MemoryIndex accumulates one field's postings in memory before they are
// written out as segments.
type MemoryIndex struct {
	mu    sync.RWMutex
	index map[string]map[DocID]uint32
	docs  map[DocID]struct{}
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[DocID]uint32),
		docs:  make(map[DocID]struct{}),
	}
}

// AddTerms records every occurrence of terms in docID. Calling it twice for
// the same document adds to the existing frequencies.
func (m *MemoryIndex) AddTerms(docID DocID, terms []string) {
	if len(terms) == 0 {
		return
	}
	counts := make(map[string]uint32, len(terms))
	for _, t := range terms {
		counts[t]++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for term, tf := range counts {
		docs, exists := m.index[term]
		if !exists {
			docs = make(map[DocID]uint32)
			m.index[term] = docs
		}
		if _, seen := docs[docID]; !seen {
			m.size += int64(len(term)) + 8
		}
		docs[docID] += tf
	}
	m.docs[docID] = struct{}{}
}

func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	return toPostingList(docs)
}

// DocumentFrequency returns the number of documents holding term.
func (m *MemoryIndex) DocumentFrequency(term string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return 0, false
	}
	return len(docs), true
}

// Snapshot returns all term entries sorted by term, postings sorted by doc.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: toPostingList(docs),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Partition splits the snapshot into shards buckets by murmur3 hash of the
// term, so every term lands in exactly one shard of a flush.
func (m *MemoryIndex) Partition(shards int) [][]TermEntry {
	if shards <= 0 {
		shards = 1
	}
	parts := make([][]TermEntry, shards)
	for _, entry := range m.Snapshot() {
		shard := ShardOf(entry.Term, shards)
		parts[shard] = append(parts[shard], entry)
	}
	return parts
}

// ShardOf returns the shard a term is assigned to.
func ShardOf(term string, shards int) int {
	return int(murmur.Murmur3([]byte(term)) % uint32(shards))
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[DocID]uint32)
	m.docs = make(map[DocID]struct{})
	m.size = 0
}

func toPostingList(docs map[DocID]uint32) PostingList {
	result := make(PostingList, 0, len(docs))
	for docID, tf := range docs {
		result = append(result, Posting{DocID: docID, TF: tf})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// MemoryStore is an in-memory PostingStore over one MemoryIndex per field.
// Fields without an index behave as empty vocabularies.
type MemoryStore map[Field]*MemoryIndex

// NewMemoryStore returns a store with an empty index for every field.
func NewMemoryStore() MemoryStore {
	s := make(MemoryStore, len(Fields))
	for _, f := range Fields {
		s[f] = NewMemoryIndex()
	}
	return s
}

func (s MemoryStore) DocumentFrequency(field Field, term string) (int, bool) {
	idx, ok := s[field]
	if !ok {
		return 0, false
	}
	return idx.DocumentFrequency(term)
}

func (s MemoryStore) PostingList(ctx context.Context, field Field, term string) (PostingList, error) {
	idx, ok := s[field]
	if !ok {
		return nil, nil
	}
	return idx.Search(term), nil
}
