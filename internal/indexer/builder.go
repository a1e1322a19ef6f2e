package indexer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/tokenizer"
)

// Document is one corpus record as consumed by the builder. Anchors holds
// the text of links pointing at the document.
type Document struct {
	ID      index.DocID `json:"id"`
	Title   string      `json:"title"`
	Body    string      `json:"body"`
	Anchors []string    `json:"anchors"`
}

// BuilderConfig controls shard fan-out and flush size.
type BuilderConfig struct {
	DataDir        string
	Shards         int
	FlushThreshold int64
}

// Builder tokenizes documents into per-field memory indexes and flushes them
// as sharded segment files named by field prefix.
type Builder struct {
	cfg     BuilderConfig
	writer  *segment.Writer
	fields  map[index.Field]*index.MemoryIndex
	nextSeq map[index.Field]int
	written []string
	logger  *slog.Logger
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	b := &Builder{
		cfg:     cfg,
		writer:  segment.NewWriter(cfg.DataDir),
		fields:  make(map[index.Field]*index.MemoryIndex, len(index.Fields)),
		nextSeq: make(map[index.Field]int, len(index.Fields)),
		logger:  slog.Default().With("component", "index-builder"),
	}
	for _, f := range index.Fields {
		b.fields[f] = index.NewMemoryIndex()
	}
	return b
}

// AddDocument indexes the document's three fields, flushing any field whose
// memory index has grown past the threshold.
func (b *Builder) AddDocument(doc Document) error {
	b.fields[index.FieldBody].AddTerms(doc.ID, tokenizer.Tokenize(doc.Body))
	b.fields[index.FieldTitle].AddTerms(doc.ID, tokenizer.Tokenize(doc.Title))
	if len(doc.Anchors) > 0 {
		b.fields[index.FieldAnchor].AddTerms(doc.ID, tokenizer.Tokenize(strings.Join(doc.Anchors, " ")))
	}

	if b.cfg.FlushThreshold <= 0 {
		return nil
	}
	for _, f := range index.Fields {
		if b.fields[f].Size() >= b.cfg.FlushThreshold {
			b.logger.Info("memory index reached max size, flushing to disk",
				"field", f,
				"size", b.fields[f].Size(),
				"threshold", b.cfg.FlushThreshold,
			)
			if err := b.flushField(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes every non-empty field index to disk.
func (b *Builder) Flush() error {
	for _, f := range index.Fields {
		if err := b.flushField(f); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) flushField(field index.Field) error {
	mem := b.fields[field]
	if mem.DocCount() == 0 {
		return nil
	}
	for shard, entries := range mem.Partition(b.cfg.Shards) {
		if len(entries) == 0 {
			continue
		}
		seq := b.nextSeq[field]
		name, err := b.writer.Write(field, seq, entries)
		if err != nil {
			return fmt.Errorf("writing %s shard %d: %w", field, shard, err)
		}
		b.nextSeq[field] = seq + 1
		b.written = append(b.written, name)
		b.logger.Info("segment flushed",
			"segment", name,
			"shard", shard,
			"terms", len(entries),
		)
	}
	mem.Reset()
	return nil
}

// Written returns the names of all segment files produced so far.
func (b *Builder) Written() []string {
	return b.written
}
