// Command indexer builds the field segments and title store the searcher
// loads, from a JSON-lines corpus dump.
//
// Usage:
//
//	go run ./cmd/indexer -input corpus.jsonl [-config configs/development.yaml]
package main

import (
	"compress/gzip"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/titles"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "", "JSON-lines corpus (.jsonl or .jsonl.gz)")
	strict := flag.Bool("strict", false, "stop at the first malformed document")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *input == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Index, *input, *strict); err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.IndexConfig, input string, strict bool) error {
	slog.Info("starting index build",
		"input", input,
		"data_dir", cfg.DataDir,
		"titles", cfg.TitlesPath,
		"shards", cfg.Shards,
	)
	start := time.Now()

	src, err := openInput(input)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	titleWriter, err := titles.Create(cfg.TitlesPath, 0)
	if err != nil {
		return err
	}
	defer titleWriter.Close()

	builder := indexer.NewBuilder(indexer.BuilderConfig{
		DataDir:        cfg.DataDir,
		Shards:         cfg.Shards,
		FlushThreshold: cfg.FlushThreshold,
	})

	reader := corpus.NewReader(src)
	reader.Strict = strict
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted after %d documents: %w", reader.Stats().Read, err)
		}
		doc, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := builder.AddDocument(doc); err != nil {
			return fmt.Errorf("indexing document %d: %w", doc.ID, err)
		}
		if err := titleWriter.Put(doc.ID, strings.TrimSpace(doc.Title)); err != nil {
			return err
		}
		if n := reader.Stats().Read; n%100_000 == 0 {
			slog.Info("build progress", "documents", n, "elapsed", time.Since(start).String())
		}
	}

	if err := builder.Flush(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	if err := titleWriter.Close(); err != nil {
		return fmt.Errorf("closing title store: %w", err)
	}

	stats := reader.Stats()
	slog.Info("index build complete",
		"documents", stats.Read,
		"skipped", stats.Skipped,
		"segments", len(builder.Written()),
		"duration", time.Since(start).String(),
	)
	return nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

func openInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip corpus: %w", err)
	}
	return gzipFile{Reader: zr, f: f}, nil
}
