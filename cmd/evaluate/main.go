// Command evaluate measures a running searcher over HTTP.
//
// Modes:
//
//	eval    score /search against a qrels file (MAP@K, mean P@K, mean R@K)
//	pseudo  AP@10 of /search against title/anchor pseudo-judgements
//	format  validate the response shape of every endpoint
//
// Usage:
//
//	go run ./cmd/evaluate -mode eval -queries qrels.json -k 10 [-persist]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/qrels"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/runner"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/store"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	mode := flag.String("mode", "eval", "eval, pseudo or format")
	queriesPath := flag.String("queries", "", "qrels (eval) or query list (pseudo, format)")
	k := flag.Int("k", 0, "cutoff for eval mode (default from config)")
	maxQueries := flag.Int("max_queries", 0, "evaluate only the first N queries")
	baseURL := flag.String("base_url", "", "searcher base URL (default from config)")
	persist := flag.Bool("persist", false, "store the run in Postgres")
	out := flag.String("out", "", "also write the JSON report to this file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ev := cfg.Evaluation
	if *baseURL != "" {
		ev.BaseURL = *baseURL
	}
	if *k > 0 {
		ev.K = *k
	}
	if *maxQueries > 0 {
		ev.MaxQueries = *maxQueries
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(runner.Config{
		BaseURL:         ev.BaseURL,
		Timeout:         ev.Timeout,
		Retries:         ev.Retries,
		PseudoDepth:     ev.PseudoDepth,
		SanityThreshold: ev.SanityThreshold,
	}, nil)

	var (
		report any
		passed = true
	)
	switch *mode {
	case "eval":
		if *queriesPath == "" {
			fail("-queries is required in eval mode")
		}
		qs, err := qrels.Load(*queriesPath)
		if err != nil {
			fail(err.Error())
		}
		rep, err := r.Evaluate(ctx, qrels.Truncate(qs, ev.MaxQueries), ev.K)
		if err != nil {
			fail(err.Error())
		}
		printReport(os.Stdout, rep)
		saveRun(ctx, cfg.Postgres, *persist, rep)
		report = rep
	case "pseudo":
		queries, err := loadQueries(*queriesPath, ev.MaxQueries)
		if err != nil {
			fail(err.Error())
		}
		rep, err := r.PseudoCheck(ctx, queries)
		if err != nil {
			fail(err.Error())
		}
		printReport(os.Stdout, rep)
		saveRun(ctx, cfg.Postgres, *persist, rep)
		passed = *rep.Passed
		report = rep
	case "format":
		queries, err := loadQueries(*queriesPath, ev.MaxQueries)
		if err != nil {
			fail(err.Error())
		}
		rep := r.CheckFormat(ctx, queries, cfg.Search.ResultCap)
		printFormat(os.Stdout, rep)
		passed = rep.Passed
		report = rep
	default:
		fail(fmt.Sprintf("unknown mode %q", *mode))
	}

	if *out != "" {
		if err := writeJSON(*out, report); err != nil {
			slog.Error("failed to write report", "path", *out, "error", err)
			os.Exit(1)
		}
	}
	if !passed {
		os.Exit(1)
	}
}

func loadQueries(path string, max int) ([]string, error) {
	queries := runner.DefaultFormatQueries
	if path != "" {
		var err error
		if queries, err = qrels.LoadQueries(path); err != nil {
			return nil, err
		}
	}
	if max > 0 && len(queries) > max {
		queries = queries[:max]
	}
	return queries, nil
}

func saveRun(ctx context.Context, cfg config.PostgresConfig, persist bool, rep *runner.Report) {
	if !persist {
		return
	}
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		slog.Error("persisting run skipped", "error", err)
		return
	}
	defer db.Close()
	s, err := store.New(ctx, db)
	if err != nil {
		slog.Error("persisting run skipped", "error", err)
		return
	}
	if err := s.SaveRun(ctx, rep); err != nil {
		slog.Error("persisting run failed", "run_id", rep.RunID, "error", err)
	}
}

func printReport(w io.Writer, rep *runner.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "query\tAP@%d\tP@%d\tR@%d\tserver\tclient\n", rep.K, rep.K, rep.K)
	for _, q := range rep.Queries {
		if q.Error != "" {
			fmt.Fprintf(tw, "%s\tfailed: %s\t\t\t\t\n", q.Query, q.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%s\t%s\n",
			q.Query, q.Scores.AP, q.Scores.Precision, q.Scores.Recall, q.ServerTime, q.ClientTime)
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "run:               %s (%s)\n", rep.RunID, rep.Kind)
	fmt.Fprintf(w, "queries:           %d (%d failed)\n", rep.Summary.Queries, rep.Failed)
	fmt.Fprintf(w, "MAP@%d:            %.4f\n", rep.K, rep.Summary.MAP)
	fmt.Fprintf(w, "mean P@%d:         %.4f\n", rep.K, rep.Summary.MeanPrecision)
	fmt.Fprintf(w, "mean R@%d:         %.4f\n", rep.K, rep.Summary.MeanRecall)
	fmt.Fprintf(w, "mean client time:  %s\n", rep.MeanClientTime)
	if rep.Passed != nil {
		verdict := "FAIL"
		if *rep.Passed {
			verdict = "PASS"
		}
		fmt.Fprintf(w, "sanity check:      %s\n", verdict)
	}
}

func printFormat(w io.Writer, rep *runner.FormatReport) {
	for _, c := range rep.Checks {
		status := "ok"
		if !c.OK {
			status = "FAIL " + c.Detail
		}
		fmt.Fprintf(w, "%-40s %-8s %s\n", c.Name, c.Elapsed.Round(time.Millisecond), status)
	}
	if rep.Passed {
		fmt.Fprintln(w, "format check: PASS")
	} else {
		fmt.Fprintln(w, "format check: FAIL")
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
