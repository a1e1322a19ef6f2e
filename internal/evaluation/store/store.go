// Package store persists evaluation runs so ranking changes can be compared
// over time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/internal/evaluation/runner"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS eval_runs (
		id               UUID PRIMARY KEY,
		kind             TEXT NOT NULL,
		base_url         TEXT NOT NULL,
		k                INTEGER NOT NULL,
		started_at       TIMESTAMPTZ NOT NULL,
		duration_ms      BIGINT NOT NULL,
		queries          INTEGER NOT NULL,
		failed           INTEGER NOT NULL,
		map              DOUBLE PRECISION NOT NULL,
		mean_precision   DOUBLE PRECISION NOT NULL,
		mean_recall      DOUBLE PRECISION NOT NULL,
		mean_client_ms   BIGINT NOT NULL,
		passed           BOOLEAN
	)`,
	`CREATE TABLE IF NOT EXISTS eval_queries (
		run_id       UUID NOT NULL REFERENCES eval_runs(id) ON DELETE CASCADE,
		position     INTEGER NOT NULL,
		query        TEXT NOT NULL,
		ap           DOUBLE PRECISION NOT NULL,
		precision_k  DOUBLE PRECISION NOT NULL,
		recall_k     DOUBLE PRECISION NOT NULL,
		relevant     INTEGER NOT NULL,
		results      INTEGER NOT NULL,
		server_time  TEXT NOT NULL,
		client_ms    BIGINT NOT NULL,
		error        TEXT,
		PRIMARY KEY (run_id, position)
	)`,
}

// RunSummary is one row of eval_runs.
type RunSummary struct {
	ID            uuid.UUID
	Kind          runner.Kind
	K             int
	StartedAt     time.Time
	Queries       int
	Failed        int
	MAP           float64
	MeanPrecision float64
	MeanRecall    float64
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates the tables if needed.
func New(ctx context.Context, db *postgres.Client) (*Store, error) {
	if err := db.EnsureSchema(ctx, schema...); err != nil {
		return nil, fmt.Errorf("creating evaluation schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "eval-store"),
	}, nil
}

// SaveRun writes the run and its per-query rows in one transaction.
func (s *Store) SaveRun(ctx context.Context, report *runner.Report) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var passed sql.NullBool
		if report.Passed != nil {
			passed = sql.NullBool{Bool: *report.Passed, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO eval_runs
			(id, kind, base_url, k, started_at, duration_ms, queries, failed, map, mean_precision, mean_recall, mean_client_ms, passed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			report.RunID, string(report.Kind), report.BaseURL, report.K, report.StartedAt,
			report.Duration.Milliseconds(), report.Summary.Queries, report.Failed,
			report.Summary.MAP, report.Summary.MeanPrecision, report.Summary.MeanRecall,
			report.MeanClientTime.Milliseconds(), passed,
		)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO eval_queries
			(run_id, position, query, ap, precision_k, recall_k, relevant, results, server_time, client_ms, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
		if err != nil {
			return fmt.Errorf("preparing query insert: %w", err)
		}
		defer stmt.Close()
		for i, q := range report.Queries {
			var qerr sql.NullString
			if q.Error != "" {
				qerr = sql.NullString{String: q.Error, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				report.RunID, i, q.Query, q.Scores.AP, q.Scores.Precision, q.Scores.Recall,
				q.Relevant, q.Results, q.ServerTime, q.ClientTime.Milliseconds(), qerr,
			); err != nil {
				return fmt.Errorf("inserting query %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("evaluation run saved", "run_id", report.RunID, "kind", report.Kind, "queries", len(report.Queries))
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT id, kind, k, started_at, queries, failed, map, mean_precision, mean_recall
		FROM eval_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.K, &r.StartedAt, &r.Queries, &r.Failed, &r.MAP, &r.MeanPrecision, &r.MeanRecall); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Kind = runner.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
