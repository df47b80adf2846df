package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/llmsweep/internal/result"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	model        TEXT NOT NULL,
	quantization TEXT NOT NULL,
	base_url     TEXT NOT NULL,
	params       TEXT NOT NULL,
	total_runs   INTEGER NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq               INTEGER NOT NULL,
	task              TEXT NOT NULL,
	category          TEXT NOT NULL,
	model             TEXT NOT NULL,
	quantization      TEXT NOT NULL,
	temperature       REAL NOT NULL,
	max_tokens        INTEGER NOT NULL,
	num_ctx           INTEGER NOT NULL,
	time_seconds      REAL NOT NULL,
	tokens_generated  INTEGER NOT NULL,
	tokens_per_second REAL NOT NULL,
	expected_found    INTEGER NOT NULL,
	expected_total    INTEGER NOT NULL,
	success_rate      REAL NOT NULL,
	response          TEXT NOT NULL,
	error             TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_results_category ON results(category);
`

// timeLayout has fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists sweep runs in a SQLite database so runs can be compared
// across models and quantizations.
type Store struct {
	db *sql.DB
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID           string
	Model        string
	Quantization string
	StartedAt    time.Time
	Runs         int
	Failures     int
	AvgScore     float64
	AvgTPS       float64
}

type params struct {
	Temperatures []float64 `json:"temperatures"`
	MaxTokens    []int     `json:"max_tokens"`
	Contexts     []int     `json:"contexts"`
	Tasks        []string  `json:"tasks"`
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring db: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores the run and its results in a single transaction.
func (s *Store) SaveRun(ctx context.Context, info *result.RunInfo, results []result.Result) error {
	p, err := json.Marshal(params{
		Temperatures: info.Temperatures,
		MaxTokens:    info.MaxTokens,
		Contexts:     info.Contexts,
		Tasks:        info.Tasks,
	})
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, model, quantization, base_url, params, total_runs, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Model, info.Quantization, info.BaseURL, string(p), info.TotalRuns,
		info.StartedAt.UTC().Format(timeLayout), info.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, seq, task, category, model, quantization, temperature, max_tokens,
		 num_ctx, time_seconds, tokens_generated, tokens_per_second, expected_found, expected_total,
		 success_rate, response, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range results {
		_, err := stmt.ExecContext(ctx, info.ID, i, r.Task, r.Category, r.Model, r.Quantization,
			r.Temperature, r.MaxTokens, r.NumCtx, r.TimeSeconds, r.TokensGenerated, r.TokensPerSecond,
			r.ExpectedFound, r.ExpectedTotal, r.SuccessRate, r.Response, r.Error)
		if err != nil {
			return fmt.Errorf("inserting result %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Results returns the stored results of a run in grid order.
func (s *Store) Results(ctx context.Context, runID string) ([]result.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task, category, model, quantization, temperature, max_tokens, num_ctx, time_seconds,
		 tokens_generated, tokens_per_second, expected_found, expected_total, success_rate, response, error
		 FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []result.Result
	for rows.Next() {
		var r result.Result
		if err := rows.Scan(&r.Task, &r.Category, &r.Model, &r.Quantization, &r.Temperature, &r.MaxTokens,
			&r.NumCtx, &r.TimeSeconds, &r.TokensGenerated, &r.TokensPerSecond, &r.ExpectedFound,
			&r.ExpectedTotal, &r.SuccessRate, &r.Response, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// History lists stored runs, newest first. limit <= 0 means no limit.
func (s *Store) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.model, r.quantization, r.started_at,
		        COUNT(x.seq),
		        COALESCE(SUM(CASE WHEN x.error != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(x.success_rate), 0),
		        COALESCE(AVG(x.tokens_per_second), 0)
		 FROM runs r LEFT JOIN results x ON x.run_id = r.id
		 GROUP BY r.id
		 ORDER BY r.started_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var started string
		if err := rows.Scan(&rs.ID, &rs.Model, &rs.Quantization, &started, &rs.Runs, &rs.Failures, &rs.AvgScore, &rs.AvgTPS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rs.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", started, err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}
