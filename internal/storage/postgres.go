package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dcl-forecast/internal/export"
	"dcl-forecast/internal/logger"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS feature_runs (
	id         UUID PRIMARY KEY,
	kind       TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date   DATE NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	columns    TEXT[] NOT NULL,
	row_count  INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS feature_values (
	run_id          UUID NOT NULL REFERENCES feature_runs(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	efa_start_utc   TIMESTAMPTZ NOT NULL,
	efa_start_local TEXT NOT NULL,
	trading_date    TEXT NOT NULL,
	efa_block       INTEGER NOT NULL,
	feature         TEXT NOT NULL,
	value           DOUBLE PRECISION NOT NULL,
	is_target       BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

var valueColumns = []string{
	"run_id", "seq", "efa_start_utc", "efa_start_local", "trading_date",
	"efa_block", "feature", "value", "is_target",
}

// PostgresStore keeps runs in two tables: feature_runs and feature_values.
type PostgresStore struct {
	db  DB
	log *logrus.Entry
}

func NewPostgresStore(db DB, log *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: logger.Component(log, "storage")}
}

// Connect opens a pool and checks it is reachable.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO feature_runs (id, kind, start_date, end_date, target, columns, row_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Kind, run.Start, run.End, run.Target, run.Columns, run.RowCount, run.CreatedAt)
	if err != nil {
		rollback(ctx, tx, s.log)
		return fmt.Errorf("insert run: %w", err)
	}

	rows := make([][]any, len(run.Records))
	for i, rec := range run.Records {
		rows[i] = []any{
			run.ID, i, time.UnixMilli(rec.EFAStartUTC).UTC(), rec.EFAStartLocal, rec.TradingDate,
			rec.EFABlock, rec.Feature, rec.Value, rec.IsTarget,
		}
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"feature_values"}, valueColumns, pgx.CopyFromRows(rows))
	if err != nil {
		rollback(ctx, tx, s.log)
		return fmt.Errorf("copy values: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.log.WithFields(logrus.Fields{"run_id": run.ID, "kind": run.Kind, "values": n}).Info("feature run saved")
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	run := &Run{}
	err := s.db.QueryRow(ctx,
		`SELECT id, kind, start_date, end_date, target, columns, row_count, created_at
		 FROM feature_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.Kind, &run.Start, &run.End, &run.Target, &run.Columns, &run.RowCount, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT efa_start_utc, efa_start_local, trading_date, efa_block, feature, value, is_target
		 FROM feature_values WHERE run_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get values %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec   export.FeatureRecord
			start time.Time
		)
		if err := rows.Scan(&start, &rec.EFAStartLocal, &rec.TradingDate, &rec.EFABlock,
			&rec.Feature, &rec.Value, &rec.IsTarget); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		rec.EFAStartUTC = start.UnixMilli()
		run.Records = append(run.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read values %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the newest runs first. limit <= 0 means all.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	query := `SELECT id, kind, start_date, end_date, target, columns, row_count, created_at
		 FROM feature_runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.ID, &r.Kind, &r.Start, &r.End, &r.Target, &r.Columns, &r.RowCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM feature_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx, log *logrus.Entry) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		log.WithError(err).Warn("rollback failed")
	}
}
