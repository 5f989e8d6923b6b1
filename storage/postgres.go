package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createCheckpointsTable = `
CREATE TABLE IF NOT EXISTS checkpoints (
    thread_id  TEXT PRIMARY KEY,
    step       INTEGER NOT NULL,
    status     TEXT NOT NULL,
    next       TEXT[] NOT NULL DEFAULT '{}',
    state      JSONB NOT NULL,
    error      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

const upsertCheckpoint = `
INSERT INTO checkpoints (thread_id, step, status, next, state, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (thread_id)
DO UPDATE SET
    step = EXCLUDED.step,
    status = EXCLUDED.status,
    next = EXCLUDED.next,
    state = EXCLUDED.state,
    error = EXCLUDED.error,
    updated_at = EXCLUDED.updated_at`

const selectCheckpointColumns = `SELECT thread_id, step, status, next, state, error, created_at, updated_at FROM checkpoints`

// PostgresStore keeps thread checkpoints in a single checkpoints table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, pings the database and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createCheckpointsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	next := cp.Next
	if next == nil {
		next = []string{}
	}
	_, err := s.pool.Exec(ctx, upsertCheckpoint,
		cp.ThreadID,
		cp.Step,
		string(cp.Status),
		next,
		[]byte(cp.State),
		cp.Error,
		cp.CreatedAt,
		cp.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	row := s.pool.QueryRow(ctx, selectCheckpointColumns+` WHERE thread_id = $1`, threadID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	return cp, err
}

func (s *PostgresStore) List(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.pool.Query(ctx, selectCheckpointColumns+` ORDER BY updated_at DESC, thread_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cps []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cps, nil
}

func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCheckpointNotFound
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanCheckpoint(row pgx.Row) (Checkpoint, error) {
	var (
		cp     Checkpoint
		status string
		state  []byte
	)
	if err := row.Scan(
		&cp.ThreadID,
		&cp.Step,
		&status,
		&cp.Next,
		&state,
		&cp.Error,
		&cp.CreatedAt,
		&cp.UpdatedAt,
	); err != nil {
		return Checkpoint{}, err
	}
	cp.Status = datamodels.ThreadStatus(status)
	cp.State = state
	return cp, nil
}
