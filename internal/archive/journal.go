package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS echo_turns (
    id             BIGSERIAL    PRIMARY KEY,
    started_at     TIMESTAMPTZ  NOT NULL,
    duration_ns    BIGINT       NOT NULL DEFAULT 0,
    outcome        TEXT         NOT NULL,
    utterance_path TEXT         NOT NULL DEFAULT '',
    transcript     TEXT         NOT NULL DEFAULT '',
    reply          TEXT         NOT NULL DEFAULT '',
    reply_path     TEXT         NOT NULL DEFAULT '',
    stt_provider   TEXT         NOT NULL DEFAULT '',
    llm_provider   TEXT         NOT NULL DEFAULT '',
    tts_provider   TEXT         NOT NULL DEFAULT '',
    error          TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_echo_turns_started_at
    ON echo_turns (started_at);
`

// Journal records turns in the echo_turns table.
//
// All methods are safe for concurrent use.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal connects to dsn and runs [Migrate].
func NewJournal(ctx context.Context, dsn string) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Journal{pool: pool}, nil
}

// Migrate creates the echo_turns table. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// RecordTurn appends t.
func (j *Journal) RecordTurn(ctx context.Context, t Turn) error {
	const q = `
		INSERT INTO echo_turns
		    (started_at, duration_ns, outcome, utterance_path, transcript, reply,
		     reply_path, stt_provider, llm_provider, tts_provider, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := j.pool.Exec(ctx, q,
		t.StartedAt,
		t.Duration.Nanoseconds(),
		t.Outcome,
		t.UtterancePath,
		t.Transcript,
		t.Reply,
		t.ReplyPath,
		t.STTProvider,
		t.LLMProvider,
		t.TTSProvider,
		t.Error,
	)
	if err != nil {
		return fmt.Errorf("archive: record turn: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Turn, error) {
	const q = `
		SELECT started_at, duration_ns, outcome, utterance_path, transcript, reply,
		       reply_path, stt_provider, llm_provider, tts_provider, error
		FROM   echo_turns
		ORDER  BY started_at DESC, id DESC
		LIMIT  $1`

	rows, err := j.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: recent turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var (
			t  Turn
			ns int64
		)
		err := row.Scan(&t.StartedAt, &ns, &t.Outcome, &t.UtterancePath, &t.Transcript, &t.Reply,
			&t.ReplyPath, &t.STTProvider, &t.LLMProvider, &t.TTSProvider, &t.Error)
		t.Duration = time.Duration(ns)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan turns: %w", err)
	}
	return turns, nil
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

// Close releases the connection pool.
func (j *Journal) Close() {
	j.pool.Close()
}
