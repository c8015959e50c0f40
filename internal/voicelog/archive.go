package voicelog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/overcast-online/lingograph/pkg/types"
)

// archiveSchema creates the transcript table. Sequence numbers restart per
// session, so uniqueness is scoped to (session_id, sequence) — a crash-loop
// replaying a session can never duplicate rows.
const archiveSchema = `
CREATE TABLE IF NOT EXISTS voice_log (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT        NOT NULL,
	sequence    BIGINT      NOT NULL,
	text        TEXT        NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, sequence)
);

CREATE INDEX IF NOT EXISTS voice_log_session_idx
	ON voice_log (session_id, captured_at);
`

// Archive mirrors the utterance stream into a PostgreSQL table, one row per
// utterance, keyed by session. It is the queryable counterpart to the daily
// text files: "what was said last Tuesday" is one SQL statement away.
//
// All operations are safe for concurrent use.
type Archive struct {
	pool      *pgxpool.Pool
	sessionID string
}

// NewArchive connects to the database at dsn, ensures the schema exists,
// and returns an [Archive] tagging every row with sessionID.
func NewArchive(ctx context.Context, dsn, sessionID string) (*Archive, error) {
	if dsn == "" {
		return nil, errors.New("voicelog: archive dsn must not be empty")
	}
	if sessionID == "" {
		return nil, errors.New("voicelog: archive session id must not be empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("voicelog: connect archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("voicelog: ping archive: %w", err)
	}
	a := &Archive{pool: pool, sessionID: sessionID}
	if err := a.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// EnsureSchema creates the voice_log table and its index if they do not
// exist yet.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, archiveSchema); err != nil {
		return fmt.Errorf("voicelog: ensure schema: %w", err)
	}
	return nil
}

// Record implements [Recorder] by inserting one row. Replayed sequences are
// ignored rather than erred on.
func (a *Archive) Record(ctx context.Context, u types.Utterance) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO voice_log (session_id, sequence, text, captured_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, sequence) DO NOTHING`,
		a.sessionID, int64(u.Sequence), u.Text, u.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("voicelog: archive insert %d: %w", u.Sequence, err)
	}
	return nil
}

// Ping probes database connectivity. Used by the readiness endpoint.
func (a *Archive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close implements [Recorder] by releasing the connection pool.
func (a *Archive) Close() error {
	a.pool.Close()
	return nil
}

// Compile-time interface assertion.
var _ Recorder = (*Archive)(nil)
