package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/msmtupload/internal/core"
)

// DBTX is the query surface shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Pool is a DBTX that can open transactions; *pgxpool.Pool satisfies it.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schemaUploadLog = `
CREATE TABLE IF NOT EXISTS measurement_upload_log (
    id            BIGSERIAL PRIMARY KEY,
    submission_id UUID NOT NULL,
    equipment     TEXT NOT NULL,
    value         JSONB,
    state         TEXT NOT NULL,
    error_text    TEXT,
    logged_at     TIMESTAMPTZ NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS measurement_upload_log_logged_at_idx
    ON measurement_upload_log (logged_at DESC);
`

// insertChunk keeps each INSERT well under the 65535 bind parameter limit.
const insertChunk = 500

const uploadLogColumns = 6

// PostgresArchive implements core.LogArchive on the measurement_upload_log
// table.
type PostgresArchive struct {
	pool Pool
}

var (
	_ core.LogArchive    = (*PostgresArchive)(nil)
	_ core.ArchivePruner = (*PostgresArchive)(nil)
)

// NewPostgresArchive wraps pool. Call EnsureSchema once before use.
func NewPostgresArchive(pool Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// EnsureSchema creates the log table and its index when missing.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, schemaUploadLog); err != nil {
		return fmt.Errorf("create measurement_upload_log: %w", err)
	}
	return nil
}

// Record stores every entry of one submission in a single transaction.
func (a *PostgresArchive) Record(ctx context.Context, submissionID string, entries []core.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	subID, err := toPgUUID(submissionID)
	if err != nil {
		return fmt.Errorf("archive submission %q: %w", submissionID, err)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	for start := 0; start < len(entries); start += insertChunk {
		end := min(start+insertChunk, len(entries))
		query, args, err := buildInsert(subID, entries[start:end])
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert log entries %d-%d: %w", start+1, end, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit log entries: %w", err)
	}
	return nil
}

func buildInsert(subID pgtype.UUID, entries []core.LogEntry) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO measurement_upload_log (submission_id, equipment, value, state, error_text, logged_at) VALUES ")

	args := make([]any, 0, len(entries)*uploadLogColumns)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * uploadLogColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)

		value, err := json.Marshal(e.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode value for %s: %w", e.Equipment, err)
		}
		errText := pgtype.Text{String: e.ErrorText, Valid: e.ErrorText != ""}
		loggedAt := pgtype.Timestamptz{Time: e.Timestamp.UTC(), Valid: true}

		args = append(args, subID, e.Equipment, value, string(e.State), errText, loggedAt)
	}
	return sb.String(), args, nil
}

// Recent returns up to limit archived entries, newest first.
func (a *PostgresArchive) Recent(ctx context.Context, limit int) ([]core.ArchivedEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.pool.Query(ctx, `SELECT submission_id, equipment, value, state, error_text, logged_at
		FROM measurement_upload_log ORDER BY logged_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query upload log: %w", err)
	}
	defer rows.Close()

	entries := make([]core.ArchivedEntry, 0, limit)
	for rows.Next() {
		entry, err := scanLogRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanLogRow(rows pgx.Rows) (core.ArchivedEntry, error) {
	var (
		submissionID pgtype.UUID
		equipment    string
		value        []byte
		state        string
		errorText    pgtype.Text
		loggedAt     pgtype.Timestamptz
	)
	if err := rows.Scan(&submissionID, &equipment, &value, &state, &errorText, &loggedAt); err != nil {
		return core.ArchivedEntry{}, fmt.Errorf("scan upload log: %w", err)
	}

	entry := core.ArchivedEntry{
		SubmissionID: pgUUIDToString(submissionID),
		LogEntry: core.LogEntry{
			Equipment: equipment,
			State:     core.LogState(state),
			Timestamp: loggedAt.Time,
		},
	}
	if errorText.Valid {
		entry.ErrorText = errorText.String
	}
	if len(value) > 0 {
		var v any
		if err := json.Unmarshal(value, &v); err == nil {
			entry.Value = v
		} else {
			entry.Value = string(value)
		}
	}
	return entry, nil
}

func toPgUUID(s string) (pgtype.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

func pgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// PruneBefore deletes entries logged before cutoff.
func (a *PostgresArchive) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM measurement_upload_log WHERE logged_at < $1`,
		pgtype.Timestamptz{Time: cutoff.UTC(), Valid: true},
	)
	if err != nil {
		return 0, fmt.Errorf("prune measurement_upload_log: %w", err)
	}
	return tag.RowsAffected(), nil
}
