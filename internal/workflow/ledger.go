package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// HistoryEntry is one row of the append-only approval history ledger.
// Actor name and email are denormalized at write time so the timeline
// survives later user edits.
type HistoryEntry struct {
	ID         int64
	Kind       Kind
	RequestID  int64
	ActorID    int64
	ActorName  string
	ActorEmail string
	Action     Action
	Comment    string
	At         time.Time
}

// DB is the subset of pgx needed by the ledger. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so appends can join the owning module's
// transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AppendEntry inserts a ledger row. Entries are immutable once written;
// there is deliberately no update or delete counterpart.
func AppendEntry(ctx context.Context, db DB, e HistoryEntry) (int64, error) {
	if e.Kind == "" {
		return 0, errors.New("workflow: ledger entry kind required")
	}
	if e.RequestID == 0 {
		return 0, errors.New("workflow: ledger entry request id required")
	}
	if e.ActorID == 0 {
		return 0, errors.New("workflow: ledger entry actor required")
	}
	if e.Action == "" {
		return 0, errors.New("workflow: ledger entry action required")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var id int64
	err := db.QueryRow(ctx, `INSERT INTO approval_history (kind, request_id, actor_id, actor_name, actor_email, action, comment, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`, string(e.Kind), e.RequestID, e.ActorID, e.ActorName, e.ActorEmail, string(e.Action), e.Comment, e.At).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListHistory returns the ledger for one record in append order, which
// callers rely on to reconstruct the workflow timeline.
func ListHistory(ctx context.Context, db DB, kind Kind, requestID int64) ([]HistoryEntry, error) {
	rows, err := db.Query(ctx, `SELECT id, kind, request_id, actor_id, actor_name, actor_email, action, comment, at
FROM approval_history WHERE kind=$1 AND request_id=$2 ORDER BY id ASC`, string(kind), requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var kind, action string
		if err := rows.Scan(&e.ID, &kind, &e.RequestID, &e.ActorID, &e.ActorName, &e.ActorEmail, &action, &e.Comment, &e.At); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
