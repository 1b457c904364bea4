// Package audit serves the read side of the audit trail written by
// shared.AuditLogger.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rukundowilson/smartflow/internal/shared"
)

// Entry is one audit_logs row.
type Entry struct {
	ID         int64
	ActorID    int64
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	OccurredAt time.Time
}

// Service lists audit entries.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Filter narrows a listing. Zero values mean no constraint.
type Filter struct {
	Entity  string
	ActorID int64
	Page    int
	PerPage int
}

// List returns entries newest first plus pagination metadata.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, shared.Pagination, error) {
	where := ` WHERE 1=1`
	var args []any
	if f.Entity != "" {
		args = append(args, f.Entity)
		where += ` AND entity=$1`
	}
	if f.ActorID != 0 {
		args = append(args, f.ActorID)
		if len(args) == 1 {
			where += ` AND actor_id=$1`
		} else {
			where += ` AND actor_id=$2`
		}
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)

	offset := (page.Page - 1) * page.PerPage
	listArgs := append(args, page.PerPage, offset)
	query := fmt.Sprintf(`SELECT id, actor_id, action, entity, entity_id, meta, occurred_at FROM audit_logs%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &meta, &e.OccurredAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, page, nil
}
