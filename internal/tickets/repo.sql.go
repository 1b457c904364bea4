package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rukundowilson/smartflow/internal/platform/db"
	"github.com/rukundowilson/smartflow/internal/workflow"
)

// Repository persists tickets in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ticketColumns = `t.id, t.requester_id, u.name, u.department,
t.subject, t.description, t.status, t.version, t.assignee_id,
t.assigned_by_id, t.assigned_at, t.resolved_by_id, t.resolved_at,
t.closed_by_id, t.closed_at, t.created_at, t.updated_at`

const ticketFrom = ` FROM tickets t JOIN users u ON u.id = t.requester_id `

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(
		&t.ID, &t.RequesterID, &t.RequesterName, &t.Department,
		&t.Subject, &t.Description, &t.Status, &t.Version, &t.AssigneeID,
		&t.AssignedByID, &t.AssignedAt, &t.ResolvedByID, &t.ResolvedAt,
		&t.ClosedByID, &t.ClosedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func collectTickets(rows pgx.Rows) ([]Ticket, error) {
	defer rows.Close()
	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts a fresh ticket in the open stage.
func (r *Repository) Create(ctx context.Context, t Ticket) (Ticket, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO tickets
(requester_id, subject, description, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		t.RequesterID, t.Subject, t.Description, string(t.Status), t.Version).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Get fetches one ticket.
func (r *Repository) Get(ctx context.Context, id int64) (Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+ticketFrom+`WHERE t.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, workflow.ErrNotFound
		}
		return Ticket{}, err
	}
	return t, nil
}

// List returns tickets, optionally filtered by status or requester.
func (r *Repository) List(ctx context.Context, status workflow.Stage, requesterID int64) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ticketFrom + `WHERE 1=1`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND t.status=$%d", len(args))
	}
	if requesterID != 0 {
		args = append(args, requesterID)
		query += fmt.Sprintf(" AND t.requester_id=$%d", len(args))
	}
	query += ` ORDER BY t.created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

// ApplyTransition persists a computed transition under the optimistic
// version check, with the ledger append in the same transaction.
func (r *Repository) ApplyTransition(ctx context.Context, prior Ticket, tr workflow.Transition) error {
	idCol, atCol, ok := stampColumn(tr.StampedStage)
	if !ok {
		return fmt.Errorf("%w: no stamp slot for stage %s", workflow.ErrIllegalTransition, tr.StampedStage)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var assignee *int64
		if tr.AssigneeID != 0 {
			assignee = &tr.AssigneeID
		}
		tag, err := tx.Exec(ctx, `UPDATE tickets SET
status=$1,
version=version+1,
`+idCol+`=$2,
`+atCol+`=$3,
assignee_id=COALESCE($4, assignee_id),
updated_at=NOW()
WHERE id=$5 AND version=$6`,
			string(tr.To), tr.Stamp.ActorID, tr.Stamp.At, assignee,
			prior.ID, prior.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, prior.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return workflow.ErrNotFound
			}
			return fmt.Errorf("%w: ticket %d version %d superseded", workflow.ErrConflict, prior.ID, prior.Version)
		}
		_, err = workflow.AppendEntry(ctx, tx, tr.Entry)
		return err
	})
}

// History returns the ticket's ledger in append order.
func (r *Repository) History(ctx context.Context, id int64) ([]workflow.HistoryEntry, error) {
	return workflow.ListHistory(ctx, r.pool, workflow.KindTicket, id)
}

// StalePending lists tickets stuck in a non-terminal stage since
// before the cutoff.
func (r *Repository) StalePending(ctx context.Context, updatedBefore time.Time) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+ticketFrom+`
WHERE t.status != 'closed' AND t.updated_at < $1
ORDER BY t.updated_at ASC`, updatedBefore)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}
