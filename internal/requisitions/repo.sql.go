package requisitions

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

// Repository persists requisitions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requisitionColumns = `q.id, q.requester_id, u.name, u.department,
q.item_name, q.quantity, q.justification, q.status, q.version,
q.assignee_id, COALESCE(q.rejection_reason, ''),
q.hod_id, q.hod_at, q.it_manager_id, q.it_manager_at,
q.it_support_id, q.it_support_at, q.created_at, q.updated_at`

const requisitionFrom = ` FROM requisitions q JOIN users u ON u.id = q.requester_id `

func scanRequisition(row pgx.Row) (Requisition, error) {
	var q Requisition
	err := row.Scan(
		&q.ID, &q.RequesterID, &q.RequesterName, &q.Department,
		&q.ItemName, &q.Quantity, &q.Justification, &q.Status, &q.Version,
		&q.AssigneeID, &q.RejectionReason,
		&q.HODID, &q.HODAt, &q.ITManagerID, &q.ITManagerAt,
		&q.ITSupportID, &q.ITSupportAt, &q.CreatedAt, &q.UpdatedAt,
	)
	return q, err
}

func collectRequisitions(rows pgx.Rows) ([]Requisition, error) {
	defer rows.Close()
	var out []Requisition
	for rows.Next() {
		q, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Create inserts a fresh requisition in the pending stage.
func (r *Repository) Create(ctx context.Context, q Requisition) (Requisition, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO requisitions
(requester_id, item_name, quantity, justification, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		q.RequesterID, q.ItemName, q.Quantity, q.Justification,
		string(q.Status), q.Version).
		Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Requisition{}, err
	}
	return q, nil
}

// Get fetches one requisition.
func (r *Repository) Get(ctx context.Context, id int64) (Requisition, error) {
	q, err := scanRequisition(r.pool.QueryRow(ctx, `SELECT `+requisitionColumns+requisitionFrom+`WHERE q.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, workflow.ErrNotFound
		}
		return Requisition{}, err
	}
	return q, nil
}

// List returns requisitions, optionally filtered by status, requester
// or requester department.
func (r *Repository) List(ctx context.Context, status workflow.Stage, requesterID int64, department string) ([]Requisition, error) {
	query := `SELECT ` + requisitionColumns + requisitionFrom + `WHERE 1=1`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND q.status=$%d", len(args))
	}
	if requesterID != 0 {
		args = append(args, requesterID)
		query += fmt.Sprintf(" AND q.requester_id=$%d", len(args))
	}
	if department != "" {
		args = append(args, department)
		query += fmt.Sprintf(" AND u.department=$%d", len(args))
	}
	query += ` ORDER BY q.created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRequisitions(rows)
}

// ApplyTransition persists a computed transition under the optimistic
// version check, with the ledger append in the same transaction.
func (r *Repository) ApplyTransition(ctx context.Context, prior Requisition, tr workflow.Transition) error {
	idCol, atCol, ok := stampColumn(tr.StampedStage)
	if !ok {
		return fmt.Errorf("%w: no stamp slot for stage %s", workflow.ErrIllegalTransition, tr.StampedStage)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var assignee *int64
		if tr.AssigneeID != 0 {
			assignee = &tr.AssigneeID
		}
		tag, err := tx.Exec(ctx, `UPDATE requisitions SET
status=$1,
version=version+1,
`+idCol+`=$2,
`+atCol+`=$3,
rejection_reason=COALESCE(NULLIF($4, ''), rejection_reason),
assignee_id=COALESCE($5, assignee_id),
updated_at=NOW()
WHERE id=$6 AND version=$7`,
			string(tr.To), tr.Stamp.ActorID, tr.Stamp.At,
			tr.RejectionReason, assignee,
			prior.ID, prior.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requisitions WHERE id=$1)`, prior.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return workflow.ErrNotFound
			}
			return fmt.Errorf("%w: requisition %d version %d superseded", workflow.ErrConflict, prior.ID, prior.Version)
		}
		_, err = workflow.AppendEntry(ctx, tx, tr.Entry)
		return err
	})
}

// History returns the requisition's ledger in append order.
func (r *Repository) History(ctx context.Context, id int64) ([]workflow.HistoryEntry, error) {
	return workflow.ListHistory(ctx, r.pool, workflow.KindRequisition, id)
}

// StalePending lists requisitions stuck in a non-terminal stage since
// before the cutoff.
func (r *Repository) StalePending(ctx context.Context, updatedBefore time.Time) ([]Requisition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requisitionColumns+requisitionFrom+`
WHERE q.status NOT IN ('delivered', 'rejected') AND q.updated_at < $1
ORDER BY q.updated_at ASC`, updatedBefore)
	if err != nil {
		return nil, err
	}
	return collectRequisitions(rows)
}
