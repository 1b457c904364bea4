package accessrequests

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

// Repository persists access requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `ar.id, ar.requester_id, u.name, u.department,
ar.justification, ar.start_date, ar.end_date, ar.is_permanent,
ar.status, ar.version, ar.assignee_id, COALESCE(ar.rejection_reason, ''),
ar.line_manager_id, ar.line_manager_at, ar.hod_id, ar.hod_at,
ar.it_manager_id, ar.it_manager_at, ar.it_support_id, ar.it_support_at,
ar.created_at, ar.updated_at`

const requestFrom = ` FROM access_requests ar JOIN users u ON u.id = ar.requester_id `

func scanRequest(row pgx.Row) (AccessRequest, error) {
	var a AccessRequest
	err := row.Scan(
		&a.ID, &a.RequesterID, &a.RequesterName, &a.Department,
		&a.Justification, &a.StartDate, &a.EndDate, &a.IsPermanent,
		&a.Status, &a.Version, &a.AssigneeID, &a.RejectionReason,
		&a.LineManagerID, &a.LineManagerAt, &a.HODID, &a.HODAt,
		&a.ITManagerID, &a.ITManagerAt, &a.ITSupportID, &a.ITSupportAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func collectRequests(rows pgx.Rows) ([]AccessRequest, error) {
	defer rows.Close()
	var out []AccessRequest
	for rows.Next() {
		a, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create inserts a fresh request in its initial stage.
func (r *Repository) Create(ctx context.Context, a AccessRequest) (AccessRequest, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO access_requests
(requester_id, justification, start_date, end_date, is_permanent, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		a.RequesterID, a.Justification, a.StartDate, a.EndDate, a.IsPermanent,
		string(a.Status), a.Version).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return AccessRequest{}, err
	}
	return a, nil
}

// Get fetches one request together with its requester's name and
// department.
func (r *Repository) Get(ctx context.Context, id int64) (AccessRequest, error) {
	a, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+requestFrom+`WHERE ar.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccessRequest{}, workflow.ErrNotFound
		}
		return AccessRequest{}, err
	}
	return a, nil
}

// ApplyTransition persists a computed transition: the status update
// guarded by the optimistic version check, the stage stamp, and the
// ledger append run in one repeatable-read transaction. A lost version
// check surfaces as workflow.ErrConflict.
func (r *Repository) ApplyTransition(ctx context.Context, prior AccessRequest, tr workflow.Transition) error {
	idCol, atCol, ok := stampColumn(tr.StampedStage)
	if !ok {
		return fmt.Errorf("%w: no stamp slot for stage %s", workflow.ErrIllegalTransition, tr.StampedStage)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var assignee *int64
		if tr.AssigneeID != 0 {
			assignee = &tr.AssigneeID
		}
		tag, err := tx.Exec(ctx, `UPDATE access_requests SET
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
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM access_requests WHERE id=$1)`, prior.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return workflow.ErrNotFound
			}
			return fmt.Errorf("%w: access request %d version %d superseded", workflow.ErrConflict, prior.ID, prior.Version)
		}
		_, err = workflow.AppendEntry(ctx, tx, tr.Entry)
		return err
	})
}

// PendingFor lists requests sitting at a stage the role is authorized
// to act on. Line managers and HODs only see their own department;
// IT roles review the whole queue.
func (r *Repository) PendingFor(ctx context.Context, role workflow.Role, department string) ([]AccessRequest, error) {
	rules, _ := workflow.Rules(workflow.KindAccessRequest)
	var statuses []string
	for _, stage := range rules.ForwardStages() {
		def, _ := rules.Definition(stage)
		if def.AllowsRole(role) {
			statuses = append(statuses, string(stage))
		}
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + requestColumns + requestFrom + `WHERE ar.status = ANY($1)`
	args := []any{statuses}
	if department != "" {
		query += ` AND u.department = $2`
		args = append(args, department)
	}
	query += ` ORDER BY ar.created_at ASC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

// ApprovedBy lists requests the approver personally acted on at the
// stages their role covers, regardless of current status.
func (r *Repository) ApprovedBy(ctx context.Context, approverID int64, role workflow.Role) ([]AccessRequest, error) {
	stages := stagesForRole(role)
	if len(stages) == 0 {
		return nil, nil
	}
	clause := ""
	args := []any{approverID}
	for i, stage := range stages {
		idCol, _, ok := stampColumn(stage)
		if !ok {
			continue
		}
		if i > 0 {
			clause += " OR "
		}
		clause += "ar." + idCol + " = $1"
	}
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+requestFrom+`WHERE `+clause+` ORDER BY ar.updated_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

// DepartmentHistory lists every request raised from the department,
// the wider scope behind the history toggle.
func (r *Repository) DepartmentHistory(ctx context.Context, department string) ([]AccessRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+requestFrom+`WHERE u.department = $1 ORDER BY ar.updated_at DESC`, department)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

// History returns the request's approval ledger in append order.
func (r *Repository) History(ctx context.Context, id int64) ([]workflow.HistoryEntry, error) {
	return workflow.ListHistory(ctx, r.pool, workflow.KindAccessRequest, id)
}

// StalePending lists requests stuck in a non-terminal stage since
// before the cutoff, for the nightly stale scan.
func (r *Repository) StalePending(ctx context.Context, updatedBefore time.Time) ([]AccessRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+requestFrom+`
WHERE ar.status NOT IN ('granted', 'rejected') AND ar.updated_at < $1
ORDER BY ar.updated_at ASC`, updatedBefore)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}
