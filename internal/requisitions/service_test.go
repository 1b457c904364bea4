package requisitions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rukundowilson/smartflow/internal/users"
	"github.com/rukundowilson/smartflow/internal/workflow"
)

type memoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]Requisition
	ledger  map[int64][]workflow.HistoryEntry
	entryID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID: 1,
		rows:   make(map[int64]Requisition),
		ledger: make(map[int64][]workflow.HistoryEntry),
	}
}

func (m *memoryRepo) Create(_ context.Context, q Requisition) (Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = m.nextID
	m.nextID++
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	m.rows[q.ID] = q
	return q, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[id]
	if !ok {
		return Requisition{}, workflow.ErrNotFound
	}
	return q, nil
}

func (m *memoryRepo) List(_ context.Context, status workflow.Stage, requesterID int64, department string) ([]Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Requisition
	for _, q := range m.rows {
		if status != "" && q.Status != status {
			continue
		}
		if requesterID != 0 && q.RequesterID != requesterID {
			continue
		}
		if department != "" && q.Department != department {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *memoryRepo) ApplyTransition(_ context.Context, prior Requisition, tr workflow.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[prior.ID]
	if !ok {
		return workflow.ErrNotFound
	}
	if current.Version != prior.Version {
		return fmt.Errorf("%w: version %d superseded", workflow.ErrConflict, prior.Version)
	}
	current.Status = tr.To
	current.Version++
	current.setStamp(tr.StampedStage, tr.Stamp)
	if tr.RejectionReason != "" {
		current.RejectionReason = tr.RejectionReason
	}
	if tr.AssigneeID != 0 {
		id := tr.AssigneeID
		current.AssigneeID = &id
	}
	current.UpdatedAt = time.Now()
	m.rows[prior.ID] = current

	m.entryID++
	entry := tr.Entry
	entry.ID = m.entryID
	m.ledger[prior.ID] = append(m.ledger[prior.ID], entry)
	return nil
}

func (m *memoryRepo) History(_ context.Context, id int64) ([]workflow.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]workflow.HistoryEntry(nil), m.ledger[id]...), nil
}

type memoryDirectory struct {
	users map[int64]users.User
}

func (d *memoryDirectory) Get(_ context.Context, id int64) (users.User, error) {
	u, ok := d.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func testService(repo RepositoryPort) *Service {
	return NewService(ServiceParams{
		Logger: slog.New(slog.DiscardHandler),
		Repo:   repo,
		Directory: &memoryDirectory{users: map[int64]users.User{
			1:  {ID: 1, Name: "Alice Employee", Email: "alice@corp.test", Department: "Finance", Role: workflow.RoleEmployee, IsActive: true},
			12: {ID: 12, Name: "Harold Dept", Email: "harold@corp.test", Department: "Finance", Role: workflow.RoleHOD, IsActive: true},
			13: {ID: 13, Name: "Ida Tech", Email: "ida@corp.test", Department: "IT", Role: workflow.RoleITManager, IsActive: true},
			14: {ID: 14, Name: "Sam Support", Email: "sam@corp.test", Department: "IT", Role: workflow.RoleITSupport, IsActive: true},
		}},
	})
}

func TestRequisitionLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	created, err := svc.Submit(ctx, 1, SubmitInput{ItemName: "standing desk", Quantity: 1, Justification: "back pain"})
	require.NoError(t, err)
	require.Equal(t, workflow.StagePending, created.Status)

	updated, err := svc.Transition(ctx, created.ID, 12, workflow.Command{Action: workflow.ActionApprove, Comment: "budgeted"})
	require.NoError(t, err)
	require.Equal(t, workflow.StageApproved, updated.Status)

	updated, err = svc.Transition(ctx, created.ID, 13, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14})
	require.NoError(t, err)
	require.Equal(t, workflow.StageAssigned, updated.Status)

	updated, err = svc.Transition(ctx, created.ID, 14, workflow.Command{Action: workflow.ActionApprove, Comment: "delivered to desk 4"})
	require.NoError(t, err)
	require.Equal(t, workflow.StageDelivered, updated.Status)

	_, history, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	_, err = svc.Transition(ctx, created.ID, 14, workflow.Command{Action: workflow.ActionApprove})
	require.ErrorIs(t, err, workflow.ErrAlreadyFinalized)
}

func TestRequisitionRejectOnlyFromPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	created, err := svc.Submit(ctx, 1, SubmitInput{ItemName: "gpu workstation"})
	require.NoError(t, err)

	updated, err := svc.Transition(ctx, created.ID, 12, workflow.Command{
		Action:          workflow.ActionReject,
		RejectionReason: "over budget",
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StageRejected, updated.Status)
	require.Equal(t, "over budget", updated.RejectionReason)

	// A second requisition approved past pending can no longer be
	// rejected.
	second, err := svc.Submit(ctx, 1, SubmitInput{ItemName: "monitor"})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, second.ID, 12, workflow.Command{Action: workflow.ActionApprove})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, second.ID, 13, workflow.Command{
		Action:          workflow.ActionReject,
		RejectionReason: "changed my mind",
	})
	require.ErrorIs(t, err, workflow.ErrIllegalTransition)
}

func TestRequisitionStageAuthorization(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	created, err := svc.Submit(ctx, 1, SubmitInput{ItemName: "keyboard"})
	require.NoError(t, err)

	// IT manager cannot act while the requisition waits on the HOD.
	_, err = svc.Transition(ctx, created.ID, 13, workflow.Command{Action: workflow.ActionApprove})
	require.ErrorIs(t, err, workflow.ErrUnauthorized)

	_, err = svc.Transition(ctx, created.ID, 12, workflow.Command{Action: workflow.ActionApprove})
	require.NoError(t, err)

	// Delivery confirmation belongs to IT support, not the HOD.
	_, err = svc.Transition(ctx, created.ID, 13, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, created.ID, 12, workflow.Command{Action: workflow.ActionApprove})
	require.ErrorIs(t, err, workflow.ErrUnauthorized)
}

func TestRequisitionListScopes(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	created, err := svc.Submit(ctx, 1, SubmitInput{ItemName: "chair"})
	require.NoError(t, err)

	// Employee sees only their own submissions.
	mine, err := svc.List(ctx, 1, "", 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, created.ID, mine[0].ID)

	// HOD is scoped to the department.
	dept, err := svc.List(ctx, 12, workflow.StagePending, 0)
	require.NoError(t, err)
	require.Len(t, dept, 1)

	// IT manager sees the full queue.
	all, err := svc.List(ctx, 13, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
