package tickets

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
	rows    map[int64]Ticket
	ledger  map[int64][]workflow.HistoryEntry
	entryID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID: 1,
		rows:   make(map[int64]Ticket),
		ledger: make(map[int64][]workflow.HistoryEntry),
	}
}

func (m *memoryRepo) Create(_ context.Context, t Ticket) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID
	m.nextID++
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.rows[t.ID] = t
	return t, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return Ticket{}, workflow.ErrNotFound
	}
	return t, nil
}

func (m *memoryRepo) List(_ context.Context, status workflow.Stage, requesterID int64) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Ticket
	for _, t := range m.rows {
		if status != "" && t.Status != status {
			continue
		}
		if requesterID != 0 && t.RequesterID != requesterID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryRepo) ApplyTransition(_ context.Context, prior Ticket, tr workflow.Transition) error {
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
			14: {ID: 14, Name: "Sam Support", Email: "sam@corp.test", Department: "IT", Role: workflow.RoleITSupport, IsActive: true},
			13: {ID: 13, Name: "Ida Tech", Email: "ida@corp.test", Department: "IT", Role: workflow.RoleITManager, IsActive: true},
		}},
	})
}

func TestTicketLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	created, err := svc.Submit(ctx, 1, SubmitInput{Subject: "laptop will not boot", Description: "black screen on power"})
	require.NoError(t, err)
	require.Equal(t, workflow.StageOpen, created.Status)

	// Assign starts work.
	updated, err := svc.Transition(ctx, created.ID, 13, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14})
	require.NoError(t, err)
	require.Equal(t, workflow.StageInProgress, updated.Status)
	require.NotNil(t, updated.AssigneeID)
	require.EqualValues(t, 14, *updated.AssigneeID)

	// Two approve steps resolve and close.
	updated, err = svc.Transition(ctx, created.ID, 14, workflow.Command{Action: workflow.ActionApprove, Comment: "replaced PSU"})
	require.NoError(t, err)
	require.Equal(t, workflow.StageResolved, updated.Status)

	updated, err = svc.Transition(ctx, created.ID, 14, workflow.Command{Action: workflow.ActionApprove})
	require.NoError(t, err)
	require.Equal(t, workflow.StageClosed, updated.Status)

	_, history, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	_, err = svc.Transition(ctx, created.ID, 14, workflow.Command{Action: workflow.ActionApprove})
	require.ErrorIs(t, err, workflow.ErrAlreadyFinalized)
}

func TestTicketRequesterCannotAdvance(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	created, err := svc.Submit(ctx, 1, SubmitInput{Subject: "vpn flaky"})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, created.ID, 1, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14})
	require.ErrorIs(t, err, workflow.ErrUnauthorized)
}

func TestTicketApproveBeforeAssignIllegal(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	created, err := svc.Submit(ctx, 1, SubmitInput{Subject: "printer jam"})
	require.NoError(t, err)

	// Approve is undefined at open; work must be assigned first.
	_, err = svc.Transition(ctx, created.ID, 14, workflow.Command{Action: workflow.ActionApprove})
	require.ErrorIs(t, err, workflow.ErrIllegalTransition)
}

func TestTicketListFilters(t *testing.T) {
	repo := newMemoryRepo()
	svc := testService(repo)
	ctx := context.Background()

	first, err := svc.Submit(ctx, 1, SubmitInput{Subject: "one"})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, 1, SubmitInput{Subject: "two"})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, first.ID, 13, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14})
	require.NoError(t, err)

	open, err := svc.List(ctx, workflow.StageOpen, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)

	inProgress, err := svc.List(ctx, workflow.StageInProgress, 0)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	require.Equal(t, first.ID, inProgress[0].ID)

	_, err = svc.List(ctx, workflow.Stage("bogus"), 0)
	require.ErrorIs(t, err, workflow.ErrIllegalTransition)
}
