package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	lineManager = Actor{ID: 11, Name: "Lina Manzi", Email: "lina@smartflow.test", Role: RoleLineManager}
	hod         = Actor{ID: 12, Name: "Henry Dusabe", Email: "henry@smartflow.test", Role: RoleHOD}
	itManager   = Actor{ID: 13, Name: "Sami Uwase", Email: "sami@smartflow.test", Role: RoleITManager}
	itSupport   = Actor{ID: 14, Name: "Tom Iraguha", Email: "tom@smartflow.test", Role: RoleITSupport}
)

func newAccessRequest(t *testing.T) Record {
	t.Helper()
	rec, err := NewEngine().NewRecord(KindAccessRequest, 7)
	require.NoError(t, err)
	rec.ID = 101
	return rec
}

func TestApplyApproveAdvancesAndStamps(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)
	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)

	out, tr, err := e.Apply(rec, Command{Action: ActionApprove, Comment: "ok"}, lineManager, now)
	require.NoError(t, err)

	require.Equal(t, StagePendingHOD, out.Status)
	require.Equal(t, rec.Version+1, out.Version)
	require.Equal(t, StageStamp{ActorID: lineManager.ID, At: now}, out.StageActors[StagePendingLineManager])

	require.Equal(t, StagePendingLineManager, tr.From)
	require.Equal(t, StagePendingHOD, tr.To)
	require.Equal(t, ActionApprove, tr.Action)
	require.Equal(t, "ok", tr.Entry.Comment)
	require.Equal(t, lineManager.Name, tr.Entry.ActorName)

	// Input record untouched.
	require.Equal(t, StagePendingLineManager, rec.Status)
	require.Empty(t, rec.StageActors)
}

func TestApplyRejectSetsReasonAndFinalizes(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)
	now := time.Now()

	rec, _, err := e.Apply(rec, Command{Action: ActionApprove}, lineManager, now)
	require.NoError(t, err)

	rec, tr, err := e.Apply(rec, Command{Action: ActionReject, RejectionReason: "insufficient justification"}, hod, now)
	require.NoError(t, err)
	require.Equal(t, StageRejected, rec.Status)
	require.Equal(t, "insufficient justification", rec.RejectionReason)
	require.Equal(t, "insufficient justification", tr.RejectionReason)

	// A third apply on the finalized record always fails.
	_, _, err = e.Apply(rec, Command{Action: ActionApprove}, itManager, now)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestApplyUnauthorizedLeavesRecordUnchanged(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)

	out, _, err := e.Apply(rec, Command{Action: ActionApprove}, hod, time.Now())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, rec, out)
}

func TestApplyRejectRequiresReason(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)

	_, _, err := e.Apply(rec, Command{Action: ActionReject, RejectionReason: "   "}, lineManager, time.Now())
	require.ErrorIs(t, err, ErrMissingReason)
}

func TestApplyAssignRequiresAssignee(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)
	now := time.Now()

	var err error
	rec, _, err = e.Apply(rec, Command{Action: ActionApprove}, lineManager, now)
	require.NoError(t, err)
	rec, _, err = e.Apply(rec, Command{Action: ActionApprove}, hod, now)
	require.NoError(t, err)
	rec, _, err = e.Apply(rec, Command{Action: ActionApprove}, itManager, now)
	require.NoError(t, err)
	require.Equal(t, StageReadyForAssignment, rec.Status)

	before := rec
	_, _, err = e.Apply(rec, Command{Action: ActionAssign}, itManager, now)
	require.ErrorIs(t, err, ErrMissingAssignee)
	require.Equal(t, before, rec)

	rec, tr, err := e.Apply(rec, Command{Action: ActionAssign, AssigneeID: 42}, itManager, now)
	require.NoError(t, err)
	require.Equal(t, StageGranted, rec.Status)
	require.Equal(t, int64(42), rec.AssigneeID)
	require.Equal(t, int64(42), tr.AssigneeID)
}

func TestApplyAssignNotDefinedMidChain(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)

	_, _, err := e.Apply(rec, Command{Action: ActionAssign, AssigneeID: 42}, lineManager, time.Now())
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestApplyDetectsGapInStamps(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)
	// A record at pending_hod without the line manager stamp is corrupt.
	rec.Status = StagePendingHOD

	_, _, err := e.Apply(rec, Command{Action: ActionApprove}, hod, time.Now())
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestFullApprovalChainStampsEveryStage(t *testing.T) {
	e := NewEngine()
	rec := newAccessRequest(t)
	now := time.Now()

	steps := []struct {
		actor Actor
		cmd   Command
	}{
		{lineManager, Command{Action: ActionApprove}},
		{hod, Command{Action: ActionApprove}},
		{itManager, Command{Action: ActionApprove}},
		{itManager, Command{Action: ActionAssign, AssigneeID: 42}},
	}
	for _, step := range steps {
		var err error
		rec, _, err = e.Apply(rec, step.cmd, step.actor, now)
		require.NoError(t, err)
	}
	require.Equal(t, StageGranted, rec.Status)
	require.Len(t, rec.StageActors, 4)
	require.Equal(t, lineManager.ID, rec.StageActors[StagePendingLineManager].ActorID)
	require.Equal(t, hod.ID, rec.StageActors[StagePendingHOD].ActorID)
	require.Equal(t, itManager.ID, rec.StageActors[StagePendingITManager].ActorID)
	require.Equal(t, itManager.ID, rec.StageActors[StageReadyForAssignment].ActorID)
}

func TestTicketLifecycle(t *testing.T) {
	e := NewEngine()
	rec, err := e.NewRecord(KindTicket, 7)
	require.NoError(t, err)
	rec.ID = 55
	now := time.Now()

	rec, _, err = e.Apply(rec, Command{Action: ActionAssign, AssigneeID: itSupport.ID}, itSupport, now)
	require.NoError(t, err)
	require.Equal(t, StageInProgress, rec.Status)

	rec, _, err = e.Apply(rec, Command{Action: ActionApprove}, itSupport, now)
	require.NoError(t, err)
	require.Equal(t, StageResolved, rec.Status)

	rec, _, err = e.Apply(rec, Command{Action: ActionApprove}, itManager, now)
	require.NoError(t, err)
	require.Equal(t, StageClosed, rec.Status)

	_, _, err = e.Apply(rec, Command{Action: ActionApprove}, itManager, now)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestRequisitionLifecycle(t *testing.T) {
	e := NewEngine()
	rec, err := e.NewRecord(KindRequisition, 7)
	require.NoError(t, err)
	rec.ID = 77
	now := time.Now()

	// Line managers have no say over requisitions.
	_, _, err = e.Apply(rec, Command{Action: ActionApprove}, lineManager, now)
	require.ErrorIs(t, err, ErrUnauthorized)

	rec, _, err = e.Apply(rec, Command{Action: ActionApprove}, hod, now)
	require.NoError(t, err)
	require.Equal(t, StageApproved, rec.Status)

	rec, _, err = e.Apply(rec, Command{Action: ActionAssign, AssigneeID: itSupport.ID}, itManager, now)
	require.NoError(t, err)
	require.Equal(t, StageAssigned, rec.Status)

	rec, _, err = e.Apply(rec, Command{Action: ActionApprove}, itSupport, now)
	require.NoError(t, err)
	require.Equal(t, StageDelivered, rec.Status)
}
