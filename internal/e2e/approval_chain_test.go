package e2e

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// step is one actor action in a scripted lifecycle.
type step struct {
	actor   workflow.Actor
	command workflow.Command
	want    workflow.Stage
}

func runChain(t *testing.T, kind workflow.Kind, steps []step) workflow.Record {
	t.Helper()
	engine := workflow.NewEngine()
	rec, err := engine.NewRecord(kind, 1)
	require.NoError(t, err)
	rec.ID = 100

	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, s := range steps {
		now = now.Add(time.Hour)
		next, tr, err := engine.Apply(rec, s.command, s.actor, now)
		require.NoErrorf(t, err, "step %d (%s by %s)", i, s.command.Action, s.actor.Role)
		require.Equal(t, s.want, next.Status, "step %d", i)
		require.Equal(t, rec.Status, tr.From, "step %d", i)
		require.Equal(t, rec.Version+1, next.Version, "step %d", i)
		require.Equal(t, s.actor.ID, tr.Stamp.ActorID, "step %d", i)
		rec = next
	}
	return rec
}

func TestAccessRequestChainEndToEnd(t *testing.T) {
	lineManager := workflow.Actor{ID: 11, Name: "Lena", Role: workflow.RoleLineManager}
	hod := workflow.Actor{ID: 12, Name: "Harold", Role: workflow.RoleHOD}
	itManager := workflow.Actor{ID: 13, Name: "Ida", Role: workflow.RoleITManager}

	rec := runChain(t, workflow.KindAccessRequest, []step{
		{lineManager, workflow.Command{Action: workflow.ActionApprove}, workflow.StagePendingHOD},
		{hod, workflow.Command{Action: workflow.ActionApprove}, workflow.StagePendingITManager},
		{itManager, workflow.Command{Action: workflow.ActionApprove}, workflow.StageReadyForAssignment},
		{itManager, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14}, workflow.StageGranted},
	})

	require.Equal(t, int64(14), rec.AssigneeID)
	require.Len(t, rec.StageActors, 4)

	// Terminal records refuse every further action.
	engine := workflow.NewEngine()
	_, _, err := engine.Apply(rec, workflow.Command{Action: workflow.ActionApprove}, itManager, time.Now())
	require.True(t, errors.Is(err, workflow.ErrAlreadyFinalized))
}

func TestTicketChainEndToEnd(t *testing.T) {
	support := workflow.Actor{ID: 14, Name: "Sam", Role: workflow.RoleITSupport}

	rec := runChain(t, workflow.KindTicket, []step{
		{support, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14}, workflow.StageInProgress},
		{support, workflow.Command{Action: workflow.ActionApprove}, workflow.StageResolved},
		{support, workflow.Command{Action: workflow.ActionApprove}, workflow.StageClosed},
	})
	require.Equal(t, workflow.StageClosed, rec.Status)
}

func TestRequisitionChainEndToEnd(t *testing.T) {
	hod := workflow.Actor{ID: 12, Name: "Harold", Role: workflow.RoleHOD}
	itManager := workflow.Actor{ID: 13, Name: "Ida", Role: workflow.RoleITManager}
	support := workflow.Actor{ID: 14, Name: "Sam", Role: workflow.RoleITSupport}

	rec := runChain(t, workflow.KindRequisition, []step{
		{hod, workflow.Command{Action: workflow.ActionApprove}, workflow.StageApproved},
		{itManager, workflow.Command{Action: workflow.ActionAssign, AssigneeID: 14}, workflow.StageAssigned},
		{support, workflow.Command{Action: workflow.ActionApprove}, workflow.StageDelivered},
	})
	require.Equal(t, int64(14), rec.AssigneeID)
}

func TestChainRejectionPaths(t *testing.T) {
	engine := workflow.NewEngine()

	t.Run("access request rejected mid-chain", func(t *testing.T) {
		rec := runChain(t, workflow.KindAccessRequest, []step{
			{workflow.Actor{ID: 11, Role: workflow.RoleLineManager}, workflow.Command{Action: workflow.ActionApprove}, workflow.StagePendingHOD},
		})
		hod := workflow.Actor{ID: 12, Role: workflow.RoleHOD}
		next, tr, err := engine.Apply(rec, workflow.Command{Action: workflow.ActionReject, RejectionReason: "No budget line"}, hod, time.Now())
		require.NoError(t, err)
		require.Equal(t, workflow.StageRejected, next.Status)
		require.Equal(t, "No budget line", tr.RejectionReason)
	})

	t.Run("reject without reason refused", func(t *testing.T) {
		rec, err := engine.NewRecord(workflow.KindRequisition, 1)
		require.NoError(t, err)
		hod := workflow.Actor{ID: 12, Role: workflow.RoleHOD}
		_, _, err = engine.Apply(rec, workflow.Command{Action: workflow.ActionReject}, hod, time.Now())
		require.True(t, errors.Is(err, workflow.ErrMissingReason))
	})

	t.Run("wrong role refused at every stage", func(t *testing.T) {
		rec, err := engine.NewRecord(workflow.KindAccessRequest, 1)
		require.NoError(t, err)
		employee := workflow.Actor{ID: 1, Role: workflow.RoleEmployee}
		_, _, err = engine.Apply(rec, workflow.Command{Action: workflow.ActionApprove}, employee, time.Now())
		require.True(t, errors.Is(err, workflow.ErrUnauthorized))
	})
}
