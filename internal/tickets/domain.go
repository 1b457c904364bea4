package tickets

import (
	"time"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// Ticket is an IT ticket moving through the support lifecycle. The
// chain is staff-internal: assignment starts work, two approve steps
// resolve and close it.
type Ticket struct {
	ID          int64
	RequesterID int64

	RequesterName string
	Department    string

	Subject     string
	Description string

	Status     workflow.Stage
	Version    int64
	AssigneeID *int64

	AssignedByID *int64
	AssignedAt   *time.Time
	ResolvedByID *int64
	ResolvedAt   *time.Time
	ClosedByID   *int64
	ClosedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record maps the row into the state-machine view.
func (t Ticket) Record() workflow.Record {
	rec := workflow.Record{
		ID:          t.ID,
		Kind:        workflow.KindTicket,
		RequesterID: t.RequesterID,
		Status:      t.Status,
		Version:     t.Version,
		StageActors: make(map[workflow.Stage]workflow.StageStamp, 3),
	}
	if t.AssigneeID != nil {
		rec.AssigneeID = *t.AssigneeID
	}
	if t.AssignedByID != nil && t.AssignedAt != nil {
		rec.StageActors[workflow.StageOpen] = workflow.StageStamp{ActorID: *t.AssignedByID, At: *t.AssignedAt}
	}
	if t.ResolvedByID != nil && t.ResolvedAt != nil {
		rec.StageActors[workflow.StageInProgress] = workflow.StageStamp{ActorID: *t.ResolvedByID, At: *t.ResolvedAt}
	}
	if t.ClosedByID != nil && t.ClosedAt != nil {
		rec.StageActors[workflow.StageResolved] = workflow.StageStamp{ActorID: *t.ClosedByID, At: *t.ClosedAt}
	}
	return rec
}

func (t *Ticket) setStamp(stage workflow.Stage, s workflow.StageStamp) {
	id, at := s.ActorID, s.At
	switch stage {
	case workflow.StageOpen:
		t.AssignedByID, t.AssignedAt = &id, &at
	case workflow.StageInProgress:
		t.ResolvedByID, t.ResolvedAt = &id, &at
	case workflow.StageResolved:
		t.ClosedByID, t.ClosedAt = &id, &at
	}
}

// merge writes the post-transition record state back into the row.
func (t *Ticket) merge(rec workflow.Record) {
	t.Status = rec.Status
	t.Version = rec.Version
	if rec.AssigneeID != 0 {
		id := rec.AssigneeID
		t.AssigneeID = &id
	}
	for stage, stamp := range rec.StageActors {
		t.setStamp(stage, stamp)
	}
}

func stampColumn(stage workflow.Stage) (idCol, atCol string, ok bool) {
	switch stage {
	case workflow.StageOpen:
		return "assigned_by_id", "assigned_at", true
	case workflow.StageInProgress:
		return "resolved_by_id", "resolved_at", true
	case workflow.StageResolved:
		return "closed_by_id", "closed_at", true
	}
	return "", "", false
}
