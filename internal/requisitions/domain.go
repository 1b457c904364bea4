package requisitions

import (
	"time"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// Requisition is an item requisition moving through approval,
// assignment and delivery: HOD approves, IT manager assigns the item,
// IT support confirms delivery.
type Requisition struct {
	ID          int64
	RequesterID int64

	RequesterName string
	Department    string

	ItemName      string
	Quantity      int32
	Justification string

	Status          workflow.Stage
	Version         int64
	AssigneeID      *int64
	RejectionReason string

	HODID       *int64
	HODAt       *time.Time
	ITManagerID *int64
	ITManagerAt *time.Time
	ITSupportID *int64
	ITSupportAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record maps the row into the state-machine view.
func (q Requisition) Record() workflow.Record {
	rec := workflow.Record{
		ID:              q.ID,
		Kind:            workflow.KindRequisition,
		RequesterID:     q.RequesterID,
		Status:          q.Status,
		Version:         q.Version,
		RejectionReason: q.RejectionReason,
		StageActors:     make(map[workflow.Stage]workflow.StageStamp, 3),
	}
	if q.AssigneeID != nil {
		rec.AssigneeID = *q.AssigneeID
	}
	if q.HODID != nil && q.HODAt != nil {
		rec.StageActors[workflow.StagePending] = workflow.StageStamp{ActorID: *q.HODID, At: *q.HODAt}
	}
	if q.ITManagerID != nil && q.ITManagerAt != nil {
		rec.StageActors[workflow.StageApproved] = workflow.StageStamp{ActorID: *q.ITManagerID, At: *q.ITManagerAt}
	}
	if q.ITSupportID != nil && q.ITSupportAt != nil {
		rec.StageActors[workflow.StageAssigned] = workflow.StageStamp{ActorID: *q.ITSupportID, At: *q.ITSupportAt}
	}
	return rec
}

func (q *Requisition) setStamp(stage workflow.Stage, s workflow.StageStamp) {
	id, at := s.ActorID, s.At
	switch stage {
	case workflow.StagePending:
		q.HODID, q.HODAt = &id, &at
	case workflow.StageApproved:
		q.ITManagerID, q.ITManagerAt = &id, &at
	case workflow.StageAssigned:
		q.ITSupportID, q.ITSupportAt = &id, &at
	}
}

// merge writes the post-transition record state back into the row.
func (q *Requisition) merge(rec workflow.Record) {
	q.Status = rec.Status
	q.Version = rec.Version
	q.RejectionReason = rec.RejectionReason
	if rec.AssigneeID != 0 {
		id := rec.AssigneeID
		q.AssigneeID = &id
	}
	for stage, stamp := range rec.StageActors {
		q.setStamp(stage, stamp)
	}
}

func stampColumn(stage workflow.Stage) (idCol, atCol string, ok bool) {
	switch stage {
	case workflow.StagePending:
		return "hod_id", "hod_at", true
	case workflow.StageApproved:
		return "it_manager_id", "it_manager_at", true
	case workflow.StageAssigned:
		return "it_support_id", "it_support_at", true
	}
	return "", "", false
}
