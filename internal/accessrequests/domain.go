package accessrequests

import (
	"time"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// AccessRequest is a system access request moving through the
// four-step approval chain. The stage actor columns mirror
// workflow.Record.StageActors one column pair per stage.
type AccessRequest struct {
	ID          int64
	RequesterID int64

	// Denormalized from users at read time.
	RequesterName string
	Department    string

	Justification string
	StartDate     *time.Time
	EndDate       *time.Time
	IsPermanent   bool

	Status          workflow.Stage
	Version         int64
	AssigneeID      *int64
	RejectionReason string

	LineManagerID *int64
	LineManagerAt *time.Time
	HODID         *int64
	HODAt         *time.Time
	ITManagerID   *int64
	ITManagerAt   *time.Time
	ITSupportID   *int64
	ITSupportAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// stampSlots orders the stage actor column pairs along the happy path.
var stampSlots = []workflow.Stage{
	workflow.StagePendingLineManager,
	workflow.StagePendingHOD,
	workflow.StagePendingITManager,
	workflow.StageReadyForAssignment,
}

// Record maps the row into the state-machine view consumed by
// Engine.Apply.
func (a AccessRequest) Record() workflow.Record {
	rec := workflow.Record{
		ID:              a.ID,
		Kind:            workflow.KindAccessRequest,
		RequesterID:     a.RequesterID,
		Status:          a.Status,
		Version:         a.Version,
		RejectionReason: a.RejectionReason,
		StageActors:     make(map[workflow.Stage]workflow.StageStamp, len(stampSlots)),
	}
	if a.AssigneeID != nil {
		rec.AssigneeID = *a.AssigneeID
	}
	for _, stage := range stampSlots {
		id, at := a.stamp(stage)
		if id != nil && at != nil {
			rec.StageActors[stage] = workflow.StageStamp{ActorID: *id, At: *at}
		}
	}
	return rec
}

func (a *AccessRequest) stamp(stage workflow.Stage) (*int64, *time.Time) {
	switch stage {
	case workflow.StagePendingLineManager:
		return a.LineManagerID, a.LineManagerAt
	case workflow.StagePendingHOD:
		return a.HODID, a.HODAt
	case workflow.StagePendingITManager:
		return a.ITManagerID, a.ITManagerAt
	case workflow.StageReadyForAssignment:
		return a.ITSupportID, a.ITSupportAt
	}
	return nil, nil
}

func (a *AccessRequest) setStamp(stage workflow.Stage, s workflow.StageStamp) {
	id, at := s.ActorID, s.At
	switch stage {
	case workflow.StagePendingLineManager:
		a.LineManagerID, a.LineManagerAt = &id, &at
	case workflow.StagePendingHOD:
		a.HODID, a.HODAt = &id, &at
	case workflow.StagePendingITManager:
		a.ITManagerID, a.ITManagerAt = &id, &at
	case workflow.StageReadyForAssignment:
		a.ITSupportID, a.ITSupportAt = &id, &at
	}
}

// merge writes the post-transition record state back into the row.
func (a *AccessRequest) merge(rec workflow.Record) {
	a.Status = rec.Status
	a.Version = rec.Version
	a.RejectionReason = rec.RejectionReason
	if rec.AssigneeID != 0 {
		id := rec.AssigneeID
		a.AssigneeID = &id
	}
	for stage, stamp := range rec.StageActors {
		a.setStamp(stage, stamp)
	}
}

// stampColumn names the column pair for the stage acted on, used by
// the repository to build the guarded UPDATE.
func stampColumn(stage workflow.Stage) (idCol, atCol string, ok bool) {
	switch stage {
	case workflow.StagePendingLineManager:
		return "line_manager_id", "line_manager_at", true
	case workflow.StagePendingHOD:
		return "hod_id", "hod_at", true
	case workflow.StagePendingITManager:
		return "it_manager_id", "it_manager_at", true
	case workflow.StageReadyForAssignment:
		return "it_support_id", "it_support_at", true
	}
	return "", "", false
}

// stagesForRole returns the access-request stages a role acts at,
// powering the approved_by projection. IT managers act at two stages:
// the approval step and the assignment step.
func stagesForRole(role workflow.Role) []workflow.Stage {
	switch role {
	case workflow.RoleLineManager:
		return []workflow.Stage{workflow.StagePendingLineManager}
	case workflow.RoleHOD:
		return []workflow.Stage{workflow.StagePendingHOD}
	case workflow.RoleITManager:
		return []workflow.Stage{workflow.StagePendingITManager, workflow.StageReadyForAssignment}
	case workflow.RoleITSupport, workflow.RoleAdmin:
		return []workflow.Stage{workflow.StageReadyForAssignment}
	}
	return nil
}
