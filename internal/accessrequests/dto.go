package accessrequests

import (
	"time"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

type submitRequest struct {
	Justification string `json:"justification" validate:"required"`
	StartDate     string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	IsPermanent   bool   `json:"is_permanent"`
}

type approveRequest struct {
	Comment string `json:"comment"`
}

type rejectRequest struct {
	RejectionReason string `json:"rejection_reason" validate:"required"`
	Comment         string `json:"comment"`
}

type assignRequest struct {
	AssignedUserID int64  `json:"assigned_user_id" validate:"required,gt=0"`
	Comment        string `json:"comment"`
}

type stampResponse struct {
	ActorID int64  `json:"actor_id"`
	At      string `json:"at"`
}

type requestResponse struct {
	ID              int64                    `json:"id"`
	RequesterID     int64                    `json:"requester_id"`
	RequesterName   string                   `json:"requester_name,omitempty"`
	Department      string                   `json:"department,omitempty"`
	Justification   string                   `json:"justification"`
	StartDate       *string                  `json:"start_date,omitempty"`
	EndDate         *string                  `json:"end_date,omitempty"`
	IsPermanent     bool                     `json:"is_permanent"`
	Status          string                   `json:"status"`
	StatusLabel     string                   `json:"status_label,omitempty"`
	StatusTone      string                   `json:"status_tone,omitempty"`
	Version         int64                    `json:"version"`
	AssigneeID      *int64                   `json:"assignee_id,omitempty"`
	RejectionReason string                   `json:"rejection_reason,omitempty"`
	StageActors     map[string]stampResponse `json:"stage_actors"`
	CreatedAt       string                   `json:"created_at"`
	UpdatedAt       string                   `json:"updated_at"`
}

type historyEntryResponse struct {
	ID         int64  `json:"id"`
	ActorID    int64  `json:"actor_id"`
	ActorName  string `json:"actor_name"`
	ActorEmail string `json:"actor_email"`
	Action     string `json:"action"`
	Comment    string `json:"comment,omitempty"`
	At         string `json:"at"`
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func toResponse(a AccessRequest) requestResponse {
	resp := requestResponse{
		ID:              a.ID,
		RequesterID:     a.RequesterID,
		RequesterName:   a.RequesterName,
		Department:      a.Department,
		Justification:   a.Justification,
		StartDate:       dateString(a.StartDate),
		EndDate:         dateString(a.EndDate),
		IsPermanent:     a.IsPermanent,
		Status:          string(a.Status),
		Version:         a.Version,
		AssigneeID:      a.AssigneeID,
		RejectionReason: a.RejectionReason,
		StageActors:     make(map[string]stampResponse),
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.Format(time.RFC3339),
	}
	if rules, ok := workflow.Rules(workflow.KindAccessRequest); ok {
		if def, ok := rules.Definition(a.Status); ok {
			resp.StatusLabel = def.Label
			resp.StatusTone = def.Tone
		}
	}
	for stage, stamp := range a.Record().StageActors {
		resp.StageActors[string(stage)] = stampResponse{
			ActorID: stamp.ActorID,
			At:      stamp.At.Format(time.RFC3339),
		}
	}
	return resp
}

func toHistoryResponse(entries []workflow.HistoryEntry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			ActorName:  e.ActorName,
			ActorEmail: e.ActorEmail,
			Action:     string(e.Action),
			Comment:    e.Comment,
			At:         e.At.Format(time.RFC3339),
		})
	}
	return out
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
