package requisitions

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rukundowilson/smartflow/internal/platform/httpx"
	"github.com/rukundowilson/smartflow/internal/rbac"
	"github.com/rukundowilson/smartflow/internal/shared"
	"github.com/rukundowilson/smartflow/internal/workflow"
)

var validate = validator.New()

// Handler serves the requisition endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes attaches requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("requisition.create"))
		r.Post("/", h.Submit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("requisition.view", "requisition.review"))
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("requisition.review"))
		r.Put("/{id}/status", h.UpdateStatus)
		r.Put("/{id}/assign", h.Assign)
	})
}

type submitRequisitionRequest struct {
	ItemName      string `json:"item_name" validate:"required"`
	Quantity      int32  `json:"quantity" validate:"omitempty,gt=0"`
	Justification string `json:"justification"`
}

// updateStatusRequest carries approve or reject; reject requires a
// reason.
type updateStatusRequest struct {
	Action          string `json:"action" validate:"required,oneof=approve reject"`
	RejectionReason string `json:"rejection_reason"`
	Comment         string `json:"comment"`
}

type assignRequisitionRequest struct {
	AssignedUserID int64  `json:"assigned_user_id" validate:"required,gt=0"`
	Comment        string `json:"comment"`
}

type requisitionResponse struct {
	ID              int64  `json:"id"`
	RequesterID     int64  `json:"requester_id"`
	RequesterName   string `json:"requester_name,omitempty"`
	Department      string `json:"department,omitempty"`
	ItemName        string `json:"item_name"`
	Quantity        int32  `json:"quantity"`
	Justification   string `json:"justification,omitempty"`
	Status          string `json:"status"`
	StatusLabel     string `json:"status_label,omitempty"`
	StatusTone      string `json:"status_tone,omitempty"`
	Version         int64  `json:"version"`
	AssigneeID      *int64 `json:"assignee_id,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toResponse(q Requisition) requisitionResponse {
	resp := requisitionResponse{
		ID:              q.ID,
		RequesterID:     q.RequesterID,
		RequesterName:   q.RequesterName,
		Department:      q.Department,
		ItemName:        q.ItemName,
		Quantity:        q.Quantity,
		Justification:   q.Justification,
		Status:          string(q.Status),
		Version:         q.Version,
		AssigneeID:      q.AssigneeID,
		RejectionReason: q.RejectionReason,
		CreatedAt:       q.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       q.UpdatedAt.Format(time.RFC3339),
	}
	if rules, ok := workflow.Rules(workflow.KindRequisition); ok {
		if def, ok := rules.Definition(q.Status); ok {
			resp.StatusLabel = def.Label
			resp.StatusTone = def.Tone
		}
	}
	return resp
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	var req submitRequisitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Submit(r.Context(), actorID, SubmitInput{
		ItemName:      req.ItemName,
		Quantity:      req.Quantity,
		Justification: req.Justification,
	})
	if err != nil {
		h.logger.Error("submit requisition", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	var requesterID int64
	if raw := r.URL.Query().Get("requester_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "requester_id must be numeric")
			return
		}
		requesterID = id
	}
	list, err := h.service.List(r.Context(), actorID, workflow.Stage(r.URL.Query().Get("status")), requesterID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]requisitionResponse, 0, len(list))
	for _, q := range list {
		out = append(out, toResponse(q))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisitions": out})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q, history, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries := make([]map[string]any, 0, len(history))
	for _, e := range history {
		entries = append(entries, map[string]any{
			"id":          e.ID,
			"actor_id":    e.ActorID,
			"actor_name":  e.ActorName,
			"actor_email": e.ActorEmail,
			"action":      string(e.Action),
			"comment":     e.Comment,
			"at":          e.At.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"requisition": toResponse(q),
		"history":     entries,
	})
}

// UpdateStatus applies approve or reject depending on the body.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cmd := workflow.Command{Action: workflow.ActionApprove, Comment: req.Comment}
	if req.Action == "reject" {
		cmd = workflow.Command{
			Action:          workflow.ActionReject,
			Comment:         req.Comment,
			RejectionReason: req.RejectionReason,
		}
	}
	h.transition(w, r, cmd)
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequisitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.transition(w, r, workflow.Command{
		Action:     workflow.ActionAssign,
		Comment:    req.Comment,
		AssigneeID: req.AssignedUserID,
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, cmd workflow.Command) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Transition(r.Context(), id, actorID, cmd)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return 0, false
	}
	return id, true
}
