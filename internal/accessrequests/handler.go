package accessrequests

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rukundowilson/smartflow/internal/platform/httpx"
	"github.com/rukundowilson/smartflow/internal/rbac"
	"github.com/rukundowilson/smartflow/internal/shared"
	"github.com/rukundowilson/smartflow/internal/workflow"
)

var validate = validator.New()

// Handler serves the access request endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes attaches access request routes. Route guards are
// advisory; the engine re-checks stage authorization against the
// authoritative record.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("access_request.create"))
		r.Post("/", h.Submit)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("access_request.view", "access_request.review"))
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("access_request.review"))
		r.Get("/pending", h.Pending)
		r.Get("/history", h.History)
		r.Put("/{id}/approve", h.Approve)
		r.Put("/{id}/reject", h.Reject)
		r.Put("/{id}/assign", h.Assign)
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be YYYY-MM-DD")
		return
	}
	created, err := h.service.Submit(r.Context(), actorID, SubmitInput{
		Justification: req.Justification,
		StartDate:     start,
		EndDate:       end,
		IsPermanent:   req.IsPermanent,
	})
	if err != nil {
		h.logger.Error("submit access request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	record, history, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"request": toResponse(record),
		"history": toHistoryResponse(history),
	})
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	list, err := h.service.Pending(r.Context(), actorID)
	if err != nil {
		h.logger.Error("pending access requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": h.listResponse(list)})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	list, err := h.service.History(r.Context(), actorID, r.URL.Query().Get("scope"))
	if err != nil {
		h.logger.Error("access request history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": h.listResponse(list)})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	h.transition(w, r, workflow.Command{Action: workflow.ActionApprove, Comment: req.Comment})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	h.transition(w, r, workflow.Command{
		Action:          workflow.ActionReject,
		Comment:         req.Comment,
		RejectionReason: req.RejectionReason,
	})
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
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

func (h *Handler) listResponse(list []AccessRequest) []requestResponse {
	out := make([]requestResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toResponse(a))
	}
	return out
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return 0, false
	}
	return id, true
}
