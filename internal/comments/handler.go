package comments

import (
	"errors"
	"fmt"
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

// Handler serves the comment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes attaches comment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("comment.view", "comment.create"))
		r.Get("/", h.List)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("comment.create"))
		r.Post("/", h.Post)
	})
}

type postCommentRequest struct {
	CommentType string `json:"comment_type" validate:"required"`
	CommentedID int64  `json:"commented_id" validate:"required,gt=0"`
	Content     string `json:"content" validate:"required"`
}

type commentResponse struct {
	ID          int64  `json:"id"`
	CommentType string `json:"comment_type"`
	CommentedID int64  `json:"commented_id"`
	CommentedBy int64  `json:"commented_by"`
	AuthorName  string `json:"author_name,omitempty"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

func toResponse(c Comment) commentResponse {
	return commentResponse{
		ID:          c.ID,
		CommentType: string(c.CommentType),
		CommentedID: c.CommentedID,
		CommentedBy: c.CommentedBy,
		AuthorName:  c.AuthorName,
		Content:     c.Content,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}
	var req postCommentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Post(r.Context(), actorID, workflow.Kind(req.CommentType), req.CommentedID, req.Content)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	kind := workflow.Kind(r.URL.Query().Get("comment_type"))
	commentedID, err := strconv.ParseInt(r.URL.Query().Get("commented_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "commented_id must be numeric")
		return
	}
	list, err := h.service.ListFor(r.Context(), kind, commentedID)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	out := make([]commentResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toResponse(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comments": out})
}

func mapErr(err error) error {
	if errors.Is(err, ErrValidation) {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	return err
}
