// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain and workflow errors to HTTP responses using
// RFC7807. Every transition failure surfaces as a typed problem, never
// a silent no-op.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrUnauthorized):
		Problem(w, http.StatusForbidden, "Not Authorized For Stage", err.Error())
	case errors.Is(err, workflow.ErrAlreadyFinalized):
		Problem(w, http.StatusConflict, "Already Finalized", err.Error())
	case errors.Is(err, workflow.ErrIllegalTransition):
		Problem(w, http.StatusUnprocessableEntity, "Illegal Transition", err.Error())
	case errors.Is(err, workflow.ErrMissingReason):
		Problem(w, http.StatusBadRequest, "Rejection Reason Required", err.Error())
	case errors.Is(err, workflow.ErrMissingAssignee):
		Problem(w, http.StatusBadRequest, "Assignee Required", err.Error())
	case errors.Is(err, workflow.ErrConflict):
		Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, workflow.ErrTimeout):
		Problem(w, http.StatusGatewayTimeout, "Transition Timed Out", err.Error())
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
