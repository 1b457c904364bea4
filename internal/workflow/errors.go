package workflow

import "errors"

// Error taxonomy for transition handling. Engine errors are returned by
// Apply; ErrConflict, ErrTimeout and ErrNotFound are surfaced by the
// storage layer of the owning module.
var (
	// ErrUnauthorized occurs when the actor's role does not match the
	// authorized role of the record's current stage.
	ErrUnauthorized = errors.New("workflow: actor not authorized for stage")
	// ErrAlreadyFinalized occurs when a transition targets a terminal record.
	ErrAlreadyFinalized = errors.New("workflow: record already finalized")
	// ErrIllegalTransition occurs when the action is not defined for the
	// record's current stage.
	ErrIllegalTransition = errors.New("workflow: illegal transition")
	// ErrMissingReason occurs when reject is attempted without a rejection reason.
	ErrMissingReason = errors.New("workflow: rejection reason required")
	// ErrMissingAssignee occurs when assign is attempted without a target user.
	ErrMissingAssignee = errors.New("workflow: assignee required")
	// ErrConflict occurs when a concurrent transition won the version check.
	ErrConflict = errors.New("workflow: record modified concurrently")
	// ErrTimeout occurs when transaction acquisition exceeded its bound.
	ErrTimeout = errors.New("workflow: transition timed out")
	// ErrNotFound indicates the record id is unknown.
	ErrNotFound = errors.New("workflow: record not found")
)
