package workflow

import (
	"fmt"
	"strings"
	"time"
)

// StageStamp records who acted at a stage and when.
type StageStamp struct {
	ActorID int64
	At      time.Time
}

// Record is the state-machine view of a request. Modules map their
// database rows into it before calling Apply and back out afterwards.
type Record struct {
	ID              int64
	Kind            Kind
	RequesterID     int64
	Status          Stage
	Version         int64
	AssigneeID      int64
	RejectionReason string
	StageActors     map[Stage]StageStamp
}

// Actor is the authenticated user performing a transition. Identity
// and role are resolved server-side from the session, never taken from
// the request body.
type Actor struct {
	ID    int64
	Name  string
	Email string
	Role  Role
}

// Command describes the requested transition.
type Command struct {
	Action          Action
	Comment         string
	RejectionReason string
	AssigneeID      int64
}

// Transition is the computed effect of a successful Apply. The owning
// module persists status, stamp and ledger entry in one transaction.
type Transition struct {
	From            Stage
	To              Stage
	Action          Action
	StampedStage    Stage
	Stamp           StageStamp
	AssigneeID      int64
	RejectionReason string
	Entry           HistoryEntry
}

// Engine validates and computes transitions. It holds the static stage
// tables and has no storage of its own.
type Engine struct {
	rules map[Kind]*RuleSet
}

// NewEngine returns an engine over the built-in stage tables.
func NewEngine() *Engine {
	return &Engine{rules: ruleSets}
}

// NewRecord returns a fresh record in the initial stage for the kind.
func (e *Engine) NewRecord(kind Kind, requesterID int64) (Record, error) {
	rs, ok := e.rules[kind]
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown kind %q", ErrIllegalTransition, kind)
	}
	return Record{
		Kind:        kind,
		RequesterID: requesterID,
		Status:      rs.Initial(),
		Version:     1,
		StageActors: map[Stage]StageStamp{},
	}, nil
}

// Apply validates authorization and stage legality for the command and
// returns the mutated copy of the record together with the transition
// effect. The input record is never modified: on any error the caller
// still holds the exact pre-call state.
func (e *Engine) Apply(rec Record, cmd Command, actor Actor, now time.Time) (Record, Transition, error) {
	rs, ok := e.rules[rec.Kind]
	if !ok {
		return rec, Transition{}, fmt.Errorf("%w: unknown kind %q", ErrIllegalTransition, rec.Kind)
	}
	def, ok := rs.Definition(rec.Status)
	if !ok {
		return rec, Transition{}, fmt.Errorf("%w: unknown stage %q", ErrIllegalTransition, rec.Status)
	}
	if def.Terminal {
		return rec, Transition{}, fmt.Errorf("%w: %s", ErrAlreadyFinalized, rec.Status)
	}
	if !def.AllowsRole(actor.Role) {
		return rec, Transition{}, fmt.Errorf("%w: %s cannot act at %s", ErrUnauthorized, actor.Role, rec.Status)
	}
	next, err := rs.Next(rec.Status, cmd.Action)
	if err != nil {
		return rec, Transition{}, err
	}
	switch cmd.Action {
	case ActionReject:
		if strings.TrimSpace(cmd.RejectionReason) == "" {
			return rec, Transition{}, ErrMissingReason
		}
	case ActionAssign:
		if cmd.AssigneeID <= 0 {
			return rec, Transition{}, ErrMissingAssignee
		}
	}
	if err := e.checkStampOrder(rs, rec); err != nil {
		return rec, Transition{}, err
	}

	stamp := StageStamp{ActorID: actor.ID, At: now}
	out := rec
	out.Status = next
	out.Version = rec.Version + 1
	out.StageActors = make(map[Stage]StageStamp, len(rec.StageActors)+1)
	for stage, s := range rec.StageActors {
		out.StageActors[stage] = s
	}
	out.StageActors[rec.Status] = stamp

	tr := Transition{
		From:         rec.Status,
		To:           next,
		Action:       cmd.Action,
		StampedStage: rec.Status,
		Stamp:        stamp,
	}
	if cmd.Action == ActionReject {
		reason := strings.TrimSpace(cmd.RejectionReason)
		out.RejectionReason = reason
		tr.RejectionReason = reason
	}
	if cmd.Action == ActionAssign {
		out.AssigneeID = cmd.AssigneeID
		tr.AssigneeID = cmd.AssigneeID
	}
	tr.Entry = HistoryEntry{
		Kind:       rec.Kind,
		RequestID:  rec.ID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorEmail: actor.Email,
		Action:     cmd.Action,
		Comment:    cmd.Comment,
		At:         now,
	}
	return out, tr, nil
}

// checkStampOrder enforces the forward-order invariant: every stage on
// the happy path before the current one must already carry a stamp. A
// violation means the stored record is corrupt, reported as an illegal
// transition rather than silently repaired.
func (e *Engine) checkStampOrder(rs *RuleSet, rec Record) error {
	for _, stage := range rs.ForwardStages() {
		if stage == rec.Status {
			return nil
		}
		if _, ok := rec.StageActors[stage]; !ok {
			return fmt.Errorf("%w: stage %s reached without %s stamp", ErrIllegalTransition, rec.Status, stage)
		}
	}
	// Current status is terminal or off the happy path (rejected);
	// terminal records were refused earlier.
	return nil
}
