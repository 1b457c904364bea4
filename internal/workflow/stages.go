// Package workflow implements the multi-stage approval state machine
// shared by access requests, IT tickets and item requisitions: the
// static stage tables, the transition engine that is the sole mutator
// of a record's status, and the append-only approval history ledger.
package workflow

import "fmt"

// Kind selects which stage table applies to a record.
type Kind string

const (
	KindAccessRequest Kind = "access_request"
	KindTicket        Kind = "ticket"
	KindRequisition   Kind = "requisition"
)

// Stage is a named point in a record's lifecycle.
type Stage string

// Access request stages.
const (
	StagePendingLineManager Stage = "pending_line_manager"
	StagePendingHOD         Stage = "pending_hod"
	StagePendingITManager   Stage = "pending_it_manager"
	StageReadyForAssignment Stage = "ready_for_assignment"
	StageGranted            Stage = "granted"
	StageRejected           Stage = "rejected"
)

// Ticket stages.
const (
	StageOpen       Stage = "open"
	StageInProgress Stage = "in_progress"
	StageResolved   Stage = "resolved"
	StageClosed     Stage = "closed"
)

// Requisition stages. StageRejected is shared with access requests.
const (
	StagePending   Stage = "pending"
	StageApproved  Stage = "approved"
	StageAssigned  Stage = "assigned"
	StageDelivered Stage = "delivered"
)

// Role is the closed set of approver roles.
type Role string

const (
	RoleEmployee    Role = "EMPLOYEE"
	RoleLineManager Role = "LINE_MANAGER"
	RoleHOD         Role = "HOD"
	RoleITManager   Role = "IT_MANAGER"
	RoleITSupport   Role = "IT_SUPPORT"
	RoleAdmin       Role = "ADMIN"
)

// Action enumerates the transitions a caller may request.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionAssign  Action = "ASSIGN"
)

// StageDef is one row of the static stage table. It is never mutated
// at runtime.
type StageDef struct {
	Stage        Stage
	Roles        []Role
	Predecessors []Stage
	Terminal     bool
	OnApprove    Stage
	OnReject     Stage
	OnAssign     Stage

	// Display metadata so clients stop re-encoding the stage graph.
	Label string
	Tone  string
}

// AllowsRole reports whether the given role may act at this stage.
func (d StageDef) AllowsRole(role Role) bool {
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RuleSet is the stage table for one kind.
type RuleSet struct {
	kind    Kind
	initial Stage
	stages  map[Stage]StageDef
	// forward lists the non-terminal stages in approve/assign order,
	// starting at the initial stage.
	forward []Stage
}

// Kind returns the kind this table governs.
func (rs *RuleSet) Kind() Kind { return rs.kind }

// Initial returns the stage a freshly submitted record starts in.
func (rs *RuleSet) Initial() Stage { return rs.initial }

// Definition looks up the stage row.
func (rs *RuleSet) Definition(stage Stage) (StageDef, bool) {
	def, ok := rs.stages[stage]
	return def, ok
}

// IsTerminal reports whether the stage permits no further transitions.
func (rs *RuleSet) IsTerminal(stage Stage) bool {
	def, ok := rs.stages[stage]
	return ok && def.Terminal
}

// ForwardStages returns the happy-path stage order, initial first.
func (rs *RuleSet) ForwardStages() []Stage {
	out := make([]Stage, len(rs.forward))
	copy(out, rs.forward)
	return out
}

// Next computes the successor stage for (stage, action). Every
// undefined combination is an ErrIllegalTransition, never a no-op.
func (rs *RuleSet) Next(stage Stage, action Action) (Stage, error) {
	def, ok := rs.stages[stage]
	if !ok {
		return "", fmt.Errorf("%w: unknown stage %q for %s", ErrIllegalTransition, stage, rs.kind)
	}
	if def.Terminal {
		return "", fmt.Errorf("%w: %s is terminal", ErrAlreadyFinalized, stage)
	}
	var next Stage
	switch action {
	case ActionApprove:
		next = def.OnApprove
	case ActionReject:
		next = def.OnReject
	case ActionAssign:
		next = def.OnAssign
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrIllegalTransition, action)
	}
	if next == "" {
		return "", fmt.Errorf("%w: %s not defined at %s for %s", ErrIllegalTransition, action, stage, rs.kind)
	}
	return next, nil
}

// Rules returns the stage table for the kind, or false when the kind
// is unknown.
func Rules(kind Kind) (*RuleSet, bool) {
	rs, ok := ruleSets[kind]
	return rs, ok
}

var ruleSets = map[Kind]*RuleSet{
	KindAccessRequest: mustRules(KindAccessRequest, StagePendingLineManager, []StageDef{
		{
			Stage:     StagePendingLineManager,
			Roles:     []Role{RoleLineManager},
			OnApprove: StagePendingHOD,
			OnReject:  StageRejected,
			Label:     "Pending Line Manager",
			Tone:      "warning",
		},
		{
			Stage:        StagePendingHOD,
			Roles:        []Role{RoleHOD},
			Predecessors: []Stage{StagePendingLineManager},
			OnApprove:    StagePendingITManager,
			OnReject:     StageRejected,
			Label:        "Pending HOD",
			Tone:         "warning",
		},
		{
			Stage:        StagePendingITManager,
			Roles:        []Role{RoleITManager},
			Predecessors: []Stage{StagePendingHOD},
			OnApprove:    StageReadyForAssignment,
			OnReject:     StageRejected,
			Label:        "Pending IT Manager",
			Tone:         "warning",
		},
		{
			Stage:        StageReadyForAssignment,
			Roles:        []Role{RoleITManager, RoleAdmin},
			Predecessors: []Stage{StagePendingITManager},
			OnAssign:     StageGranted,
			Label:        "Ready for Assignment",
			Tone:         "info",
		},
		{Stage: StageGranted, Terminal: true, Predecessors: []Stage{StageReadyForAssignment}, Label: "Granted", Tone: "success"},
		{Stage: StageRejected, Terminal: true, Label: "Rejected", Tone: "danger"},
	}),
	KindTicket: mustRules(KindTicket, StageOpen, []StageDef{
		{
			Stage:    StageOpen,
			Roles:    []Role{RoleITSupport, RoleITManager, RoleAdmin},
			OnAssign: StageInProgress,
			Label:    "Open",
			Tone:     "info",
		},
		{
			Stage:        StageInProgress,
			Roles:        []Role{RoleITSupport, RoleITManager, RoleAdmin},
			Predecessors: []Stage{StageOpen},
			OnApprove:    StageResolved,
			Label:        "In Progress",
			Tone:         "warning",
		},
		{
			Stage:        StageResolved,
			Roles:        []Role{RoleITSupport, RoleITManager, RoleAdmin},
			Predecessors: []Stage{StageInProgress},
			OnApprove:    StageClosed,
			Label:        "Resolved",
			Tone:         "success",
		},
		{Stage: StageClosed, Terminal: true, Predecessors: []Stage{StageResolved}, Label: "Closed", Tone: "neutral"},
	}),
	KindRequisition: mustRules(KindRequisition, StagePending, []StageDef{
		{
			Stage:     StagePending,
			Roles:     []Role{RoleHOD},
			OnApprove: StageApproved,
			OnReject:  StageRejected,
			Label:     "Pending",
			Tone:      "warning",
		},
		{
			Stage:        StageApproved,
			Roles:        []Role{RoleITManager, RoleAdmin},
			Predecessors: []Stage{StagePending},
			OnAssign:     StageAssigned,
			Label:        "Approved",
			Tone:         "info",
		},
		{
			Stage:        StageAssigned,
			Roles:        []Role{RoleITSupport},
			Predecessors: []Stage{StageApproved},
			OnApprove:    StageDelivered,
			Label:        "Assigned",
			Tone:         "info",
		},
		{Stage: StageDelivered, Terminal: true, Predecessors: []Stage{StageAssigned}, Label: "Delivered", Tone: "success"},
		{Stage: StageRejected, Terminal: true, Label: "Rejected", Tone: "danger"},
	}),
}

// mustRules builds and checks a stage table. Tables are static
// configuration, so a malformed one is a programming error.
func mustRules(kind Kind, initial Stage, defs []StageDef) *RuleSet {
	rs := &RuleSet{kind: kind, initial: initial, stages: make(map[Stage]StageDef, len(defs))}
	for _, def := range defs {
		if _, dup := rs.stages[def.Stage]; dup {
			panic(fmt.Sprintf("workflow: duplicate stage %q in %s table", def.Stage, kind))
		}
		rs.stages[def.Stage] = def
	}
	if _, ok := rs.stages[initial]; !ok {
		panic(fmt.Sprintf("workflow: initial stage %q missing from %s table", initial, kind))
	}
	// Walk the happy path and ensure it terminates without cycles.
	seen := map[Stage]bool{}
	current := initial
	for {
		if seen[current] {
			panic(fmt.Sprintf("workflow: cycle at %q in %s table", current, kind))
		}
		seen[current] = true
		def := rs.stages[current]
		if def.Terminal {
			break
		}
		rs.forward = append(rs.forward, current)
		next := def.OnApprove
		if next == "" {
			next = def.OnAssign
		}
		if next == "" {
			panic(fmt.Sprintf("workflow: stage %q in %s table is a dead end", current, kind))
		}
		if _, ok := rs.stages[next]; !ok {
			panic(fmt.Sprintf("workflow: stage %q references unknown %q", current, next))
		}
		current = next
	}
	for _, def := range defs {
		if def.OnReject == "" {
			continue
		}
		target, ok := rs.stages[def.OnReject]
		if !ok || !target.Terminal {
			panic(fmt.Sprintf("workflow: reject from %q must reach a terminal stage", def.Stage))
		}
	}
	return rs
}
