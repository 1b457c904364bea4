package accessrequests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rukundowilson/smartflow/internal/observability"
	"github.com/rukundowilson/smartflow/internal/shared"
	"github.com/rukundowilson/smartflow/internal/users"
	"github.com/rukundowilson/smartflow/internal/workflow"
)

// RepositoryPort describes the persistence operations the service
// needs. The in-memory fake in the tests implements it too.
type RepositoryPort interface {
	Create(ctx context.Context, a AccessRequest) (AccessRequest, error)
	Get(ctx context.Context, id int64) (AccessRequest, error)
	ApplyTransition(ctx context.Context, prior AccessRequest, tr workflow.Transition) error
	PendingFor(ctx context.Context, role workflow.Role, department string) ([]AccessRequest, error)
	ApprovedBy(ctx context.Context, approverID int64, role workflow.Role) ([]AccessRequest, error)
	DepartmentHistory(ctx context.Context, department string) ([]AccessRequest, error)
	History(ctx context.Context, id int64) ([]workflow.HistoryEntry, error)
}

// ActorDirectory resolves the acting user server-side. Role and
// department always come from here, never from the request body.
type ActorDirectory interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// Notifier enqueues the transition fan-out task. Nil disables
// notifications, which the tests rely on.
type Notifier interface {
	NotifyTransition(ctx context.Context, kind workflow.Kind, requestID, version int64, to workflow.Stage) error
}

// Service orchestrates access request submissions and transitions.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	engine    *workflow.Engine
	directory ActorDirectory
	audit     *shared.AuditLogger
	idem      *shared.IdempotencyStore
	notifier  Notifier
	metrics   *observability.Metrics
	timeout   time.Duration
}

// ServiceParams groups the service dependencies. Audit, idem, notifier
// and metrics are optional.
type ServiceParams struct {
	Logger    *slog.Logger
	Repo      RepositoryPort
	Directory ActorDirectory
	Audit     *shared.AuditLogger
	Idem      *shared.IdempotencyStore
	Notifier  Notifier
	Metrics   *observability.Metrics
	Timeout   time.Duration
}

// NewService constructs the service.
func NewService(p ServiceParams) *Service {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		logger:    p.Logger,
		repo:      p.Repo,
		engine:    workflow.NewEngine(),
		directory: p.Directory,
		audit:     p.Audit,
		idem:      p.Idem,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
		timeout:   timeout,
	}
}

// SubmitInput is the requester-supplied payload, opaque to the state
// machine.
type SubmitInput struct {
	Justification string
	StartDate     *time.Time
	EndDate       *time.Time
	IsPermanent   bool
}

// Submit creates a new request in the initial pending stage.
func (s *Service) Submit(ctx context.Context, requesterID int64, in SubmitInput) (AccessRequest, error) {
	if strings.TrimSpace(in.Justification) == "" {
		return AccessRequest{}, fmt.Errorf("%w: justification required", workflow.ErrMissingReason)
	}
	requester, err := s.directory.Get(ctx, requesterID)
	if err != nil {
		return AccessRequest{}, workflow.ErrNotFound
	}
	rec, err := s.engine.NewRecord(workflow.KindAccessRequest, requesterID)
	if err != nil {
		return AccessRequest{}, err
	}
	created, err := s.repo.Create(ctx, AccessRequest{
		RequesterID:   requesterID,
		RequesterName: requester.Name,
		Department:    requester.Department,
		Justification: strings.TrimSpace(in.Justification),
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		IsPermanent:   in.IsPermanent,
		Status:        rec.Status,
		Version:       rec.Version,
	})
	if err != nil {
		return AccessRequest{}, err
	}
	s.recordAudit(ctx, requesterID, "access_request.submit", created.ID, map[string]any{"status": string(created.Status)})
	return created, nil
}

// Transition applies one approve/reject/assign command against the
// authoritative record. Concurrency losers get workflow.ErrConflict;
// a blown deadline surfaces as workflow.ErrTimeout.
func (s *Service) Transition(ctx context.Context, id, actorID int64, cmd workflow.Command) (AccessRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return AccessRequest{}, err
	}
	prior, err := s.repo.Get(ctx, id)
	if err != nil {
		return AccessRequest{}, err
	}

	next, tr, err := s.engine.Apply(prior.Record(), cmd, actor, time.Now())
	if err != nil {
		s.observe(cmd.Action, "refused")
		return AccessRequest{}, err
	}

	var idemKey string
	if cmd.Action == workflow.ActionAssign && s.idem != nil {
		idemKey = shared.AssignIdempotencyKey(string(workflow.KindAccessRequest), prior.ID, prior.Version)
		if err := s.idem.CheckAndInsert(ctx, idemKey, "access_requests"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.observe(cmd.Action, "duplicate")
				return AccessRequest{}, fmt.Errorf("%w: assignment already submitted", workflow.ErrConflict)
			}
			return AccessRequest{}, err
		}
	}

	if err := s.repo.ApplyTransition(ctx, prior, tr); err != nil {
		if idemKey != "" {
			_ = s.idem.Delete(context.WithoutCancel(ctx), idemKey)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.observe(cmd.Action, "timeout")
			return AccessRequest{}, fmt.Errorf("%w: %v", workflow.ErrTimeout, err)
		}
		s.observe(cmd.Action, "conflict")
		return AccessRequest{}, err
	}

	s.observe(cmd.Action, "applied")
	s.recordAudit(ctx, actorID, "access_request."+strings.ToLower(string(cmd.Action)), prior.ID, map[string]any{
		"from": string(tr.From),
		"to":   string(tr.To),
	})
	if s.notifier != nil {
		if err := s.notifier.NotifyTransition(ctx, workflow.KindAccessRequest, next.ID, next.Version, next.Status); err != nil {
			s.logger.Warn("enqueue transition notify", slog.Any("error", err))
		}
	}

	updated := prior
	updated.merge(next)
	return updated, nil
}

// Get returns the record and its full approval timeline.
func (s *Service) Get(ctx context.Context, id int64) (AccessRequest, []workflow.HistoryEntry, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return AccessRequest{}, nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return AccessRequest{}, nil, err
	}
	return a, history, nil
}

// Pending lists the requests waiting on the actor's role. Department
// roles only see their own department's queue.
func (s *Service) Pending(ctx context.Context, actorID int64) ([]AccessRequest, error) {
	actor, err := s.directory.Get(ctx, actorID)
	if err != nil {
		return nil, workflow.ErrNotFound
	}
	department := ""
	switch actor.Role {
	case workflow.RoleLineManager, workflow.RoleHOD:
		department = actor.Department
	}
	return s.repo.PendingFor(ctx, actor.Role, department)
}

// History lists decisions. scope=department widens from "decisions I
// made" to everything raised by the actor's department.
func (s *Service) History(ctx context.Context, actorID int64, scope string) ([]AccessRequest, error) {
	actor, err := s.directory.Get(ctx, actorID)
	if err != nil {
		return nil, workflow.ErrNotFound
	}
	if scope == "department" {
		return s.repo.DepartmentHistory(ctx, actor.Department)
	}
	return s.repo.ApprovedBy(ctx, actorID, actor.Role)
}

func (s *Service) resolveActor(ctx context.Context, id int64) (workflow.Actor, error) {
	u, err := s.directory.Get(ctx, id)
	if err != nil {
		return workflow.Actor{}, fmt.Errorf("%w: unknown actor %d", workflow.ErrUnauthorized, id)
	}
	if !u.IsActive {
		return workflow.Actor{}, fmt.Errorf("%w: actor %d deactivated", workflow.ErrUnauthorized, id)
	}
	return workflow.Actor{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "access_request",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

func (s *Service) observe(action workflow.Action, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveTransition(string(workflow.KindAccessRequest), string(action), outcome)
}
