package requisitions

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

// RepositoryPort describes the persistence operations the service needs.
type RepositoryPort interface {
	Create(ctx context.Context, q Requisition) (Requisition, error)
	Get(ctx context.Context, id int64) (Requisition, error)
	List(ctx context.Context, status workflow.Stage, requesterID int64, department string) ([]Requisition, error)
	ApplyTransition(ctx context.Context, prior Requisition, tr workflow.Transition) error
	History(ctx context.Context, id int64) ([]workflow.HistoryEntry, error)
}

// ActorDirectory resolves the acting user server-side.
type ActorDirectory interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// Notifier enqueues the transition fan-out task.
type Notifier interface {
	NotifyTransition(ctx context.Context, kind workflow.Kind, requestID, version int64, to workflow.Stage) error
}

// Service orchestrates requisition submissions and transitions.
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

// ServiceParams groups the service dependencies.
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

// SubmitInput is the requester-supplied payload.
type SubmitInput struct {
	ItemName      string
	Quantity      int32
	Justification string
}

// Submit creates a new requisition in the pending stage.
func (s *Service) Submit(ctx context.Context, requesterID int64, in SubmitInput) (Requisition, error) {
	if strings.TrimSpace(in.ItemName) == "" {
		return Requisition{}, fmt.Errorf("%w: item name required", workflow.ErrMissingReason)
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}
	requester, err := s.directory.Get(ctx, requesterID)
	if err != nil {
		return Requisition{}, workflow.ErrNotFound
	}
	rec, err := s.engine.NewRecord(workflow.KindRequisition, requesterID)
	if err != nil {
		return Requisition{}, err
	}
	created, err := s.repo.Create(ctx, Requisition{
		RequesterID:   requesterID,
		RequesterName: requester.Name,
		Department:    requester.Department,
		ItemName:      strings.TrimSpace(in.ItemName),
		Quantity:      in.Quantity,
		Justification: strings.TrimSpace(in.Justification),
		Status:        rec.Status,
		Version:       rec.Version,
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, requesterID, "requisition.submit", created.ID, map[string]any{"status": string(created.Status)})
	return created, nil
}

// Transition applies one approve/reject/assign command.
func (s *Service) Transition(ctx context.Context, id, actorID int64, cmd workflow.Command) (Requisition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return Requisition{}, err
	}
	prior, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}

	next, tr, err := s.engine.Apply(prior.Record(), cmd, actor, time.Now())
	if err != nil {
		s.observe(cmd.Action, "refused")
		return Requisition{}, err
	}

	var idemKey string
	if cmd.Action == workflow.ActionAssign && s.idem != nil {
		idemKey = shared.AssignIdempotencyKey(string(workflow.KindRequisition), prior.ID, prior.Version)
		if err := s.idem.CheckAndInsert(ctx, idemKey, "requisitions"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.observe(cmd.Action, "duplicate")
				return Requisition{}, fmt.Errorf("%w: assignment already submitted", workflow.ErrConflict)
			}
			return Requisition{}, err
		}
	}

	if err := s.repo.ApplyTransition(ctx, prior, tr); err != nil {
		if idemKey != "" {
			_ = s.idem.Delete(context.WithoutCancel(ctx), idemKey)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.observe(cmd.Action, "timeout")
			return Requisition{}, fmt.Errorf("%w: %v", workflow.ErrTimeout, err)
		}
		s.observe(cmd.Action, "conflict")
		return Requisition{}, err
	}

	s.observe(cmd.Action, "applied")
	s.recordAudit(ctx, actorID, "requisition."+strings.ToLower(string(cmd.Action)), prior.ID, map[string]any{
		"from": string(tr.From),
		"to":   string(tr.To),
	})
	if s.notifier != nil {
		if err := s.notifier.NotifyTransition(ctx, workflow.KindRequisition, next.ID, next.Version, next.Status); err != nil {
			s.logger.Warn("enqueue transition notify", slog.Any("error", err))
		}
	}

	updated := prior
	updated.merge(next)
	return updated, nil
}

// Get returns the requisition and its timeline.
func (s *Service) Get(ctx context.Context, id int64) (Requisition, []workflow.HistoryEntry, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return Requisition{}, nil, err
	}
	return q, history, nil
}

// List returns requisitions. HODs are scoped to their department's
// submissions; IT roles and admins see everything.
func (s *Service) List(ctx context.Context, actorID int64, status workflow.Stage, requesterID int64) ([]Requisition, error) {
	actor, err := s.directory.Get(ctx, actorID)
	if err != nil {
		return nil, workflow.ErrNotFound
	}
	if status != "" {
		rules, _ := workflow.Rules(workflow.KindRequisition)
		if _, ok := rules.Definition(status); !ok {
			return nil, fmt.Errorf("%w: unknown requisition status %q", workflow.ErrIllegalTransition, status)
		}
	}
	department := ""
	switch actor.Role {
	case workflow.RoleEmployee:
		requesterID = actorID
	case workflow.RoleLineManager, workflow.RoleHOD:
		department = actor.Department
	}
	return s.repo.List(ctx, status, requesterID, department)
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
		Entity:   "requisition",
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
	s.metrics.ObserveTransition(string(workflow.KindRequisition), string(action), outcome)
}
