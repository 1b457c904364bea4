package tickets

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
	Create(ctx context.Context, t Ticket) (Ticket, error)
	Get(ctx context.Context, id int64) (Ticket, error)
	List(ctx context.Context, status workflow.Stage, requesterID int64) ([]Ticket, error)
	ApplyTransition(ctx context.Context, prior Ticket, tr workflow.Transition) error
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

// Service orchestrates ticket submissions and lifecycle transitions.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	engine    *workflow.Engine
	directory ActorDirectory
	audit     *shared.AuditLogger
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
		notifier:  p.Notifier,
		metrics:   p.Metrics,
		timeout:   timeout,
	}
}

// SubmitInput is the requester-supplied payload.
type SubmitInput struct {
	Subject     string
	Description string
}

// Submit opens a new ticket.
func (s *Service) Submit(ctx context.Context, requesterID int64, in SubmitInput) (Ticket, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return Ticket{}, fmt.Errorf("%w: subject required", workflow.ErrMissingReason)
	}
	requester, err := s.directory.Get(ctx, requesterID)
	if err != nil {
		return Ticket{}, workflow.ErrNotFound
	}
	rec, err := s.engine.NewRecord(workflow.KindTicket, requesterID)
	if err != nil {
		return Ticket{}, err
	}
	created, err := s.repo.Create(ctx, Ticket{
		RequesterID:   requesterID,
		RequesterName: requester.Name,
		Department:    requester.Department,
		Subject:       strings.TrimSpace(in.Subject),
		Description:   strings.TrimSpace(in.Description),
		Status:        rec.Status,
		Version:       rec.Version,
	})
	if err != nil {
		return Ticket{}, err
	}
	s.recordAudit(ctx, requesterID, "ticket.submit", created.ID, map[string]any{"status": string(created.Status)})
	return created, nil
}

// Transition applies one lifecycle command. Only IT staff roles pass
// the engine's stage authorization.
func (s *Service) Transition(ctx context.Context, id, actorID int64, cmd workflow.Command) (Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return Ticket{}, err
	}
	prior, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}

	next, tr, err := s.engine.Apply(prior.Record(), cmd, actor, time.Now())
	if err != nil {
		s.observe(cmd.Action, "refused")
		return Ticket{}, err
	}

	if err := s.repo.ApplyTransition(ctx, prior, tr); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.observe(cmd.Action, "timeout")
			return Ticket{}, fmt.Errorf("%w: %v", workflow.ErrTimeout, err)
		}
		s.observe(cmd.Action, "conflict")
		return Ticket{}, err
	}

	s.observe(cmd.Action, "applied")
	s.recordAudit(ctx, actorID, "ticket."+strings.ToLower(string(cmd.Action)), prior.ID, map[string]any{
		"from": string(tr.From),
		"to":   string(tr.To),
	})
	if s.notifier != nil {
		if err := s.notifier.NotifyTransition(ctx, workflow.KindTicket, next.ID, next.Version, next.Status); err != nil {
			s.logger.Warn("enqueue transition notify", slog.Any("error", err))
		}
	}

	updated := prior
	updated.merge(next)
	return updated, nil
}

// Get returns the ticket and its timeline.
func (s *Service) Get(ctx context.Context, id int64) (Ticket, []workflow.HistoryEntry, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return Ticket{}, nil, err
	}
	return t, history, nil
}

// List returns tickets filtered by optional status and requester.
func (s *Service) List(ctx context.Context, status workflow.Stage, requesterID int64) ([]Ticket, error) {
	if status != "" {
		rules, _ := workflow.Rules(workflow.KindTicket)
		if _, ok := rules.Definition(status); !ok {
			return nil, fmt.Errorf("%w: unknown ticket status %q", workflow.ErrIllegalTransition, status)
		}
	}
	return s.repo.List(ctx, status, requesterID)
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
		Entity:   "ticket",
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
	s.metrics.ObserveTransition(string(workflow.KindTicket), string(action), outcome)
}
