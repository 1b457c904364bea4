package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rukundowilson/smartflow/internal/accessrequests"
	jobmetrics "github.com/rukundowilson/smartflow/internal/jobs"
	"github.com/rukundowilson/smartflow/internal/requisitions"
	"github.com/rukundowilson/smartflow/internal/tickets"
)

// StaleSources are the per-kind queries behind the nightly scan.
type StaleSources struct {
	AccessRequests interface {
		StalePending(ctx context.Context, updatedBefore time.Time) ([]accessrequests.AccessRequest, error)
	}
	Tickets interface {
		StalePending(ctx context.Context, updatedBefore time.Time) ([]tickets.Ticket, error)
	}
	Requisitions interface {
		StalePending(ctx context.Context, updatedBefore time.Time) ([]requisitions.Requisition, error)
	}
}

// StaleScanner handles workflow:stale_scan tasks. It only reports:
// nudging or escalating stuck records stays a human decision.
type StaleScanner struct {
	logger  *slog.Logger
	sources StaleSources
	metrics *jobmetrics.Metrics
}

// NewStaleScanner constructs the scanner.
func NewStaleScanner(logger *slog.Logger, sources StaleSources) *StaleScanner {
	return &StaleScanner{logger: logger, sources: sources}
}

// WithMetrics attaches job run instrumentation.
func (s *StaleScanner) WithMetrics(m *jobmetrics.Metrics) *StaleScanner {
	s.metrics = m
	return s
}

// Handle logs every record stuck in a non-terminal stage beyond the
// payload's window.
func (s *StaleScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StaleScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track(TaskWorkflowStaleScan)
	return tracker.End(s.scan(ctx, payload))
}

func (s *StaleScanner) scan(ctx context.Context, payload StaleScanPayload) error {
	if payload.OlderThanHours <= 0 {
		payload.OlderThanHours = 72
	}
	cutoff := time.Now().Add(-time.Duration(payload.OlderThanHours) * time.Hour)

	if s.sources.AccessRequests != nil {
		stale, err := s.sources.AccessRequests.StalePending(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, a := range stale {
			s.logger.Warn("stale access request",
				slog.Int64("id", a.ID),
				slog.String("status", string(a.Status)),
				slog.Time("updated_at", a.UpdatedAt))
		}
	}
	if s.sources.Tickets != nil {
		stale, err := s.sources.Tickets.StalePending(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, t := range stale {
			s.logger.Warn("stale ticket",
				slog.Int64("id", t.ID),
				slog.String("status", string(t.Status)),
				slog.Time("updated_at", t.UpdatedAt))
		}
	}
	if s.sources.Requisitions != nil {
		stale, err := s.sources.Requisitions.StalePending(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, q := range stale {
			s.logger.Warn("stale requisition",
				slog.Int64("id", q.ID),
				slog.String("status", string(q.Status)),
				slog.Time("updated_at", q.UpdatedAt))
		}
	}
	return nil
}
