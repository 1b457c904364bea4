package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/rukundowilson/smartflow/internal/jobs"
	"github.com/rukundowilson/smartflow/internal/shared"
	"github.com/rukundowilson/smartflow/internal/users"
	"github.com/rukundowilson/smartflow/internal/workflow"
)

// dedupeTTL keeps fan-out keys long enough to absorb asynq retries of
// an already-delivered task.
const dedupeTTL = 24 * time.Hour

// ApproverDirectory resolves the users to notify for a stage.
type ApproverDirectory interface {
	ApproversFor(ctx context.Context, kind workflow.Kind, stage workflow.Stage) ([]users.User, error)
}

// NotifyWorker handles workflow:transition_notify tasks.
type NotifyWorker struct {
	logger    *slog.Logger
	directory ApproverDirectory
	redis     *redis.Client
	mailer    Mailer
	metrics   *jobmetrics.Metrics
}

// NewNotifyWorker constructs the worker.
func NewNotifyWorker(logger *slog.Logger, directory ApproverDirectory, rdb *redis.Client, mailer Mailer) *NotifyWorker {
	return &NotifyWorker{logger: logger, directory: directory, redis: rdb, mailer: mailer}
}

// WithMetrics attaches job run instrumentation.
func (w *NotifyWorker) WithMetrics(m *jobmetrics.Metrics) *NotifyWorker {
	w.metrics = m
	return w
}

// Handle resolves the stage's approvers and emails them, deduplicated
// per record version so retries and double-enqueues send once.
func (w *NotifyWorker) Handle(ctx context.Context, t *asynq.Task) error {
	var payload TransitionNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := w.metrics.Track(TaskWorkflowTransitionNotify)
	return tracker.End(w.handle(ctx, payload))
}

func (w *NotifyWorker) handle(ctx context.Context, payload TransitionNotifyPayload) error {
	kind := workflow.Kind(payload.Kind)
	stage := workflow.Stage(payload.ToStage)

	if w.redis != nil {
		key := shared.NotifyDedupeKey(payload.Kind, payload.RequestID, payload.Version)
		ok, err := w.redis.SetNX(ctx, key, "1", dedupeTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			w.logger.Debug("transition notify deduped",
				slog.String("kind", payload.Kind),
				slog.Int64("request_id", payload.RequestID))
			return nil
		}
	}

	approvers, err := w.directory.ApproversFor(ctx, kind, stage)
	if err != nil {
		return err
	}
	if len(approvers) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[smartflow] %s #%d awaits your action", payload.Kind, payload.RequestID)
	body := fmt.Sprintf("Record %s #%d entered stage %q and is waiting on your role.\n", payload.Kind, payload.RequestID, payload.ToStage)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, approver := range approvers {
		g.Go(func() error {
			if err := w.mailer.Send(ctx, approver.Email, subject, body); err != nil {
				w.logger.Warn("notify approver",
					slog.String("email", approver.Email),
					slog.Any("error", err))
			}
			// Delivery failures are logged, not retried: the dedupe key
			// is already burned for this version.
			return nil
		})
	}
	return g.Wait()
}
