package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rukundowilson/smartflow/internal/users"
	"github.com/rukundowilson/smartflow/internal/workflow"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

type staticDirectory struct {
	approvers []users.User
}

func (d *staticDirectory) ApproversFor(_ context.Context, _ workflow.Kind, _ workflow.Stage) ([]users.User, error) {
	return d.approvers, nil
}

func notifyTask(t *testing.T, payload TransitionNotifyPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskWorkflowTransitionNotify, data)
}

func TestNotifyFanOutDedupes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mailer := &recordingMailer{}
	worker := NewNotifyWorker(
		slog.New(slog.DiscardHandler),
		&staticDirectory{approvers: []users.User{
			{ID: 12, Email: "hod@corp.test", Role: workflow.RoleHOD},
			{ID: 15, Email: "hod2@corp.test", Role: workflow.RoleHOD},
		}},
		rdb,
		mailer,
	)

	payload := TransitionNotifyPayload{
		Kind:      string(workflow.KindAccessRequest),
		RequestID: 7,
		Version:   2,
		ToStage:   string(workflow.StagePendingHOD),
	}
	require.NoError(t, worker.Handle(context.Background(), notifyTask(t, payload)))
	require.Len(t, mailer.sent, 2)

	// Redelivery of the same record version sends nothing.
	require.NoError(t, worker.Handle(context.Background(), notifyTask(t, payload)))
	require.Len(t, mailer.sent, 2)

	// The next version fans out again.
	payload.Version = 3
	require.NoError(t, worker.Handle(context.Background(), notifyTask(t, payload)))
	require.Len(t, mailer.sent, 4)
}

func TestNotifySkipsTerminalStageWithoutApprovers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mailer := &recordingMailer{}
	worker := NewNotifyWorker(slog.New(slog.DiscardHandler), &staticDirectory{}, rdb, mailer)

	payload := TransitionNotifyPayload{
		Kind:      string(workflow.KindAccessRequest),
		RequestID: 9,
		Version:   5,
		ToStage:   string(workflow.StageGranted),
	}
	require.NoError(t, worker.Handle(context.Background(), notifyTask(t, payload)))
	require.Empty(t, mailer.sent)
}

func TestNotifyMalformedPayloadSkipsRetry(t *testing.T) {
	mailer := &recordingMailer{}
	worker := NewNotifyWorker(slog.New(slog.DiscardHandler), &staticDirectory{}, nil, mailer)

	err := worker.Handle(context.Background(), asynq.NewTask(TaskWorkflowTransitionNotify, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
