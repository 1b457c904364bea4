// Package jobs holds the asynq task definitions and the background
// worker: transition notification fan-out and the nightly stale scan.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWorkflowTransitionNotify fans out email to the approvers of
	// the stage a record just entered.
	TaskWorkflowTransitionNotify = "workflow:transition_notify"
	// TaskWorkflowStaleScan reports records stuck in a pending stage.
	TaskWorkflowStaleScan = "workflow:stale_scan"
)

// TransitionNotifyPayload identifies one applied transition.
type TransitionNotifyPayload struct {
	Kind      string `json:"kind"`
	RequestID int64  `json:"request_id"`
	Version   int64  `json:"version"`
	ToStage   string `json:"to_stage"`
}

// NewTransitionNotifyTask constructs the notify task.
func NewTransitionNotifyTask(payload TransitionNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowTransitionNotify, data), nil
}

// StaleScanPayload bounds the scan window.
type StaleScanPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewStaleScanTask constructs the stale-scan task.
func NewStaleScanTask(payload StaleScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowStaleScan, data), nil
}
