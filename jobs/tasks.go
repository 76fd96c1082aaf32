package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSnapshotRebuild regenerates the permission snapshot artifact from
	// the authoritative role store.
	TaskSnapshotRebuild = "authz:snapshot:rebuild"
	// TaskSnapshotVerify compares the published snapshot against the role
	// store and fails on drift.
	TaskSnapshotVerify = "authz:snapshot:verify"
)

// SnapshotRebuildPayload carries the trigger reason for auditing job runs.
type SnapshotRebuildPayload struct {
	Reason string `json:"reason"`
}

// SnapshotVerifyPayload configures a snapshot verification run.
type SnapshotVerifyPayload struct {
	// RebuildOnDrift regenerates the artifact instead of only reporting.
	RebuildOnDrift bool `json:"rebuild_on_drift"`
}

// NewSnapshotRebuildTask constructs an Asynq task.
func NewSnapshotRebuildTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(SnapshotRebuildPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotRebuild, data), nil
}

// NewSnapshotVerifyTask constructs an Asynq task.
func NewSnapshotVerifyTask(rebuildOnDrift bool) (*asynq.Task, error) {
	data, err := json.Marshal(SnapshotVerifyPayload{RebuildOnDrift: rebuildOnDrift})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotVerify, data), nil
}
