package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mealdesk/mealdesk/internal/authz"
	jobmetrics "github.com/mealdesk/mealdesk/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotRefreshJob regenerates and verifies the role→permission snapshot
// artifact. The artifact is never edited by hand: this job is the only
// writer, so the sync evaluation path can only be stale, never wrong.
type SnapshotRefreshJob struct {
	Source  authz.RoleSource
	Store   *authz.SnapshotStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSnapshotRefreshJob wires dependencies for the snapshot handlers. A nil
// metrics instance falls back to the default registerer.
func NewSnapshotRefreshJob(source authz.RoleSource, store *authz.SnapshotStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{
		Source:  source,
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleRebuild processes snapshot rebuild tasks.
func (j *SnapshotRefreshJob) HandleRebuild(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Store == nil {
		return errors.New("snapshot rebuild: handler not configured")
	}
	var payload SnapshotRebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Reason == "" {
		payload.Reason = "scheduled"
	}

	tracker := j.metrics().Track(TaskSnapshotRebuild)
	started := j.now()
	logger := j.logger().With(slog.String("reason", payload.Reason))
	logger.Info("rebuilding permission snapshot")

	snap, err := authz.BuildSnapshot(ctx, j.Source)
	if err != nil {
		logger.Error("build snapshot", slog.Any("error", err))
		return tracker.End(err)
	}
	if err := j.Store.Save(ctx, snap); err != nil {
		logger.Error("save snapshot", slog.Any("error", err))
		return tracker.End(err)
	}

	logger.Info("published permission snapshot",
		slog.Int("roles", len(snap.Roles())),
		slog.Duration("duration", time.Since(started)))
	return tracker.End(nil)
}

// HandleVerify processes snapshot verification tasks. Drift is a
// configuration defect, so the task fails loudly rather than papering over
// it; with RebuildOnDrift set it republishes a fresh artifact first.
func (j *SnapshotRefreshJob) HandleVerify(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Store == nil {
		return errors.New("snapshot verify: handler not configured")
	}
	var payload SnapshotVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSnapshotVerify)
	logger := j.logger()
	snap, err := j.Store.Load(ctx)
	if err != nil {
		logger.Error("load snapshot", slog.Any("error", err))
		return tracker.End(err)
	}
	if snap == nil {
		logger.Warn("no snapshot published yet, rebuilding")
		return tracker.End(j.rebuild(ctx, logger))
	}

	report, err := snap.Verify(ctx, j.Source)
	if err != nil {
		logger.Error("verify snapshot", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetDrift(len(report.Missing) + len(report.Orphans) + len(report.Changed))
	if report.Clean() {
		logger.Info("snapshot verified", slog.Time("generated_at", snap.GeneratedAt))
		return tracker.End(nil)
	}

	logger.Error("snapshot drift detected", slog.String("report", report.String()))
	if payload.RebuildOnDrift {
		if err := j.rebuild(ctx, logger); err != nil {
			return tracker.End(err)
		}
	}
	return tracker.End(fmt.Errorf("snapshot verify: %s", report.String()))
}

func (j *SnapshotRefreshJob) rebuild(ctx context.Context, logger *slog.Logger) error {
	snap, err := authz.BuildSnapshot(ctx, j.Source)
	if err != nil {
		logger.Error("build snapshot", slog.Any("error", err))
		return err
	}
	if err := j.Store.Save(ctx, snap); err != nil {
		logger.Error("save snapshot", slog.Any("error", err))
		return err
	}
	logger.Info("republished permission snapshot", slog.Int("roles", len(snap.Roles())))
	return nil
}

func (j *SnapshotRefreshJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SnapshotRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SnapshotRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
