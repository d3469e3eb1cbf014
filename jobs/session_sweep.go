package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vitrine-commerce/vitrine/internal/jobs"
)

// Sweeper deletes expired sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SessionSweepJob runs the session sweep on schedule.
type SessionSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSessionSweepJob wires dependencies for the sweep handler.
func NewSessionSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskSessionSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Sweeper.Sweep(ctx)
	if err != nil {
		j.logger().Error("session sweep", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskSessionSweep, removed)
	j.logger().Info("session sweep complete", slog.Int("removed", removed))
	return nil
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
