package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vitrine-commerce/vitrine/internal/jobs"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
)

// PresetLoader registers the roles of a catalogue that are not registered yet.
type PresetLoader interface {
	LoadPresets(ctx context.Context, cat rbac.Catalogue) (int, error)
}

// PresetSyncJob applies a preset catalogue so roles added to it reach a
// running deployment without a restart.
type PresetSyncJob struct {
	Loader  PresetLoader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPresetSyncJob wires dependencies for the preset sync handler.
func NewPresetSyncJob(loader PresetLoader, logger *slog.Logger, metrics *jobmetrics.Metrics) *PresetSyncJob {
	return &PresetSyncJob{Loader: loader, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPresetSync tasks.
func (j *PresetSyncJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Loader == nil {
		return errors.New("preset sync: handler not configured")
	}
	var payload PresetSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskPresetSync)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("path", payload.Path))
	cat, err := rbac.LoadCatalogue(payload.Path)
	if err != nil {
		logger.Error("load preset catalogue", slog.Any("error", err))
		return errors.Join(err, asynq.SkipRetry)
	}
	added, err := j.Loader.LoadPresets(ctx, cat)
	if err != nil {
		logger.Error("apply preset catalogue", slog.Int("added", added), slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskPresetSync, added)
	logger.Info("preset sync complete", slog.Int("added", added))
	return nil
}

func (j *PresetSyncJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
