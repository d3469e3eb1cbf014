package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes expired sessions from the session store.
	TaskSessionSweep = "session:sweep"
	// TaskPresetSync registers preset roles missing from the registry.
	TaskPresetSync = "rbac:preset-sync"
)

// SweepPayload carries scheduling metadata for a sweep run.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionSweepTask constructs an Asynq task for the session sweep.
func NewSessionSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, body, asynq.Queue(QueueDefault)), nil
}

// PresetSyncPayload names the catalogue to apply. An empty path selects the
// embedded catalogue.
type PresetSyncPayload struct {
	Path string `json:"path,omitempty"`
}

// NewPresetSyncTask constructs an Asynq task for the preset sync.
func NewPresetSyncTask(path string) (*asynq.Task, error) {
	body, err := json.Marshal(PresetSyncPayload{Path: path})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPresetSync, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
