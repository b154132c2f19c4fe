package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsWarm reloads the cached page permission table.
	TaskPermissionsWarm = "rbac:permissions_warm"
)

// PermissionsWarmPayload records why a warm was requested.
type PermissionsWarmPayload struct {
	Reason string `json:"reason"`
}

// NewPermissionsWarmTask constructs an Asynq task.
func NewPermissionsWarmTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(PermissionsWarmPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsWarm, data), nil
}
