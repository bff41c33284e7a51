package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRBACWarmup reloads every role's permission set into the cache.
	TaskRBACWarmup = "rbac:warmup"
	// TaskPasswordResetMail delivers a password recovery link.
	TaskPasswordResetMail = "mail:password_reset"
)

// RBACWarmupPayload describes a warmup run. Invalidate drops cached sets on
// every instance before loading.
type RBACWarmupPayload struct {
	Reason     string `json:"reason"`
	Invalidate bool   `json:"invalidate"`
}

// NewRBACWarmupTask constructs an Asynq task.
func NewRBACWarmupTask(payload RBACWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACWarmup, data), nil
}

// PasswordResetMailPayload carries a freshly issued recovery token.
type PasswordResetMailPayload struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewPasswordResetMailTask constructs an Asynq task.
func NewPasswordResetMailTask(payload PasswordResetMailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPasswordResetMail, data), nil
}
