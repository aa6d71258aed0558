// Package dispatch provides the parallel task dispatcher: a priority work
// queue feeding a pool of cooperative agents, with dependency gating and
// work stealing. The dispatcher is sequentially consistent; one mutex guards
// every dispatch decision.
package dispatch

import (
	"fmt"
	"time"

	"devloop/pkg/proto"
)

// TaskStatus tracks a task through its lifecycle:
// PENDING -> QUEUED -> IN_PROGRESS -> COMPLETED|FAILED, or
// PENDING -> BLOCKED -> QUEUED.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskQueued     TaskStatus = "queued"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// ParseTaskStatus validates a task status string.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskPending, TaskQueued, TaskInProgress, TaskCompleted, TaskFailed, TaskBlocked:
		return TaskStatus(s), nil
	default:
		return "", fmt.Errorf("unknown task status: %s", s)
	}
}

// Task is a unit of dispatch. Priority reuses the message priority scale:
// lower value wins, CreatedAt breaks ties.
type Task struct {
	TaskID       string         `json:"task_id"`
	Name         string         `json:"name"`
	Priority     proto.Priority `json:"priority"`
	Status       TaskStatus     `json:"status"`
	Dependencies []string       `json:"dependencies"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    float64        `json:"created_at"`
}

// NewTask creates a pending task stamped with the current time.
func NewTask(taskID, name string, priority proto.Priority) *Task {
	return &Task{
		TaskID:    taskID,
		Name:      name,
		Priority:  priority,
		Status:    TaskPending,
		CreatedAt: float64(time.Now().UnixNano()) / 1e9,
	}
}

// IsReady reports whether every dependency is in the completed set.
func (t *Task) IsReady(completed map[string]struct{}) bool {
	for _, dep := range t.Dependencies {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// Less orders tasks by (priority ascending, created_at ascending).
func (t *Task) Less(other *Task) bool {
	if t.Priority != other.Priority {
		return t.Priority < other.Priority
	}
	return t.CreatedAt < other.CreatedAt
}

// WorkResult is the outcome of one task execution.
type WorkResult struct {
	TaskID     string  `json:"task_id"`
	Success    bool    `json:"success"`
	Output     string  `json:"output,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
	Timestamp  float64 `json:"timestamp"`
}
