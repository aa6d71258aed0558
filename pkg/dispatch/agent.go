package dispatch

import "time"

// AgentStatus tracks an agent's lifecycle. BUSY iff a current task is
// assigned.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentBusy     AgentStatus = "busy"
	AgentStealing AgentStatus = "stealing"
	AgentStopped  AgentStatus = "stopped"
)

// Agent executes tasks handed to it by the dispatcher.
type Agent struct {
	AgentID     string
	Status      AgentStatus
	CurrentTask *Task

	completedCount int
	taskStartTime  time.Time
}

// NewAgent creates an idle agent.
func NewAgent(agentID string) *Agent {
	return &Agent{
		AgentID: agentID,
		Status:  AgentIdle,
	}
}

// CompletedCount returns the number of tasks this agent has finished.
func (a *Agent) CompletedCount() int {
	return a.completedCount
}

// AssignTask hands a task to the agent: task goes IN_PROGRESS, agent goes
// BUSY, the duration clock starts.
func (a *Agent) AssignTask(task *Task) {
	a.CurrentTask = task
	a.CurrentTask.Status = TaskInProgress
	a.Status = AgentBusy
	a.taskStartTime = time.Now()
}

// CompleteTask finishes the current task and returns the work result. The
// agent returns to IDLE regardless of success.
func (a *Agent) CompleteTask(success bool, output, errMsg string) WorkResult {
	taskID := "unknown"
	if a.CurrentTask != nil {
		taskID = a.CurrentTask.TaskID
		if success {
			a.CurrentTask.Status = TaskCompleted
		} else {
			a.CurrentTask.Status = TaskFailed
		}
	}

	var durationMS float64
	if !a.taskStartTime.IsZero() {
		durationMS = float64(time.Since(a.taskStartTime)) / float64(time.Millisecond)
	}

	result := WorkResult{
		TaskID:     taskID,
		Success:    success,
		Output:     output,
		Error:      errMsg,
		DurationMS: durationMS,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	}

	a.completedCount++
	a.CurrentTask = nil
	a.Status = AgentIdle
	a.taskStartTime = time.Time{}

	return result
}

// StartStealing marks the agent as stealing work.
func (a *Agent) StartStealing() {
	a.Status = AgentStealing
}

// StopStealing returns a stealing agent to IDLE.
func (a *Agent) StopStealing() {
	if a.Status == AgentStealing {
		a.Status = AgentIdle
	}
}

// Stop marks the agent STOPPED.
func (a *Agent) Stop() {
	a.Status = AgentStopped
}
