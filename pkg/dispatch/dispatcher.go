package dispatch

import (
	"fmt"
	"sync"

	"devloop/pkg/logx"
)

// Dispatcher owns the work queue and the agent pool. All dispatch decisions
// run under a single mutex so that dequeue+assign and complete+unblock each
// appear as one step.
type Dispatcher struct {
	mu sync.Mutex

	agents       []*Agent
	queue        *WorkQueue
	completed    []*Task
	completedIDs map[string]struct{}
	blocked      []*Task
	logger       *logx.Logger
}

// NewDispatcher creates a dispatcher with numAgents idle agents named
// agent-0..agent-(numAgents-1).
func NewDispatcher(numAgents int) *Dispatcher {
	agents := make([]*Agent, numAgents)
	for i := range agents {
		agents[i] = NewAgent(fmt.Sprintf("agent-%d", i))
	}

	return &Dispatcher{
		agents:       agents,
		queue:        NewWorkQueue(),
		completedIDs: make(map[string]struct{}),
		logger:       logx.NewLogger("dispatch"),
	}
}

// Agents returns the agent pool.
func (d *Dispatcher) Agents() []*Agent {
	return d.agents
}

// Submit enqueues a task when its dependencies are all completed; otherwise
// the task is marked BLOCKED and parked until a completion unblocks it.
func (d *Dispatcher) Submit(task *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if task.IsReady(d.completedIDs) {
		d.queue.Enqueue(task)
	} else {
		task.Status = TaskBlocked
		d.blocked = append(d.blocked, task)
		d.logger.Debug("Task %s blocked on %v", task.TaskID, task.Dependencies)
	}
}

// PendingCount returns queued plus blocked tasks.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Size() + len(d.blocked)
}

// CompletedCount returns the number of successfully completed tasks.
func (d *Dispatcher) CompletedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.completed)
}

// AssignTasks pairs idle agents with queued tasks until one side runs out.
// Returns the number of assignments made.
func (d *Dispatcher) AssignTasks() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	assigned := 0
	for _, agent := range d.agents {
		if agent.Status != AgentIdle || d.queue.IsEmpty() {
			continue
		}
		if task := d.queue.Dequeue(); task != nil {
			agent.AssignTask(task)
			assigned++
		}
	}

	return assigned
}

// CompleteTask finishes the named agent's current task. On success the task
// id joins the completed set and blocked tasks are re-scanned; a FAILED task
// unblocks nothing. Returns nil when the agent is unknown or has no task.
func (d *Dispatcher) CompleteTask(agentID string, success bool, output, errMsg string) *WorkResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	agent := d.findAgent(agentID)
	if agent == nil || agent.CurrentTask == nil {
		return nil
	}

	task := agent.CurrentTask
	result := agent.CompleteTask(success, output, errMsg)

	if success {
		d.completed = append(d.completed, task)
		d.completedIDs[task.TaskID] = struct{}{}
		d.unblockTasks()
	}

	return &result
}

// unblockTasks promotes blocked tasks whose dependencies are now satisfied.
// Caller holds the mutex.
func (d *Dispatcher) unblockTasks() {
	var stillBlocked []*Task
	for _, task := range d.blocked {
		if task.IsReady(d.completedIDs) {
			task.Status = TaskPending
			d.queue.Enqueue(task)
		} else {
			stillBlocked = append(stillBlocked, task)
		}
	}
	d.blocked = stillBlocked
}

func (d *Dispatcher) findAgent(agentID string) *Agent {
	for _, agent := range d.agents {
		if agent.AgentID == agentID {
			return agent
		}
	}
	return nil
}

// StealWorkFor lets an idle agent steal the cheapest queued task. The agent
// passes through STEALING and is assigned directly from that state; the
// dispatcher is single-threaded so no one can observe the intermediate
// status, but this is the spot to revisit if real threading is introduced.
// Returns the number of tasks stolen (0 or 1).
func (d *Dispatcher) StealWorkFor(agentID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	agent := d.findAgent(agentID)
	if agent == nil || agent.Status != AgentIdle {
		return 0
	}

	agent.StartStealing()

	stolen := d.queue.Steal(1)
	if len(stolen) > 0 && agent.Status == AgentStealing {
		agent.StopStealing()
		agent.AssignTask(stolen[0])
		return 1
	}

	agent.StopStealing()
	return 0
}

// AgentState is one agent's slice of the dispatcher status.
type AgentState struct {
	Status         AgentStatus `json:"status"`
	CurrentTask    string      `json:"current_task,omitempty"`
	CompletedCount int         `json:"completed_count"`
}

// Status is the dispatcher's observable state.
type Status struct {
	TotalAgents    int                   `json:"total_agents"`
	Agents         map[string]AgentState `json:"agents"`
	PendingTasks   int                   `json:"pending_tasks"`
	CompletedTasks int                   `json:"completed_tasks"`
	BlockedTasks   int                   `json:"blocked_tasks"`
}

// GetStatus returns a snapshot of agents and queue counts.
func (d *Dispatcher) GetStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	agents := make(map[string]AgentState, len(d.agents))
	for _, agent := range d.agents {
		state := AgentState{
			Status:         agent.Status,
			CompletedCount: agent.CompletedCount(),
		}
		if agent.CurrentTask != nil {
			state.CurrentTask = agent.CurrentTask.TaskID
		}
		agents[agent.AgentID] = state
	}

	return Status{
		TotalAgents:    len(d.agents),
		Agents:         agents,
		PendingTasks:   d.queue.Size() + len(d.blocked),
		CompletedTasks: len(d.completed),
		BlockedTasks:   len(d.blocked),
	}
}

// Shutdown stops every agent. Outstanding queue entries remain for snapshot;
// subsequent AssignTasks calls are no-ops.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, agent := range d.agents {
		agent.Stop()
	}
	d.logger.Info("Dispatcher shut down, %d tasks left queued", d.queue.Size())
}
