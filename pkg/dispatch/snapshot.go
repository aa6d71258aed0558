package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"devloop/pkg/proto"
)

type agentSnapshot struct {
	AgentID        string      `json:"agent_id"`
	Status         AgentStatus `json:"status"`
	CompletedCount int         `json:"completed_count"`
}

type snapshot struct {
	NumAgents    int             `json:"num_agents"`
	Agents       []agentSnapshot `json:"agents"`
	Queue        []*Task         `json:"queue"`
	Blocked      []*Task         `json:"blocked"`
	CompletedIDs []string        `json:"completed_ids"`
}

// Save writes the dispatcher state to a JSON file: agents, queued tasks,
// blocked tasks, and the completed id set.
func (d *Dispatcher) Save(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := snapshot{
		NumAgents: len(d.agents),
		Queue:     d.queue.Tasks(),
		Blocked:   append([]*Task(nil), d.blocked...),
	}

	for _, agent := range d.agents {
		snap.Agents = append(snap.Agents, agentSnapshot{
			AgentID:        agent.AgentID,
			Status:         agent.Status,
			CompletedCount: agent.CompletedCount(),
		})
	}

	for id := range d.completedIDs {
		snap.CompletedIDs = append(snap.CompletedIDs, id)
	}
	sort.Strings(snap.CompletedIDs)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dispatcher snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dispatcher snapshot: %w", err)
	}

	return nil
}

// Load restores a dispatcher from a snapshot file. The completed id set is
// restored first so re-enqueued tasks gate correctly.
func Load(path string) (*Dispatcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatcher snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatcher snapshot: %w", err)
	}

	d := NewDispatcher(snap.NumAgents)

	for _, id := range snap.CompletedIDs {
		d.completedIDs[id] = struct{}{}
	}

	for _, task := range snap.Queue {
		if err := validateTask(task); err != nil {
			return nil, err
		}
		d.queue.Enqueue(task)
	}

	for _, task := range snap.Blocked {
		if err := validateTask(task); err != nil {
			return nil, err
		}
		task.Status = TaskBlocked
		d.blocked = append(d.blocked, task)
	}

	return d, nil
}

func validateTask(task *Task) error {
	if task.TaskID == "" {
		return fmt.Errorf("snapshot task with empty task_id")
	}
	if _, ok := proto.ValidatePriority(int(task.Priority)); !ok {
		return fmt.Errorf("snapshot task %s has invalid priority %d", task.TaskID, task.Priority)
	}
	if _, err := ParseTaskStatus(string(task.Status)); err != nil {
		return fmt.Errorf("snapshot task %s: %w", task.TaskID, err)
	}
	return nil
}
