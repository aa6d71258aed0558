package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type progressDoc struct {
	Tasks    map[string]*TaskProgress `json:"tasks"`
	Velocity struct {
		Records []VelocityRecord `json:"records"`
	} `json:"velocity"`
}

// Save writes the progress tracker state to a JSON file.
func (t *ProgressTracker) Save(path string) error {
	var doc progressDoc
	doc.Tasks = t.tasks
	doc.Velocity.Records = t.Velocity.records

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress state: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write progress state: %w", err)
	}

	return nil
}

// LoadProgress restores a tracker from a file written by Save. Phase and
// unit strings are validated; an invalid document aborts the restore.
func LoadProgress(path string) (*ProgressTracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress state: %w", err)
	}

	var doc progressDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress state: %w", err)
	}

	tracker := NewProgressTracker()
	for taskID, progress := range doc.Tasks {
		if progress == nil || progress.TaskID == "" {
			return nil, fmt.Errorf("progress entry %s missing task_id", taskID)
		}
		if _, err := ParsePhase(string(progress.Phase)); err != nil {
			return nil, fmt.Errorf("progress entry %s: %w", taskID, err)
		}
		if progress.Estimate != nil {
			if _, err := ParseEffortUnit(string(progress.Estimate.Unit)); err != nil {
				return nil, fmt.Errorf("progress entry %s: %w", taskID, err)
			}
		}
		tracker.tasks[taskID] = progress
	}
	tracker.Velocity.records = doc.Velocity.Records

	return tracker, nil
}
