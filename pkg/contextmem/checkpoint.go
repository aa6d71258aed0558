package contextmem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is a snapshot of context state for persistence. A key present in
// a hotter map never appears in a colder one.
type Checkpoint struct {
	SessionID       string         `json:"session_id"`
	ProgressSummary string         `json:"progress_summary"`
	HotContext      map[string]any `json:"hot_context"`
	WarmContext     map[string]any `json:"warm_context"`
	ColdContext     map[string]any `json:"cold_context"`
	CreatedAt       float64        `json:"created_at"`
}

// Save writes the checkpoint to a JSON file, creating parent directories.
func (c *Checkpoint) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}

	return nil
}

// LoadCheckpoint reads a checkpoint file written by Save.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", path, err)
	}

	if checkpoint.HotContext == nil {
		checkpoint.HotContext = make(map[string]any)
	}
	if checkpoint.WarmContext == nil {
		checkpoint.WarmContext = make(map[string]any)
	}
	if checkpoint.ColdContext == nil {
		checkpoint.ColdContext = make(map[string]any)
	}

	return &checkpoint, nil
}

// CreateCheckpoint snapshots current entries partitioned by tier to
// checkpoint-<session>-<unix>.json, then evicts checkpoints beyond the
// configured maximum (newest kept, by mtime).
func (m *Manager) CreateCheckpoint(sessionID, progressSummary string) (*Checkpoint, error) {
	checkpoint := &Checkpoint{
		SessionID:       sessionID,
		ProgressSummary: progressSummary,
		HotContext:      make(map[string]any),
		WarmContext:     make(map[string]any),
		ColdContext:     make(map[string]any),
		CreatedAt:       float64(time.Now().UnixNano()) / 1e9,
	}

	for _, entry := range m.entries {
		switch entry.Tier {
		case TierHot:
			checkpoint.HotContext[entry.Key] = entry.Value
		case TierWarm:
			checkpoint.WarmContext[entry.Key] = entry.Value
		case TierCold:
			checkpoint.ColdContext[entry.Key] = entry.Value
		}
	}

	filename := fmt.Sprintf("checkpoint-%s-%d.json", sessionID, time.Now().Unix())
	path := filepath.Join(m.checkpointDir, filename)
	if err := checkpoint.Save(path); err != nil {
		return nil, err
	}

	m.cleanupOldCheckpoints()

	return checkpoint, nil
}

// RestoreCheckpoint clears all entries and reinserts the checkpoint's tiers,
// HOT then WARM then COLD. A load failure leaves current entries untouched.
func (m *Manager) RestoreCheckpoint(path string) error {
	checkpoint, err := LoadCheckpoint(path)
	if err != nil {
		return err
	}

	m.entries = make(map[string]*Entry)

	for key, value := range checkpoint.HotContext {
		m.Add(key, value, TierHot)
	}
	for key, value := range checkpoint.WarmContext {
		m.Add(key, value, TierWarm)
	}
	for key, value := range checkpoint.ColdContext {
		m.Add(key, value, TierCold)
	}

	return nil
}
