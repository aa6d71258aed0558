package flaky

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type detectorDoc struct {
	Settings   Settings                    `json:"settings"`
	Histories  map[string]*TestHistory     `json:"histories"`
	Quarantine map[string]*QuarantineEntry `json:"quarantine"`
}

// Save writes detector state (settings, histories, quarantine) to a JSON
// file.
func (d *Detector) Save(path string) error {
	doc := detectorDoc{
		Settings:   d.settings,
		Histories:  d.histories,
		Quarantine: d.quarantine,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create detector directory: %w", err)
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal detector state: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write detector state: %w", err)
	}

	return nil
}

// Load restores a detector from a file written by Save. Missing settings
// fields fall back to defaults.
func Load(path string) (*Detector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector state: %w", err)
	}

	doc := detectorDoc{Settings: DefaultSettings()}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detector state: %w", err)
	}

	detector := NewDetector(doc.Settings)
	if doc.Histories != nil {
		detector.histories = doc.Histories
	}
	if doc.Quarantine != nil {
		detector.quarantine = doc.Quarantine
	}

	return detector, nil
}
