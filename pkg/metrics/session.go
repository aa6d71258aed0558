package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SessionMetrics tracks one session: which features were started and
// completed, errors grouped by kind, plus a nested collector.
type SessionMetrics struct {
	SessionID string
	StartTime float64
	Collector *Collector

	featuresStarted   map[string]struct{}
	featuresCompleted map[string]struct{}
	errorsByType      map[string]int
}

// NewSessionMetrics starts a session clock now.
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		SessionID:         sessionID,
		StartTime:         float64(time.Now().UnixNano()) / 1e9,
		Collector:         NewCollector(),
		featuresStarted:   make(map[string]struct{}),
		featuresCompleted: make(map[string]struct{}),
		errorsByType:      make(map[string]int),
	}
}

// DurationSeconds returns the session age.
func (s *SessionMetrics) DurationSeconds() float64 {
	return float64(time.Now().UnixNano())/1e9 - s.StartTime
}

// RecordFeatureStarted notes a feature entering work.
func (s *SessionMetrics) RecordFeatureStarted(featureID string) {
	s.featuresStarted[featureID] = struct{}{}
	s.Collector.Increment(TypeFeaturesStarted, 1)
}

// RecordFeatureCompleted notes a finished feature.
func (s *SessionMetrics) RecordFeatureCompleted(featureID string) {
	s.featuresCompleted[featureID] = struct{}{}
	s.Collector.Increment(TypeFeaturesCompleted, 1)
}

// RecordError counts an error by kind label.
func (s *SessionMetrics) RecordError(errorType string) {
	s.errorsByType[errorType]++
	s.Collector.Increment(TypeErrors, 1)
}

// FeaturesStarted returns the count of started features.
func (s *SessionMetrics) FeaturesStarted() int {
	return len(s.featuresStarted)
}

// FeaturesCompleted returns the count of completed features.
func (s *SessionMetrics) FeaturesCompleted() int {
	return len(s.featuresCompleted)
}

// ErrorsByType returns a copy of the error counts by kind.
func (s *SessionMetrics) ErrorsByType() map[string]int {
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

type sessionDoc struct {
	SessionID         string         `json:"session_id"`
	StartTime         float64        `json:"start_time"`
	FeaturesStarted   []string       `json:"features_started"`
	FeaturesCompleted []string       `json:"features_completed"`
	ErrorsByType      map[string]int `json:"errors_by_type"`
	Collector         collectorDoc   `json:"collector"`
}

// Save writes the session rollup to a JSON file.
func (s *SessionMetrics) Save(path string) error {
	doc := sessionDoc{
		SessionID:    s.SessionID,
		StartTime:    s.StartTime,
		ErrorsByType: s.errorsByType,
		Collector:    s.Collector.toDoc(),
	}
	for id := range s.featuresStarted {
		doc.FeaturesStarted = append(doc.FeaturesStarted, id)
	}
	for id := range s.featuresCompleted {
		doc.FeaturesCompleted = append(doc.FeaturesCompleted, id)
	}
	sort.Strings(doc.FeaturesStarted)
	sort.Strings(doc.FeaturesCompleted)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create session metrics directory: %w", err)
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session metrics: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session metrics: %w", err)
	}

	return nil
}

// LoadSession restores session metrics from a file written by Save.
func LoadSession(path string) (*SessionMetrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session metrics: %w", err)
	}

	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session metrics: %w", err)
	}

	session := NewSessionMetrics(doc.SessionID)
	if doc.StartTime != 0 {
		session.StartTime = doc.StartTime
	}
	for _, id := range doc.FeaturesStarted {
		session.featuresStarted[id] = struct{}{}
	}
	for _, id := range doc.FeaturesCompleted {
		session.featuresCompleted[id] = struct{}{}
	}
	for kind, count := range doc.ErrorsByType {
		session.errorsByType[kind] = count
	}
	session.Collector.fromDoc(doc.Collector)

	return session, nil
}
