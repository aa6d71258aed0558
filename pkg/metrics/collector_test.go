package metrics

import (
	"path/filepath"
	"testing"
)

func TestRecordAndAggregate(t *testing.T) {
	c := NewCollector()

	c.Record(TypeTestsPassed, 10, nil)
	c.Record(TypeTestsPassed, 14, map[string]any{"suite": "unit"})
	c.Record(TypeCoverage, 85.5, nil)

	if got := c.GetSum(TypeTestsPassed); got != 24 {
		t.Errorf("Sum = %v", got)
	}
	if got := c.GetAverage(TypeTestsPassed); got != 12 {
		t.Errorf("Average = %v", got)
	}
	if got := c.GetAverage(TypeBugsFixed); got != 0 {
		t.Errorf("Empty average = %v, want 0", got)
	}

	latest, ok := c.GetLatest(TypeTestsPassed)
	if !ok || latest.Value != 14 {
		t.Errorf("Latest = %+v, %v", latest, ok)
	}
	if latest.Metadata["suite"] != "unit" {
		t.Errorf("Metadata lost: %+v", latest.Metadata)
	}
	if _, ok := c.GetLatest(TypeBugsFixed); ok {
		t.Error("Expected no latest for empty series")
	}

	if got := len(c.GetValues(TypeTestsPassed)); got != 2 {
		t.Errorf("Values = %d", got)
	}
}

func TestCounters(t *testing.T) {
	c := NewCollector()
	c.Increment(TypeIterations, 1)
	c.Increment(TypeIterations, 2)

	if got := c.GetCount(TypeIterations); got != 3 {
		t.Errorf("Count = %d", got)
	}
	if got := c.GetCount(TypeErrors); got != 0 {
		t.Errorf("Untouched counter = %d", got)
	}
}

func TestCollectorRoundTrip(t *testing.T) {
	c := NewCollector()
	c.Record(TypeTokensUsed, 1200, map[string]any{"source": "agent-0"})
	c.Increment(TypeFeaturesCompleted, 4)

	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	values := restored.GetValues(TypeTokensUsed)
	if len(values) != 1 || values[0].Value != 1200 {
		t.Errorf("Series lost: %+v", values)
	}
	if values[0].Timestamp == 0 {
		t.Error("Timestamps must be preserved")
	}
	if restored.GetCount(TypeFeaturesCompleted) != 4 {
		t.Errorf("Counter lost: %d", restored.GetCount(TypeFeaturesCompleted))
	}
}

func TestLoadSkipsUnknownMetricNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	doc := `{"metrics": {"martian_metric": [{"value": 1, "timestamp": 2}],
		"coverage": [{"value": 88, "timestamp": 3}]},
		"counters": {"another_unknown": 7, "iterations": 2}}`
	if err := writeTestFile(path, doc); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(c.GetValues(TypeCoverage)) != 1 {
		t.Error("Known series lost")
	}
	if c.GetCount(TypeIterations) != 2 {
		t.Error("Known counter lost")
	}
}

func TestSessionMetricsRollup(t *testing.T) {
	s := NewSessionMetrics("sess-1")

	s.RecordFeatureStarted("F1")
	s.RecordFeatureStarted("F2")
	s.RecordFeatureStarted("F1") // duplicate, still one feature
	s.RecordFeatureCompleted("F1")
	s.RecordError("syntax")
	s.RecordError("syntax")
	s.RecordError("network")

	if s.FeaturesStarted() != 2 {
		t.Errorf("FeaturesStarted = %d, want 2", s.FeaturesStarted())
	}
	if s.FeaturesCompleted() != 1 {
		t.Errorf("FeaturesCompleted = %d", s.FeaturesCompleted())
	}

	errors := s.ErrorsByType()
	if errors["syntax"] != 2 || errors["network"] != 1 {
		t.Errorf("ErrorsByType = %v", errors)
	}
	if s.DurationSeconds() < 0 {
		t.Error("Negative duration")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := NewSessionMetrics("sess-2")
	s.RecordFeatureStarted("F1")
	s.RecordFeatureCompleted("F1")
	s.RecordError("timeout")
	s.Collector.Record(TypeTimeElapsed, 12.5, nil)

	path := filepath.Join(t.TempDir(), "session.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}

	if restored.SessionID != "sess-2" {
		t.Errorf("SessionID = %s", restored.SessionID)
	}
	if restored.StartTime != s.StartTime {
		t.Error("StartTime must be preserved")
	}
	if restored.FeaturesStarted() != 1 || restored.FeaturesCompleted() != 1 {
		t.Errorf("Feature sets lost: %d/%d", restored.FeaturesStarted(), restored.FeaturesCompleted())
	}
	if restored.ErrorsByType()["timeout"] != 1 {
		t.Errorf("Errors lost: %v", restored.ErrorsByType())
	}
	if restored.Collector.GetSum(TypeTimeElapsed) != 12.5 {
		t.Error("Nested collector lost")
	}
}
