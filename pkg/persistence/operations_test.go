package persistence

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)

	if err := store.BeginSession("sess-1"); err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	if err := store.BeginSession("sess-1"); err == nil {
		t.Error("Expected error re-beginning the same session")
	}

	if err := store.EndSession("sess-1", "max iterations", 42, 5, 3); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	rec, err := store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.Iterations != 42 || rec.FeaturesStarted != 5 || rec.FeaturesCompleted != 3 {
		t.Errorf("Session counters wrong: %+v", rec)
	}
	if !rec.StopReason.Valid || rec.StopReason.String != "max iterations" {
		t.Errorf("StopReason = %+v", rec.StopReason)
	}
	if !rec.EndedAt.Valid || rec.EndedAt.Float64 < rec.StartedAt {
		t.Errorf("EndedAt invalid: %+v", rec.EndedAt)
	}

	if err := store.EndSession("ghost", "", 0, 0, 0); err == nil {
		t.Error("Expected error ending unknown session")
	}
}

func TestTaskResultsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	if err := store.BeginSession("sess-1"); err != nil {
		t.Fatal(err)
	}

	results := []TaskResultRecord{
		{SessionID: "sess-1", TaskID: "t1", AgentID: "agent-0", Success: true, DurationMS: 120},
		{SessionID: "sess-1", TaskID: "t2", AgentID: "agent-1", Success: false, Error: "compile error"},
	}
	for _, rec := range results {
		if err := store.RecordTaskResult(rec); err != nil {
			t.Fatalf("RecordTaskResult failed: %v", err)
		}
	}

	loaded, err := store.GetTaskResults("sess-1")
	if err != nil {
		t.Fatalf("GetTaskResults failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(loaded))
	}
	if loaded[0].TaskID != "t1" || !loaded[0].Success {
		t.Errorf("First result wrong: %+v", loaded[0])
	}
	if loaded[1].Error != "compile error" || loaded[1].Success {
		t.Errorf("Second result wrong: %+v", loaded[1])
	}
	if loaded[0].RecordedAt == 0 {
		t.Error("RecordedAt not stamped")
	}
}

func TestOutcomesRoundTrip(t *testing.T) {
	store := openTestStore(t)
	if err := store.BeginSession("sess-1"); err != nil {
		t.Fatal(err)
	}

	if err := store.RecordOutcome(OutcomeRecord{
		SessionID:   "sess-1",
		OutcomeType: "timeout",
		MetricName:  "task_duration_ms",
		Value:       30000,
	}); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	outcomes, err := store.GetOutcomes("sess-1")
	if err != nil {
		t.Fatalf("GetOutcomes failed: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].OutcomeType != "timeout" || outcomes[0].Value != 30000 {
		t.Errorf("Outcomes = %+v", outcomes)
	}

	empty, err := store.GetOutcomes("other")
	if err != nil {
		t.Fatalf("GetOutcomes(other) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no outcomes for other session, got %d", len(empty))
	}
}
