package optimizer

import (
	"path/filepath"
	"testing"
)

func TestParameterRangeClamp(t *testing.T) {
	r := ParameterRange{Min: 10, Max: 100, Step: 5}

	if got := r.Clamp(5); got != 10 {
		t.Errorf("Clamp(5) = %v", got)
	}
	if got := r.Clamp(500); got != 100 {
		t.Errorf("Clamp(500) = %v", got)
	}
	if got := r.Clamp(50); got != 50 {
		t.Errorf("Clamp(50) = %v", got)
	}
	if !r.IsValid(10) || !r.IsValid(100) || r.IsValid(101) {
		t.Error("IsValid boundaries wrong")
	}
}

func TestAdjustStaysInRangeAndAppendsHistory(t *testing.T) {
	o := New(0.1, StrategyHillClimbing)
	o.RegisterParameter("timeout_seconds", 60, 10, 300, 10)

	param := o.GetParameter("timeout_seconds")
	if len(param.History) != 1 {
		t.Fatalf("Initial history length = %d, want 1", len(param.History))
	}

	param.Adjust(1000)
	if param.CurrentValue != 300 {
		t.Errorf("Adjust must clamp: %v", param.CurrentValue)
	}
	param.Adjust(-50)
	if param.CurrentValue != 10 {
		t.Errorf("Adjust must clamp low: %v", param.CurrentValue)
	}
	if len(param.History) != 3 {
		t.Errorf("History length = %d, want 3", len(param.History))
	}

	for _, entry := range param.History {
		if !param.Range.IsValid(entry.Value) && entry.Value != 60 {
			t.Errorf("History entry %v outside range", entry.Value)
		}
	}
}

func TestSuccessRate(t *testing.T) {
	o := New(0.1, StrategyHillClimbing)

	if got := o.SuccessRate(); got != 1.0 {
		t.Errorf("Empty success rate = %v, want 1.0", got)
	}

	o.RecordOutcome(OutcomeSuccess, "m", 1, nil)
	o.RecordOutcome(OutcomeFailure, "m", 1, nil)
	o.RecordOutcome(OutcomeSuccess, "m", 1, nil)
	o.RecordOutcome(OutcomeSuccess, "m", 1, nil)

	if got := o.SuccessRate(); got != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", got)
	}
}

func TestTimeoutRecommendation(t *testing.T) {
	o := New(0.1, StrategyHillClimbing)
	o.RegisterParameter("task_timeout", 100, 10, 1000, 10)

	// 40% timeouts over the recent window.
	for i := 0; i < 4; i++ {
		o.RecordOutcome(OutcomeTimeout, "task", 1, nil)
	}
	for i := 0; i < 6; i++ {
		o.RecordOutcome(OutcomePartial, "task", 1, nil)
	}

	recs := o.GetRecommendations()
	rec, ok := recs["task_timeout"]
	if !ok {
		t.Fatal("Expected timeout recommendation")
	}
	if rec.Action != "increase" || rec.SuggestedValue != 150 {
		t.Errorf("Recommendation = %+v", rec)
	}
}

func TestRetryRecommendation(t *testing.T) {
	o := New(0.1, StrategyHillClimbing)
	o.RegisterParameter("retry_limit", 3, 1, 10, 1)

	for i := 0; i < 4; i++ {
		o.RecordOutcome(OutcomeFailure, "task", 1, nil)
	}
	for i := 0; i < 6; i++ {
		o.RecordOutcome(OutcomePartial, "task", 1, nil)
	}

	recs := o.GetRecommendations()
	rec, ok := recs["retry_limit"]
	if !ok {
		t.Fatal("Expected retry recommendation")
	}
	if rec.SuggestedValue != 4 {
		t.Errorf("Suggested = %v, want current + step", rec.SuggestedValue)
	}
}

func TestIterationRecommendation(t *testing.T) {
	o := New(0.1, StrategyHillClimbing)
	o.RegisterParameter("max_iterations", 100, 10, 200, 10)

	for i := 0; i < 20; i++ {
		o.RecordOutcome(OutcomeSuccess, "task", 1, nil)
	}

	recs := o.GetRecommendations()
	rec, ok := recs["max_iterations"]
	if !ok {
		t.Fatal("Expected iteration recommendation at >90% success")
	}
	if rec.Action != "decrease" || rec.SuggestedValue != 90 {
		t.Errorf("Recommendation = %+v", rec)
	}
}

func TestHillClimbingAppliesLearningRate(t *testing.T) {
	o := New(0.5, StrategyHillClimbing)
	o.RegisterParameter("task_timeout", 100, 10, 1000, 10)

	for i := 0; i < 10; i++ {
		o.RecordOutcome(OutcomeTimeout, "task", 1, nil)
	}

	o.OptimizeStep()

	param := o.GetParameter("task_timeout")
	// Suggested 150, applied at learning rate 0.5: 100 + 25 = 125.
	if param.CurrentValue != 125 {
		t.Errorf("CurrentValue = %v, want 125", param.CurrentValue)
	}
	if len(param.History) != 2 {
		t.Errorf("History length = %d", len(param.History))
	}
}

func TestRandomSearchStaysInRange(t *testing.T) {
	o := New(0.1, StrategyRandomSearch)
	o.RegisterParameter("p", 10, 10, 12, 1)

	for i := 0; i < 100; i++ {
		o.OptimizeStep()
		param := o.GetParameter("p")
		if !param.Range.IsValid(param.CurrentValue) {
			t.Fatalf("Value %v escaped range", param.CurrentValue)
		}
	}
}

func TestSimulatedAnnealingAcceptsImprovements(t *testing.T) {
	o := New(1.0, StrategySimulatedAnnealing)
	o.RegisterParameter("task_timeout", 100, 10, 1000, 10)

	// Positive diff (suggestion above current) is always accepted.
	for i := 0; i < 10; i++ {
		o.RecordOutcome(OutcomeTimeout, "task", 1, nil)
	}
	o.OptimizeStep()

	if got := o.GetParameter("task_timeout").CurrentValue; got != 150 {
		t.Errorf("CurrentValue = %v, want 150", got)
	}
}

func TestSettersAndSummary(t *testing.T) {
	o := New(0.1, StrategyHillClimbing)
	o.RegisterParameter("p", 5, 0, 10, 1)
	o.RecordOutcome(OutcomeSuccess, "m", 1, nil)
	o.OptimizeStep()

	o.SetLearningRate(0.3)
	o.SetStrategy(StrategyRandomSearch)

	summary := o.GetSummary()
	if summary.LearningRate != 0.3 || summary.Strategy != StrategyRandomSearch {
		t.Errorf("Summary = %+v", summary)
	}
	if summary.TotalOutcomes != 1 || summary.OptimizationSteps != 1 {
		t.Errorf("Summary counts wrong: %+v", summary)
	}
	if summary.Parameters["p"].CurrentValue != 5 {
		t.Errorf("Parameter summary wrong: %+v", summary.Parameters["p"])
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	o := New(0.2, StrategySimulatedAnnealing)
	o.RegisterParameter("retry_limit", 3, 1, 10, 1)
	o.RecordOutcome(OutcomeFailure, "task_duration", 420, map[string]any{"task_id": "t1"})
	o.GetParameter("retry_limit").Adjust(4)

	path := filepath.Join(t.TempDir(), "optimizer.json")
	if err := o.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if restored.learningRate != 0.2 || restored.strategy != StrategySimulatedAnnealing {
		t.Errorf("Config lost: %v %v", restored.learningRate, restored.strategy)
	}

	param := restored.GetParameter("retry_limit")
	if param == nil || param.CurrentValue != 4 {
		t.Fatalf("Parameter lost: %+v", param)
	}
	if len(param.History) != 2 {
		t.Errorf("History length = %d, want 2", len(param.History))
	}
	if param.History[0].Timestamp == 0 {
		t.Error("Timestamps must be preserved")
	}

	if len(restored.outcomes) != 1 || restored.outcomes[0].Value != 420 {
		t.Errorf("Outcomes lost: %+v", restored.outcomes)
	}
}

func TestLoadRejectsOutOfRangeParameter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	doc := `{"learning_rate": 0.1, "strategy": "hill_climbing",
		"parameters": {"p": {"name": "p", "current_value": 50, "min_value": 0, "max_value": 10, "step": 1}}}`
	if err := writeTestFile(path, doc); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for out-of-range parameter")
	}
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad2.json")
	if err := writeTestFile(path, `{"strategy": "genetic"}`); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown strategy")
	}
}
