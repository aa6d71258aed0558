package breaker

import "time"

// MultiLevel combines the four breakers. Checks run Token, Progress, Quality,
// Time in that order; the first open circuit short-circuits.
type MultiLevel struct {
	Token    *TokenBreaker
	Progress *ProgressBreaker
	Quality  *QualityBreaker
	Time     *TimeBreaker
}

// NewMultiLevel wires the four breakers with the given budgets and published
// defaults everywhere else.
func NewMultiLevel(maxTokens int, noProgressThreshold int, maxDuration time.Duration, minCoverage int) *MultiLevel {
	progress := NewProgressBreaker()
	progress.NoProgressThreshold = noProgressThreshold

	quality := NewQualityBreaker()
	quality.MinCoverage = minCoverage

	return &MultiLevel{
		Token:    NewTokenBreaker(maxTokens),
		Progress: progress,
		Quality:  quality,
		Time:     NewTimeBreaker(maxDuration),
	}
}

// RecordProgress forwards progress counters to the progress breaker.
func (m *MultiLevel) RecordProgress(filesChanged, testsPassed int) {
	m.Progress.RecordProgress(filesChanged, testsPassed)
}

// RecordTestResult forwards test counts to the quality breaker.
func (m *MultiLevel) RecordTestResult(passed, failed int) {
	m.Quality.RecordTestResult(passed, failed)
}

// Check evaluates every level in order. When none trips, warnings from all
// levels are concatenated onto a closed result with no level set.
func (m *MultiLevel) Check(currentTokens int) Result {
	var allWarnings []string

	tokenResult := m.Token.Check(currentTokens)
	if tokenResult.IsTripped() {
		return tokenResult
	}
	allWarnings = append(allWarnings, tokenResult.Warnings...)

	progressResult := m.Progress.Check()
	if progressResult.IsTripped() {
		return progressResult
	}
	allWarnings = append(allWarnings, progressResult.Warnings...)

	qualityResult := m.Quality.Check()
	if qualityResult.IsTripped() {
		return qualityResult
	}
	allWarnings = append(allWarnings, qualityResult.Warnings...)

	timeResult := m.Time.Check()
	if timeResult.IsTripped() {
		return timeResult
	}
	allWarnings = append(allWarnings, timeResult.Warnings...)

	return Result{State: StateClosed, Warnings: allWarnings}
}

// LevelStatus describes one breaker in the status summary.
type LevelStatus struct {
	State  string         `json:"state"`
	Extras map[string]any `json:"extras"`
}

// GetStatusSummary returns per-breaker state plus level-specific extras.
func (m *MultiLevel) GetStatusSummary() map[string]LevelStatus {
	return map[string]LevelStatus{
		"token": {
			State:  m.Token.State.state.String(),
			Extras: map[string]any{"failures": m.Token.State.FailureCount()},
		},
		"progress": {
			State:  m.Progress.State.state.String(),
			Extras: map[string]any{"no_progress_count": m.Progress.NoProgressCount()},
		},
		"quality": {
			State:  m.Quality.State.state.String(),
			Extras: map[string]any{"test_history_count": m.Quality.TestHistoryLen()},
		},
		"time": {
			State:  m.Time.State.state.String(),
			Extras: map[string]any{"remaining_seconds": m.Time.RemainingTime().Seconds()},
		},
	}
}
