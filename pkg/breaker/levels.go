package breaker

import (
	"fmt"
	"time"
)

// TokenBreaker trips when token usage approaches the context limit.
type TokenBreaker struct {
	MaxTokens    int
	ThresholdPct int
	WarningPct   int
	State        *BreakerState
}

// NewTokenBreaker uses the published defaults: trip at 90%, warn at 70%.
func NewTokenBreaker(maxTokens int) *TokenBreaker {
	return &TokenBreaker{
		MaxTokens:    maxTokens,
		ThresholdPct: 90,
		WarningPct:   70,
		State:        NewBreakerState(),
	}
}

// Check evaluates current token usage. In HALF_OPEN the check acts as the
// recovery probe: close below the threshold, reopen at or above it.
func (b *TokenBreaker) Check(currentTokens int) Result {
	pct := float64(currentTokens) / float64(b.MaxTokens) * 100

	if b.State.IsHalfOpen() {
		if pct < float64(b.ThresholdPct) {
			b.State.Close()
			return Result{Level: LevelToken, State: StateClosed}
		}
		b.State.Open()
		return Result{
			Level:  LevelToken,
			State:  StateOpen,
			Reason: fmt.Sprintf("Token usage at %.1f%% (probe failed)", pct),
		}
	}

	if pct >= float64(b.ThresholdPct) {
		b.State.Open()
		return Result{
			Level:  LevelToken,
			State:  StateOpen,
			Reason: fmt.Sprintf("Token usage at %.1f%% exceeds threshold (%d%%)", pct, b.ThresholdPct),
		}
	}

	if pct >= float64(b.WarningPct) {
		return Result{
			Level:    LevelToken,
			State:    StateClosed,
			Warnings: []string{fmt.Sprintf("Token usage at %.1f%% approaching threshold", pct)},
		}
	}

	return Result{Level: LevelToken, State: StateClosed}
}

// ProgressBreaker trips after too many iterations without progress. The
// output-decline check is a warning-only signal and never opens the circuit.
type ProgressBreaker struct {
	NoProgressThreshold    int
	OutputDeclineThreshold int
	State                  *BreakerState

	noProgressCount      int
	outputQualityHistory []float64
}

// NewProgressBreaker uses the published defaults: trip after 3 empty
// iterations, warn below 70% output quality.
func NewProgressBreaker() *ProgressBreaker {
	return &ProgressBreaker{
		NoProgressThreshold:    3,
		OutputDeclineThreshold: 70,
		State:                  NewBreakerState(),
	}
}

// RecordProgress feeds an iteration's progress counters.
func (b *ProgressBreaker) RecordProgress(filesChanged, testsPassed int) {
	if filesChanged > 0 || testsPassed > 0 {
		b.noProgressCount = 0
		b.State.RecordSuccess()
	} else {
		b.noProgressCount++
		b.State.RecordFailure()
	}
}

// RecordOutputQuality feeds an output quality sample (0-100).
func (b *ProgressBreaker) RecordOutputQuality(quality float64) {
	b.outputQualityHistory = append(b.outputQualityHistory, quality)
}

// NoProgressCount returns the consecutive no-progress count.
func (b *ProgressBreaker) NoProgressCount() int {
	return b.noProgressCount
}

// Check evaluates the progress counters.
func (b *ProgressBreaker) Check() Result {
	if b.State.IsHalfOpen() {
		if b.noProgressCount < b.NoProgressThreshold {
			b.State.Close()
			return Result{Level: LevelProgress, State: StateClosed}
		}
		b.State.Open()
		return Result{
			Level:  LevelProgress,
			State:  StateOpen,
			Reason: fmt.Sprintf("No progress for %d iterations (probe failed)", b.noProgressCount),
		}
	}

	if b.noProgressCount >= b.NoProgressThreshold {
		b.State.Open()
		return Result{
			Level:  LevelProgress,
			State:  StateOpen,
			Reason: fmt.Sprintf("No progress for %d iterations", b.noProgressCount),
		}
	}

	var warnings []string
	if len(b.outputQualityHistory) >= 3 {
		latest := b.outputQualityHistory[len(b.outputQualityHistory)-1]
		if latest < float64(b.OutputDeclineThreshold) {
			warnings = append(warnings, fmt.Sprintf("Output quality declined to %.1f%%", latest))
		}
	}

	return Result{Level: LevelProgress, State: StateClosed, Warnings: warnings}
}

// QualityBreaker trips when test failures grow monotonically; coverage and
// lint thresholds warn only.
type QualityBreaker struct {
	DegradationThreshold int
	MinCoverage          int
	MaxLintErrors        int
	State                *BreakerState

	testHistory [][2]int // (passed, failed)
	coverage    *float64
	lintErrors  int
}

// NewQualityBreaker uses the published defaults: 3-sample degradation window,
// 80% minimum coverage, 10 lint errors.
func NewQualityBreaker() *QualityBreaker {
	return &QualityBreaker{
		DegradationThreshold: 3,
		MinCoverage:          80,
		MaxLintErrors:        10,
		State:                NewBreakerState(),
	}
}

// RecordTestResult feeds a test run's pass/fail counts.
func (b *QualityBreaker) RecordTestResult(passed, failed int) {
	b.testHistory = append(b.testHistory, [2]int{passed, failed})
}

// RecordCoverage feeds a coverage percentage.
func (b *QualityBreaker) RecordCoverage(coverage float64) {
	b.coverage = &coverage
}

// RecordLintErrors feeds a lint error count.
func (b *QualityBreaker) RecordLintErrors(count int) {
	b.lintErrors = count
}

// TestHistoryLen returns the number of recorded test results.
func (b *QualityBreaker) TestHistoryLen() int {
	return len(b.testHistory)
}

func (b *QualityBreaker) degrading() (bool, int, int) {
	if len(b.testHistory) < b.DegradationThreshold {
		return false, 0, 0
	}
	recent := b.testHistory[len(b.testHistory)-b.DegradationThreshold:]
	for i := 0; i < len(recent)-1; i++ {
		if recent[i][1] > recent[i+1][1] {
			return false, 0, 0
		}
	}
	first, last := recent[0][1], recent[len(recent)-1][1]
	return last > first, first, last
}

// Check evaluates the quality metrics.
func (b *QualityBreaker) Check() Result {
	degrading, first, last := b.degrading()

	if b.State.IsHalfOpen() {
		if !degrading {
			b.State.Close()
			return Result{Level: LevelQuality, State: StateClosed}
		}
		b.State.Open()
		return Result{
			Level:  LevelQuality,
			State:  StateOpen,
			Reason: fmt.Sprintf("Tests degrading: failures increased from %d to %d (probe failed)", first, last),
		}
	}

	if degrading {
		b.State.Open()
		return Result{
			Level:  LevelQuality,
			State:  StateOpen,
			Reason: fmt.Sprintf("Tests degrading: failures increased from %d to %d", first, last),
		}
	}

	var warnings []string
	if b.coverage != nil && *b.coverage < float64(b.MinCoverage) {
		warnings = append(warnings, fmt.Sprintf("Coverage %.1f%% below minimum %d%%", *b.coverage, b.MinCoverage))
	}
	if b.lintErrors > b.MaxLintErrors {
		warnings = append(warnings, fmt.Sprintf("Lint errors (%d) exceed maximum (%d)", b.lintErrors, b.MaxLintErrors))
	}

	return Result{Level: LevelQuality, State: StateClosed, Warnings: warnings}
}

// TimeBreaker trips when wall-clock elapsed time reaches the budget.
type TimeBreaker struct {
	MaxDuration time.Duration
	WarningPct  int
	State       *BreakerState

	startTime time.Time
	now       func() time.Time
}

// NewTimeBreaker starts the clock immediately; warn at 80% by default.
func NewTimeBreaker(maxDuration time.Duration) *TimeBreaker {
	return &TimeBreaker{
		MaxDuration: maxDuration,
		WarningPct:  80,
		State:       NewBreakerState(),
		startTime:   time.Now(),
		now:         time.Now,
	}
}

// RemainingTime returns the time left in the budget, never negative.
func (b *TimeBreaker) RemainingTime() time.Duration {
	remaining := b.MaxDuration - b.now().Sub(b.startTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Check evaluates elapsed wall-clock time.
func (b *TimeBreaker) Check() Result {
	elapsed := b.now().Sub(b.startTime)
	pct := float64(elapsed) / float64(b.MaxDuration) * 100

	if b.State.IsHalfOpen() {
		if elapsed < b.MaxDuration {
			b.State.Close()
			return Result{Level: LevelTime, State: StateClosed}
		}
		b.State.Open()
		return Result{
			Level:  LevelTime,
			State:  StateOpen,
			Reason: fmt.Sprintf("Time limit exceeded: %.1fs >= %.1fs (probe failed)", elapsed.Seconds(), b.MaxDuration.Seconds()),
		}
	}

	if elapsed >= b.MaxDuration {
		b.State.Open()
		return Result{
			Level:  LevelTime,
			State:  StateOpen,
			Reason: fmt.Sprintf("Time limit exceeded: %.1fs >= %.1fs", elapsed.Seconds(), b.MaxDuration.Seconds()),
		}
	}

	if pct >= float64(b.WarningPct) {
		return Result{
			Level:    LevelTime,
			State:    StateClosed,
			Warnings: []string{fmt.Sprintf("Time %.1f%% used, %.1fs remaining", pct, b.RemainingTime().Seconds())},
		}
	}

	return Result{Level: LevelTime, State: StateClosed}
}
