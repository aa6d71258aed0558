package loopctl

import (
	"fmt"
	"time"

	"devloop/pkg/errorsig"
	"devloop/pkg/logx"
)

// IterationRecord is one history entry. Later RecordError/RecordProgress
// calls amend the current iteration's record rather than appending.
type IterationRecord struct {
	Iteration    int     `json:"iteration"`
	Timestamp    float64 `json:"timestamp"`
	FilesChanged int     `json:"files_changed"`
	TestsPassed  int     `json:"tests_passed"`
	Error        string  `json:"error,omitempty"`
}

// State tracks the control loop counters.
type State struct {
	Iteration             int
	ErrorsCount           int
	LastError             string
	ConsecutiveSameError  int
	ConsecutiveNoProgress int
	StuckThreshold        int
	NoProgressThreshold   int

	lastErrorSig *errorsig.Signature
	history      []IterationRecord
}

// NewState uses the published thresholds: stuck after 5 identical errors,
// no-progress after 3 empty iterations.
func NewState() *State {
	return &State{
		StuckThreshold:      5,
		NoProgressThreshold: 3,
	}
}

// Increment advances the iteration counter.
func (s *State) Increment() {
	s.Iteration++
}

// RecordError records an error occurrence. Sameness is tested against the
// normalized signature shared with the rest of the system, so equivalent
// errors with different line numbers or paths still count as repeats.
func (s *State) RecordError(errMsg string) {
	s.ErrorsCount++
	s.LastError = errMsg

	sig := errorsig.GetSignature(errMsg)
	if s.lastErrorSig != nil && *s.lastErrorSig == sig {
		s.ConsecutiveSameError++
	} else {
		s.ConsecutiveSameError = 1
		s.lastErrorSig = &sig
	}

	if n := len(s.history); n > 0 && s.history[n-1].Iteration == s.Iteration {
		s.history[n-1].Error = errMsg
	}
}

// RecordProgress records an iteration's progress. Any progress resets the
// stuck counters and the error signature latch.
func (s *State) RecordProgress(filesChanged, testsPassed int) {
	if filesChanged > 0 || testsPassed > 0 {
		s.ConsecutiveSameError = 0
		s.ConsecutiveNoProgress = 0
		s.lastErrorSig = nil
	} else {
		s.ConsecutiveNoProgress++
	}

	if n := len(s.history); n > 0 && s.history[n-1].Iteration == s.Iteration {
		s.history[n-1].FilesChanged = filesChanged
		s.history[n-1].TestsPassed = testsPassed
		return
	}

	s.history = append(s.history, IterationRecord{
		Iteration:    s.Iteration,
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
		FilesChanged: filesChanged,
		TestsPassed:  testsPassed,
	})
}

// IsStuck reports repeated identical errors at or past the threshold.
func (s *State) IsStuck() bool {
	return s.ConsecutiveSameError >= s.StuckThreshold
}

// HasNoProgress reports empty iterations at or past the threshold.
func (s *State) HasNoProgress() bool {
	return s.ConsecutiveNoProgress >= s.NoProgressThreshold
}

// History returns a copy of the iteration records.
func (s *State) History() []IterationRecord {
	out := make([]IterationRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Controller combines configuration, state tracking, and backoff into the
// loop stop policy.
type Controller struct {
	Config     Config
	Complexity Complexity
	Backoff    Backoff
	State      *State

	stopReason string
	logger     *logx.Logger
}

// NewController creates a controller for the given complexity with default
// config and backoff.
func NewController(complexity Complexity) *Controller {
	return &Controller{
		Config:     DefaultConfig(),
		Complexity: complexity,
		Backoff:    DefaultBackoff(),
		State:      NewState(),
		logger:     logx.NewLogger("loopctl"),
	}
}

// IterationLimit returns the adaptive limit for the controller's complexity.
func (c *Controller) IterationLimit() int {
	return c.Config.AdaptiveLimit(c.Complexity)
}

// StopReason returns the reason recorded by the last ShouldStop that
// returned true, or "".
func (c *Controller) StopReason() string {
	return c.stopReason
}

// Tick advances the iteration counter and opens its history record.
func (c *Controller) Tick() {
	c.State.Increment()
	c.State.history = append(c.State.history, IterationRecord{
		Iteration: c.State.Iteration,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
}

// RecordError records an error in the current iteration.
func (c *Controller) RecordError(errMsg string) {
	c.State.RecordError(errMsg)
}

// RecordProgress records progress in the current iteration.
func (c *Controller) RecordProgress(filesChanged, testsPassed int) {
	c.State.RecordProgress(filesChanged, testsPassed)
}

// ShouldStop evaluates the stop predicates in order: iteration limit, stuck,
// no progress.
func (c *Controller) ShouldStop() bool {
	if c.State.Iteration >= c.IterationLimit() {
		c.stopReason = fmt.Sprintf("Max iterations (%d) reached", c.IterationLimit())
		return true
	}

	if c.State.IsStuck() {
		c.stopReason = "Stuck on same error repeatedly"
		return true
	}

	if c.State.HasNoProgress() {
		c.stopReason = "No progress for too many iterations"
		return true
	}

	return false
}

// RecommendedDelay returns the backoff for the current consecutive-error
// count, or 0 when the last iteration was clean.
func (c *Controller) RecommendedDelay() time.Duration {
	if attempts := c.State.ConsecutiveSameError; attempts > 0 {
		return c.Backoff.Delay(attempts)
	}
	return 0
}

// History returns the iteration history.
func (c *Controller) History() []IterationRecord {
	return c.State.History()
}
