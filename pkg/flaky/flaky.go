// Package flaky provides history-based flaky test detection and the
// ACTIVE/QUARANTINED/PROBATION/RETIRED quarantine state machine.
package flaky

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// QuarantineStatus of a test in the quarantine system. Only QUARANTINED is
// skipped in runs; PROBATION is observed but not skipped; RETIRED is
// permanently excluded.
type QuarantineStatus string

const (
	StatusActive      QuarantineStatus = "active"
	StatusQuarantined QuarantineStatus = "quarantined"
	StatusProbation   QuarantineStatus = "probation"
	StatusRetired     QuarantineStatus = "retired"
)

// TestRun is a single recorded run of a test.
type TestRun struct {
	TestName     string  `json:"test_name"`
	Passed       bool    `json:"passed"`
	Timestamp    float64 `json:"timestamp"`
	DurationMS   float64 `json:"duration_ms,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// TestHistory is the ordered run record for one test. Flakiness is always
// derived, never stored.
type TestHistory struct {
	TestName string    `json:"test_name"`
	Runs     []TestRun `json:"runs"`
}

// AddRun appends a run.
func (h *TestHistory) AddRun(run TestRun) {
	h.Runs = append(h.Runs, run)
}

// PassRate returns the fraction of passing runs; an empty history counts as
// fully passing.
func (h *TestHistory) PassRate() float64 {
	if len(h.Runs) == 0 {
		return 1.0
	}
	passed := 0
	for _, run := range h.Runs {
		if run.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(h.Runs))
}

// FailureRate is 1 - PassRate.
func (h *TestHistory) FailureRate() float64 {
	return 1.0 - h.PassRate()
}

// FlakinessScore counts pass/fail transitions over the maximum possible.
// A constant history scores 0; perfect alternation scores 1.
func (h *TestHistory) FlakinessScore() float64 {
	if len(h.Runs) < 2 {
		return 0.0
	}

	transitions := 0
	for i := 1; i < len(h.Runs); i++ {
		if h.Runs[i].Passed != h.Runs[i-1].Passed {
			transitions++
		}
	}

	return float64(transitions) / float64(len(h.Runs)-1)
}

// RecentRuns returns up to count of the most recent runs.
func (h *TestHistory) RecentRuns(count int) []TestRun {
	if count >= len(h.Runs) {
		return h.Runs
	}
	return h.Runs[len(h.Runs)-count:]
}

// Candidate is a test identified as potentially flaky.
type Candidate struct {
	TestName       string  `json:"test_name"`
	FlakinessScore float64 `json:"flakiness_score"`
	PassRate       float64 `json:"pass_rate"`
	RunCount       int     `json:"run_count"`
	RecentFailures int     `json:"recent_failures"`
}

// Recommendation classifies the candidate by score.
func (c Candidate) Recommendation() string {
	switch {
	case c.FlakinessScore >= 0.6:
		return "Quarantine: Highly flaky test should be isolated and fixed"
	case c.FlakinessScore >= 0.4:
		return "Investigate: Moderate flakiness, needs attention"
	default:
		return "Monitor: Low flakiness, continue tracking"
	}
}

// QuarantineEntry records a test's quarantine state.
type QuarantineEntry struct {
	TestName         string           `json:"test_name"`
	Status           QuarantineStatus `json:"status"`
	Reason           string           `json:"reason"`
	QuarantinedAt    float64          `json:"quarantined_at"`
	ProbationStarted float64          `json:"probation_started,omitempty"`
}

// Settings holds the detector policy knobs.
type Settings struct {
	FlakinessThreshold float64 `json:"flakiness_threshold"`
	MinRuns            int     `json:"min_runs"`
	AutoQuarantine     bool    `json:"auto_quarantine"`
	RetentionDays      int     `json:"retention_days"`
}

// DefaultSettings: threshold 0.3, 5 runs minimum, auto-quarantine off, 30-day
// retention.
func DefaultSettings() Settings {
	return Settings{
		FlakinessThreshold: 0.3,
		MinRuns:            5,
		AutoQuarantine:     false,
		RetentionDays:      30,
	}
}

// Detector records test runs and manages the quarantine set.
type Detector struct {
	settings   Settings
	histories  map[string]*TestHistory
	quarantine map[string]*QuarantineEntry
}

// NewDetector creates a detector with the given settings.
func NewDetector(settings Settings) *Detector {
	return &Detector{
		settings:   settings,
		histories:  make(map[string]*TestHistory),
		quarantine: make(map[string]*QuarantineEntry),
	}
}

// Settings returns the detector policy.
func (d *Detector) Settings() Settings {
	return d.settings
}

// GetHistory returns (creating if needed) the history for a test.
func (d *Detector) GetHistory(testName string) *TestHistory {
	history, ok := d.histories[testName]
	if !ok {
		history = &TestHistory{TestName: testName}
		d.histories[testName] = history
	}
	return history
}

// RecordRun records a test run, then applies the auto-quarantine policy.
func (d *Detector) RecordRun(testName string, passed bool, durationMS float64, errorMessage string) {
	run := TestRun{
		TestName:     testName,
		Passed:       passed,
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
		DurationMS:   durationMS,
		ErrorMessage: errorMessage,
	}

	d.GetHistory(testName).AddRun(run)

	if d.settings.AutoQuarantine {
		d.checkAutoQuarantine(testName)
	}
}

func (d *Detector) checkAutoQuarantine(testName string) {
	history := d.GetHistory(testName)
	if len(history.Runs) < d.settings.MinRuns {
		return
	}

	if history.FlakinessScore() >= d.settings.FlakinessThreshold && !d.IsQuarantined(testName) {
		d.QuarantineTest(testName, "Auto-quarantined: flakiness score exceeded threshold")
	}
}

// QuarantineTest moves a test to QUARANTINED with the given reason.
func (d *Detector) QuarantineTest(testName, reason string) {
	d.quarantine[testName] = &QuarantineEntry{
		TestName:      testName,
		Status:        StatusQuarantined,
		Reason:        reason,
		QuarantinedAt: float64(time.Now().UnixNano()) / 1e9,
	}
}

// UnquarantineTest removes a test from the quarantine set entirely, making
// it ACTIVE again.
func (d *Detector) UnquarantineTest(testName string) {
	delete(d.quarantine, testName)
}

// SetProbation moves a test to PROBATION: observed, but no longer skipped.
func (d *Detector) SetProbation(testName string) {
	now := float64(time.Now().UnixNano()) / 1e9
	if entry, ok := d.quarantine[testName]; ok {
		entry.Status = StatusProbation
		entry.ProbationStarted = now
		return
	}
	d.quarantine[testName] = &QuarantineEntry{
		TestName:         testName,
		Status:           StatusProbation,
		Reason:           "Placed on probation",
		QuarantinedAt:    now,
		ProbationStarted: now,
	}
}

// RetireTest permanently excludes a test.
func (d *Detector) RetireTest(testName, reason string) {
	now := float64(time.Now().UnixNano()) / 1e9
	if entry, ok := d.quarantine[testName]; ok {
		entry.Status = StatusRetired
		entry.Reason = reason
		return
	}
	d.quarantine[testName] = &QuarantineEntry{
		TestName:      testName,
		Status:        StatusRetired,
		Reason:        reason,
		QuarantinedAt: now,
	}
}

// IsQuarantined reports whether a test is currently QUARANTINED (skipped).
func (d *Detector) IsQuarantined(testName string) bool {
	entry, ok := d.quarantine[testName]
	return ok && entry.Status == StatusQuarantined
}

// GetStatus returns the quarantine status, ACTIVE when untracked.
func (d *Detector) GetStatus(testName string) QuarantineStatus {
	entry, ok := d.quarantine[testName]
	if !ok {
		return StatusActive
	}
	return entry.Status
}

// GetQuarantinedTests returns the names of QUARANTINED tests, sorted.
func (d *Detector) GetQuarantinedTests() []string {
	var names []string
	for name, entry := range d.quarantine {
		if entry.Status == StatusQuarantined {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (d *Detector) candidateFor(testName string, history *TestHistory) Candidate {
	recent := history.RecentRuns(5)
	recentFailures := 0
	for _, run := range recent {
		if !run.Passed {
			recentFailures++
		}
	}

	return Candidate{
		TestName:       testName,
		FlakinessScore: history.FlakinessScore(),
		PassRate:       history.PassRate(),
		RunCount:       len(history.Runs),
		RecentFailures: recentFailures,
	}
}

// DetectFlakyTests returns candidates whose score meets the threshold, with
// at least MinRuns runs.
func (d *Detector) DetectFlakyTests() []Candidate {
	var candidates []Candidate

	for name, history := range d.histories {
		if len(history.Runs) < d.settings.MinRuns {
			continue
		}
		if history.FlakinessScore() >= d.settings.FlakinessThreshold {
			candidates = append(candidates, d.candidateFor(name, history))
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].TestName < candidates[j].TestName })
	return candidates
}

// GetMostFlaky returns up to limit candidates with a nonzero score, most
// flaky first.
func (d *Detector) GetMostFlaky(limit int) []Candidate {
	var candidates []Candidate

	for name, history := range d.histories {
		if len(history.Runs) < d.settings.MinRuns {
			continue
		}
		if history.FlakinessScore() > 0 {
			candidates = append(candidates, d.candidateFor(name, history))
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FlakinessScore != candidates[j].FlakinessScore {
			return candidates[i].FlakinessScore > candidates[j].FlakinessScore
		}
		return candidates[i].TestName < candidates[j].TestName
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// Summary is a rollup of detector state.
type Summary struct {
	TotalTests       int      `json:"total_tests"`
	QuarantinedCount int      `json:"quarantined_count"`
	QuarantinedTests []string `json:"quarantined_tests"`
	FlakyCandidates  int      `json:"flaky_candidates"`
	FlakyTestNames   []string `json:"flaky_test_names"`
}

// GetSummary returns the rollup.
func (d *Detector) GetSummary() Summary {
	flaky := d.DetectFlakyTests()
	quarantined := d.GetQuarantinedTests()

	names := make([]string, len(flaky))
	for i, c := range flaky {
		names[i] = c.TestName
	}

	return Summary{
		TotalTests:       len(d.histories),
		QuarantinedCount: len(quarantined),
		QuarantinedTests: quarantined,
		FlakyCandidates:  len(flaky),
		FlakyTestNames:   names,
	}
}

// CleanupOldRuns drops runs older than the retention horizon.
func (d *Detector) CleanupOldRuns() {
	cutoff := float64(time.Now().UnixNano())/1e9 - float64(d.settings.RetentionDays)*24*60*60

	for _, history := range d.histories {
		kept := history.Runs[:0]
		for _, run := range history.Runs {
			if run.Timestamp >= cutoff {
				kept = append(kept, run)
			}
		}
		history.Runs = kept
	}
}

// pytestLineRe matches lines like "tests/test_foo.py::test_one PASSED".
var pytestLineRe = regexp.MustCompile(`^([\w/.:-]+::[\w_]+)\s+(PASSED|FAILED|ERROR|SKIPPED)`)

// ParsePytestOutput records one run per matching result line. Only PASSED
// counts as passing.
func (d *Detector) ParsePytestOutput(output string) {
	for _, line := range strings.Split(output, "\n") {
		match := pytestLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		d.RecordRun(match[1], match[2] == "PASSED", 0, "")
	}
}
