package flaky

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TestKind classifies a test's place in the test pyramid.
type TestKind string

const (
	TestKindUnit        TestKind = "unit"
	TestKindIntegration TestKind = "integration"
	TestKindE2E         TestKind = "e2e"
)

// TestKindFromPath infers the pyramid level from the test file path; anything
// without an e2e or integration marker counts as unit.
func TestKindFromPath(path string) TestKind {
	lower := strings.ToLower(path)

	if strings.Contains(lower, "e2e") || strings.Contains(lower, "end_to_end") ||
		strings.Contains(lower, "end-to-end") {
		return TestKindE2E
	}
	if strings.Contains(lower, "integration") || strings.Contains(lower, "integ") {
		return TestKindIntegration
	}
	return TestKindUnit
}

// PyramidStats holds pass/fail counts for one pyramid level.
type PyramidStats struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Total returns all runs at this level.
func (s PyramidStats) Total() int {
	return s.Passed + s.Failed
}

// Pyramid tracks test counts by level and judges the shape.
type Pyramid struct {
	stats map[TestKind]*PyramidStats
}

// NewPyramid creates an empty pyramid.
func NewPyramid() *Pyramid {
	return &Pyramid{
		stats: map[TestKind]*PyramidStats{
			TestKindUnit:        {},
			TestKindIntegration: {},
			TestKindE2E:         {},
		},
	}
}

// AddTest counts one test result at a level.
func (p *Pyramid) AddTest(kind TestKind, passed bool) {
	stats, ok := p.stats[kind]
	if !ok {
		return
	}
	if passed {
		stats.Passed++
	} else {
		stats.Failed++
	}
}

// Ratio returns test counts by level.
func (p *Pyramid) Ratio() map[TestKind]int {
	return map[TestKind]int{
		TestKindUnit:        p.stats[TestKindUnit].Total(),
		TestKindIntegration: p.stats[TestKindIntegration].Total(),
		TestKindE2E:         p.stats[TestKindE2E].Total(),
	}
}

// Stats returns pass/fail counts by level.
func (p *Pyramid) Stats() map[TestKind]PyramidStats {
	return map[TestKind]PyramidStats{
		TestKindUnit:        *p.stats[TestKindUnit],
		TestKindIntegration: *p.stats[TestKindIntegration],
		TestKindE2E:         *p.stats[TestKindE2E],
	}
}

// IsHealthyShape reports a healthy pyramid: unit tests at least half of the
// total and outnumbering E2E. An empty pyramid is healthy.
func (p *Pyramid) IsHealthyShape() bool {
	ratio := p.Ratio()
	total := ratio[TestKindUnit] + ratio[TestKindIntegration] + ratio[TestKindE2E]
	if total == 0 {
		return true
	}

	unitPct := float64(ratio[TestKindUnit]) / float64(total)
	return unitPct >= 0.5 && ratio[TestKindUnit] > ratio[TestKindE2E]
}

// Recommendations lists shape and failure fixes for the current pyramid.
func (p *Pyramid) Recommendations() []string {
	var recommendations []string
	ratio := p.Ratio()
	total := ratio[TestKindUnit] + ratio[TestKindIntegration] + ratio[TestKindE2E]

	if total == 0 {
		return []string{"Add unit tests first"}
	}

	unitPct := float64(ratio[TestKindUnit]) / float64(total)
	if unitPct < 0.5 {
		recommendations = append(recommendations,
			fmt.Sprintf("Add more unit tests. Currently %.0f%%, recommend >= 50%%", unitPct*100))
	}

	if ratio[TestKindE2E] > ratio[TestKindUnit] {
		recommendations = append(recommendations,
			"Too many E2E tests relative to unit tests. Consider converting some to unit tests.")
	}

	for _, kind := range []TestKind{TestKindUnit, TestKindIntegration, TestKindE2E} {
		if failed := p.stats[kind].Failed; failed > 0 {
			recommendations = append(recommendations,
				fmt.Sprintf("Fix %d failing %s test(s)", failed, kind))
		}
	}

	return recommendations
}

// CoverageTrend tracks coverage measurements over time.
type CoverageTrend struct {
	Threshold float64
	history   []float64
}

// NewCoverageTrend creates a trend with the given minimum threshold.
func NewCoverageTrend(threshold float64) *CoverageTrend {
	return &CoverageTrend{Threshold: threshold}
}

// Record appends a coverage measurement.
func (t *CoverageTrend) Record(coverage float64) {
	t.history = append(t.history, coverage)
}

// Latest returns the most recent coverage, or false when nothing is recorded.
func (t *CoverageTrend) Latest() (float64, bool) {
	if len(t.history) == 0 {
		return 0, false
	}
	return t.history[len(t.history)-1], true
}

func (t *CoverageTrend) recent() []float64 {
	if len(t.history) <= 3 {
		return t.history
	}
	return t.history[len(t.history)-3:]
}

// IsImproving reports strictly rising coverage over the last 3 samples.
func (t *CoverageTrend) IsImproving() bool {
	if len(t.history) < 2 {
		return false
	}
	recent := t.recent()
	for i := 0; i < len(recent)-1; i++ {
		if recent[i] >= recent[i+1] {
			return false
		}
	}
	return true
}

// IsDeclining reports strictly falling coverage over the last 3 samples.
func (t *CoverageTrend) IsDeclining() bool {
	if len(t.history) < 2 {
		return false
	}
	recent := t.recent()
	for i := 0; i < len(recent)-1; i++ {
		if recent[i] <= recent[i+1] {
			return false
		}
	}
	return true
}

// IsStable reports the last 3 samples within a 2-point band.
func (t *CoverageTrend) IsStable() bool {
	if len(t.history) < 2 {
		return true
	}
	recent := t.recent()
	lo, hi := recent[0], recent[0]
	for _, v := range recent[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi-lo < 2.0
}

// MeetsThreshold reports the latest coverage at or above the threshold.
func (t *CoverageTrend) MeetsThreshold() bool {
	latest, ok := t.Latest()
	return ok && latest >= t.Threshold
}

// ChangeFromStart returns the coverage delta since the first measurement.
func (t *CoverageTrend) ChangeFromStart() float64 {
	if len(t.history) < 2 {
		return 0
	}
	return t.history[len(t.history)-1] - t.history[0]
}

// TrendLabel classifies the trend for summaries.
func (t *CoverageTrend) TrendLabel() string {
	switch {
	case t.IsImproving():
		return "improving"
	case t.IsDeclining():
		return "declining"
	default:
		return "stable"
	}
}

// analyzerCoverageRe matches the coverage report TOTAL line.
var analyzerCoverageRe = regexp.MustCompile(`TOTAL\s+\d+\s+\d+\s+(\d+)%`)

// Analyzer enforces the test pyramid and tracks coverage trend and
// source-to-test impact mappings. Flakiness itself stays with Detector; the
// analyzer covers the shape of the suite rather than individual tests.
type Analyzer struct {
	MinUnitRatio float64
	MinCoverage  float64
	Pyramid      *Pyramid
	Coverage     *CoverageTrend

	totalPassed  int
	totalFailed  int
	testMappings map[string][]string
}

// NewAnalyzer uses the published defaults: unit ratio 0.5, coverage 80.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		MinUnitRatio: 0.5,
		MinCoverage:  80,
		Pyramid:      NewPyramid(),
		Coverage:     NewCoverageTrend(80),
		testMappings: make(map[string][]string),
	}
}

// RecordResult counts one test result, classified by its file path.
func (a *Analyzer) RecordResult(filePath string, passed bool) {
	a.Pyramid.AddTest(TestKindFromPath(filePath), passed)
	if passed {
		a.totalPassed++
	} else {
		a.totalFailed++
	}
}

// AnalyzeOutput records a pyramid entry per result line in test output.
// SKIPPED lines are ignored; ERROR counts as a failure.
func (a *Analyzer) AnalyzeOutput(output string) {
	for _, line := range strings.Split(output, "\n") {
		match := pytestLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil || match[2] == "SKIPPED" {
			continue
		}
		filePath := match[1]
		if idx := strings.Index(filePath, "::"); idx >= 0 {
			filePath = filePath[:idx]
		}
		a.RecordResult(filePath, match[2] == "PASSED")
	}
}

// ExtractCoverage scans output for the coverage TOTAL line, records the value
// on the trend, and returns it.
func (a *Analyzer) ExtractCoverage(output string) (float64, bool) {
	match := analyzerCoverageRe.FindStringSubmatch(output)
	if match == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	coverage := float64(pct)
	a.Coverage.Record(coverage)
	return coverage, true
}

// CheckPyramidEnforcement lists violations of the unit-ratio and coverage
// minimums.
func (a *Analyzer) CheckPyramidEnforcement() []string {
	var violations []string

	ratio := a.Pyramid.Ratio()
	total := ratio[TestKindUnit] + ratio[TestKindIntegration] + ratio[TestKindE2E]
	if total > 0 {
		unitRatio := float64(ratio[TestKindUnit]) / float64(total)
		if unitRatio < a.MinUnitRatio {
			violations = append(violations,
				fmt.Sprintf("Unit test ratio %.0f%% below minimum %.0f%%", unitRatio*100, a.MinUnitRatio*100))
		}
	}

	if latest, ok := a.Coverage.Latest(); ok && latest < a.MinCoverage {
		violations = append(violations,
			fmt.Sprintf("Coverage %.1f%% below minimum %.0f%%", latest, a.MinCoverage))
	}

	return violations
}

// RegisterTestMapping records which test files exercise a source file.
func (a *Analyzer) RegisterTestMapping(sourceFile string, testFiles []string) {
	a.testMappings[sourceFile] = append([]string(nil), testFiles...)
}

// AffectedTests returns the tests covering the changed files. runAll is true
// when no mapping matched, meaning the caller should run everything.
func (a *Analyzer) AffectedTests(changedFiles []string) (tests []string, runAll bool) {
	affected := make(map[string]struct{})
	for _, source := range changedFiles {
		for _, test := range a.testMappings[source] {
			affected[test] = struct{}{}
		}
	}

	if len(affected) == 0 {
		return nil, true
	}

	for test := range affected {
		tests = append(tests, test)
	}
	sort.Strings(tests)
	return tests, false
}

// AnalyzerSummary is the analyzer rollup.
type AnalyzerSummary struct {
	TotalTests    int              `json:"total_tests"`
	Passed        int              `json:"passed"`
	Failed        int              `json:"failed"`
	Coverage      float64          `json:"coverage"`
	CoverageTrend string           `json:"coverage_trend"`
	PyramidHealth string           `json:"pyramid_health"`
	Ratio         map[TestKind]int `json:"ratio"`
}

// GetSummary returns the rollup.
func (a *Analyzer) GetSummary() AnalyzerSummary {
	health := "unhealthy"
	if a.Pyramid.IsHealthyShape() {
		health = "healthy"
	}

	latest, _ := a.Coverage.Latest()

	return AnalyzerSummary{
		TotalTests:    a.totalPassed + a.totalFailed,
		Passed:        a.totalPassed,
		Failed:        a.totalFailed,
		Coverage:      latest,
		CoverageTrend: a.Coverage.TrendLabel(),
		PyramidHealth: health,
		Ratio:         a.Pyramid.Ratio(),
	}
}
