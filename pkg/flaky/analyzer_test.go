package flaky

import (
	"strings"
	"testing"
)

func TestTestKindFromPath(t *testing.T) {
	cases := map[string]TestKind{
		"tests/test_parser.py":              TestKindUnit,
		"tests/integration/test_db.py":      TestKindIntegration,
		"tests/e2e/test_full_flow.py":       TestKindE2E,
		"tests/end_to_end/test_session.py":  TestKindE2E,
		"tests/integ/test_queue.py":         TestKindIntegration,
		"pkg/dispatch/dispatcher_test.go":   TestKindUnit,
		"tests/End-To-End/test_caseless.py": TestKindE2E,
	}

	for path, want := range cases {
		if got := TestKindFromPath(path); got != want {
			t.Errorf("TestKindFromPath(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestPyramidShape(t *testing.T) {
	p := NewPyramid()

	if !p.IsHealthyShape() {
		t.Error("Empty pyramid counts as healthy")
	}

	for i := 0; i < 6; i++ {
		p.AddTest(TestKindUnit, true)
	}
	p.AddTest(TestKindIntegration, true)
	p.AddTest(TestKindE2E, true)

	if !p.IsHealthyShape() {
		t.Errorf("6/1/1 pyramid should be healthy: %v", p.Ratio())
	}

	inverted := NewPyramid()
	inverted.AddTest(TestKindUnit, true)
	inverted.AddTest(TestKindE2E, true)
	inverted.AddTest(TestKindE2E, true)

	if inverted.IsHealthyShape() {
		t.Errorf("Inverted pyramid should be unhealthy: %v", inverted.Ratio())
	}
}

func TestPyramidRecommendations(t *testing.T) {
	p := NewPyramid()
	recs := p.Recommendations()
	if len(recs) != 1 || recs[0] != "Add unit tests first" {
		t.Errorf("Empty pyramid recommendations = %v", recs)
	}

	p.AddTest(TestKindUnit, true)
	p.AddTest(TestKindE2E, true)
	p.AddTest(TestKindE2E, false)

	recs = p.Recommendations()
	joined := strings.Join(recs, "\n")
	if !strings.Contains(joined, "Add more unit tests") {
		t.Errorf("Expected unit-ratio recommendation: %v", recs)
	}
	if !strings.Contains(joined, "Too many E2E tests") {
		t.Errorf("Expected E2E recommendation: %v", recs)
	}
	if !strings.Contains(joined, "failing e2e test") {
		t.Errorf("Expected failing-test recommendation: %v", recs)
	}
}

func TestCoverageTrend(t *testing.T) {
	trend := NewCoverageTrend(80)

	if _, ok := trend.Latest(); ok {
		t.Error("Empty trend has no latest")
	}
	if trend.IsImproving() || trend.IsDeclining() {
		t.Error("Empty trend is neither improving nor declining")
	}
	if !trend.IsStable() {
		t.Error("Empty trend counts as stable")
	}

	trend.Record(70)
	trend.Record(75)
	trend.Record(82)

	if !trend.IsImproving() {
		t.Error("Strictly rising samples should be improving")
	}
	if trend.IsDeclining() {
		t.Error("Rising trend is not declining")
	}
	if !trend.MeetsThreshold() {
		t.Error("Latest 82 meets threshold 80")
	}
	if got := trend.ChangeFromStart(); got != 12 {
		t.Errorf("ChangeFromStart = %v, want 12", got)
	}
	if trend.TrendLabel() != "improving" {
		t.Errorf("TrendLabel = %s", trend.TrendLabel())
	}

	down := NewCoverageTrend(80)
	down.Record(90)
	down.Record(85)
	down.Record(78)
	if !down.IsDeclining() {
		t.Error("Strictly falling samples should be declining")
	}

	flat := NewCoverageTrend(80)
	flat.Record(84)
	flat.Record(85)
	flat.Record(84.5)
	if !flat.IsStable() {
		t.Error("Samples within 2 points should be stable")
	}
	if flat.TrendLabel() != "stable" {
		t.Errorf("TrendLabel = %s", flat.TrendLabel())
	}
}

func TestAnalyzeOutputClassifiesByPath(t *testing.T) {
	a := NewAnalyzer()

	output := `
tests/test_core.py::test_parse PASSED
tests/test_core.py::test_render PASSED
tests/integration/test_db.py::test_connect FAILED
tests/e2e/test_flow.py::test_full ERROR
tests/test_misc.py::test_skip SKIPPED
`
	a.AnalyzeOutput(output)

	ratio := a.Pyramid.Ratio()
	if ratio[TestKindUnit] != 2 || ratio[TestKindIntegration] != 1 || ratio[TestKindE2E] != 1 {
		t.Errorf("Ratio = %v", ratio)
	}

	summary := a.GetSummary()
	if summary.TotalTests != 4 || summary.Passed != 2 || summary.Failed != 2 {
		t.Errorf("Summary counts wrong: %+v", summary)
	}
	if summary.PyramidHealth != "healthy" {
		t.Errorf("PyramidHealth = %s", summary.PyramidHealth)
	}
}

func TestExtractCoverageRecordsTrend(t *testing.T) {
	a := NewAnalyzer()

	coverage, ok := a.ExtractCoverage("TOTAL  200  30  85%")
	if !ok || coverage != 85 {
		t.Errorf("ExtractCoverage = %v, %v", coverage, ok)
	}

	latest, ok := a.Coverage.Latest()
	if !ok || latest != 85 {
		t.Errorf("Trend latest = %v, %v", latest, ok)
	}

	if _, ok := a.ExtractCoverage("no totals"); ok {
		t.Error("Expected no match")
	}
}

func TestCheckPyramidEnforcement(t *testing.T) {
	a := NewAnalyzer()

	a.RecordResult("tests/test_unit.py", true)
	a.RecordResult("tests/e2e/test_one.py", true)
	a.RecordResult("tests/e2e/test_two.py", true)
	a.Coverage.Record(60)

	violations := a.CheckPyramidEnforcement()
	if len(violations) != 2 {
		t.Fatalf("Expected 2 violations, got %v", violations)
	}
	if !strings.Contains(violations[0], "Unit test ratio") {
		t.Errorf("First violation = %q", violations[0])
	}
	if !strings.Contains(violations[1], "Coverage") {
		t.Errorf("Second violation = %q", violations[1])
	}

	if got := NewAnalyzer().CheckPyramidEnforcement(); len(got) != 0 {
		t.Errorf("Fresh analyzer has no violations: %v", got)
	}
}

func TestAffectedTests(t *testing.T) {
	a := NewAnalyzer()
	a.RegisterTestMapping("pkg/core/parser.go", []string{"pkg/core/parser_test.go"})
	a.RegisterTestMapping("pkg/core/render.go", []string{
		"pkg/core/render_test.go", "pkg/core/parser_test.go",
	})

	tests, runAll := a.AffectedTests([]string{"pkg/core/parser.go", "pkg/core/render.go"})
	if runAll {
		t.Fatal("Mapped files must not trigger run-all")
	}
	if len(tests) != 2 {
		t.Errorf("Affected = %v, want deduplicated pair", tests)
	}

	if _, runAll := a.AffectedTests([]string{"pkg/unmapped.go"}); !runAll {
		t.Error("Unmapped changes must run everything")
	}
}
