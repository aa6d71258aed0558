package depgraph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func feature(id string, priority int, effort int, deps ...string) *Feature {
	return &Feature{
		ID:             id,
		Description:    "feature " + id,
		Priority:       priority,
		Dependencies:   deps,
		Status:         StatusPending,
		EffortEstimate: effort,
	}
}

func TestEmptyGraphBoundaries(t *testing.T) {
	g := NewGraph()

	if g.HasCycle() {
		t.Error("Empty graph has no cycle")
	}
	if got := g.TopologicalSort(); len(got) != 0 {
		t.Errorf("Empty topo sort = %v", got)
	}
	if got := g.FindCriticalPath(); len(got) != 0 {
		t.Errorf("Empty critical path = %v", got)
	}
}

func TestCycleDetection(t *testing.T) {
	g := NewGraph()
	g.AddFeature(feature("F1", 1, 1, "F3"))
	g.AddFeature(feature("F2", 1, 1, "F1"))
	g.AddFeature(feature("F3", 1, 1, "F2"))

	if !g.HasCycle() {
		t.Fatal("Expected cycle F1->F3->F2->F1")
	}

	cycles := g.FindCycles()
	if len(cycles) == 0 {
		t.Fatal("FindCycles returned nothing")
	}
	cycle := cycles[0]
	if cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("Cycle not closed: %v", cycle)
	}

	if got := g.TopologicalSort(); got != nil {
		t.Errorf("Topo sort on cycle = %v, want nil", got)
	}
	if got := g.CreateParallelPlan(); got != nil {
		t.Errorf("Parallel plan on cycle = %v, want nil", got)
	}
	if got := g.FindCriticalPath(); got != nil {
		t.Errorf("Critical path on cycle = %v, want nil", got)
	}
}

func TestTopologicalSortRespectsDepsAndPriority(t *testing.T) {
	g := NewGraph()
	g.AddFeature(feature("base", 5, 1))
	g.AddFeature(feature("urgent", 1, 1))
	g.AddFeature(feature("child", 1, 1, "base"))

	sorted := g.TopologicalSort()
	if len(sorted) != 3 {
		t.Fatalf("Expected every feature exactly once, got %d", len(sorted))
	}

	pos := make(map[string]int)
	for i, f := range sorted {
		pos[f.ID] = i
	}

	if pos["base"] > pos["child"] {
		t.Error("Dependency must precede dependent")
	}
	// Among the initial zero-in-degree set, priority 1 pops before 5.
	if pos["urgent"] > pos["base"] {
		t.Error("Lower priority value must pop first among available nodes")
	}
}

func TestDependentsAndDependencies(t *testing.T) {
	g := NewGraph()
	g.AddFeature(feature("a", 1, 1))
	g.AddFeature(feature("b", 1, 1, "a"))
	g.AddFeature(feature("c", 1, 1, "a"))

	deps := g.GetDependencies("b")
	if len(deps) != 1 || deps[0] != "a" {
		t.Errorf("Dependencies(b) = %v", deps)
	}

	dependents := g.GetDependents("a")
	if len(dependents) != 2 {
		t.Errorf("Dependents(a) = %v", dependents)
	}
}

func TestReadyAndBlocked(t *testing.T) {
	g := NewGraph()
	g.AddFeature(feature("done", 1, 1))
	g.AddFeature(feature("ready_low", 9, 1, "done"))
	g.AddFeature(feature("ready_high", 2, 1, "done"))
	g.AddFeature(feature("blocked", 1, 1, "ready_low"))
	g.AddFeature(feature("working", 1, 1))

	doneF, _ := g.GetFeature("done")
	doneF.Status = StatusComplete
	workingF, _ := g.GetFeature("working")
	workingF.Status = StatusInProgress

	ready := g.GetReadyFeatures()
	if len(ready) != 2 {
		t.Fatalf("Ready = %v", ready)
	}
	// Sorted by priority ascending.
	if ready[0].ID != "ready_high" || ready[1].ID != "ready_low" {
		t.Errorf("Ready order wrong: %s, %s", ready[0].ID, ready[1].ID)
	}

	blocked := g.GetBlockedFeatures()
	if len(blocked) != 1 || blocked[0].ID != "blocked" {
		t.Errorf("Blocked = %v", blocked)
	}
}

func TestCriticalPathScenario(t *testing.T) {
	// F1(1) -> F2(1), F1 -> F3(5), {F2,F3} -> F4(1).
	g := NewGraph()
	g.AddFeature(feature("F1", 1, 1))
	g.AddFeature(feature("F2", 1, 1, "F1"))
	g.AddFeature(feature("F3", 1, 5, "F1"))
	g.AddFeature(feature("F4", 1, 1, "F2", "F3"))

	path := g.FindCriticalPath()

	onPath := make(map[string]bool)
	total := 0
	for _, f := range path {
		onPath[f.ID] = true
		total += f.EffortEstimate
	}

	if !onPath["F3"] {
		t.Errorf("Critical path must contain F3: %v", onPath)
	}
	if total != 7 {
		t.Errorf("Critical path weight = %d, want 7", total)
	}
	if g.CriticalPathWeight() != 7 {
		t.Errorf("CriticalPathWeight = %d", g.CriticalPathWeight())
	}
	// Dependencies-first ordering.
	if len(path) > 0 && path[0].ID != "F1" {
		t.Errorf("Path should start at F1, got %s", path[0].ID)
	}
}

func TestPriorityScores(t *testing.T) {
	g := NewGraph()
	g.AddFeature(feature("root", 10, 3))
	g.AddFeature(feature("leaf_a", 20, 1, "root"))
	g.AddFeature(feature("leaf_b", 30, 1, "root"))

	scores := g.PriorityScores()

	// root: (100-10) + 2*10 + 50 (on critical path) = 160.
	if scores["root"] != 160 {
		t.Errorf("score(root) = %v, want 160", scores["root"])
	}
	// leaf_b: (100-30) + 0 + 0 = 70 (critical path runs through leaf_a,
	// whose lower priority value pops first in the topological order).
	if scores["leaf_b"] != 70 {
		t.Errorf("score(leaf_b) = %v, want 70", scores["leaf_b"])
	}
}

func TestParallelPlanWaves(t *testing.T) {
	g := NewGraph()
	g.AddFeature(feature("a", 5, 1))
	g.AddFeature(feature("b", 1, 1))
	g.AddFeature(feature("c", 1, 1, "a", "b"))
	g.AddFeature(feature("d", 2, 1, "c"))

	waves := g.CreateParallelPlan()
	if len(waves) != 3 {
		t.Fatalf("Expected 3 waves, got %d", len(waves))
	}

	if len(waves[0]) != 2 || waves[0][0].ID != "b" || waves[0][1].ID != "a" {
		t.Errorf("Wave 0 wrong: %v", ids(waves[0]))
	}
	if len(waves[1]) != 1 || waves[1][0].ID != "c" {
		t.Errorf("Wave 1 wrong: %v", ids(waves[1]))
	}
	if len(waves[2]) != 1 || waves[2][0].ID != "d" {
		t.Errorf("Wave 2 wrong: %v", ids(waves[2]))
	}
}

func ids(features []*Feature) []string {
	out := make([]string, len(features))
	for i, f := range features {
		out[i] = f.ID
	}
	return out
}

func TestNextFeaturePrefersHighScore(t *testing.T) {
	g := NewGraph()
	g.AddFeature(feature("unblocker", 50, 1))
	g.AddFeature(feature("solo", 40, 1))
	g.AddFeature(feature("x", 1, 1, "unblocker"))
	g.AddFeature(feature("y", 1, 1, "unblocker"))
	g.AddFeature(feature("z", 1, 1, "unblocker"))

	// unblocker: (100-50) + 3*10 + 50 = 130 vs solo's 60 (solo is off the critical path).
	next := g.NextFeature()
	if next == nil || next.ID != "unblocker" {
		t.Errorf("NextFeature = %v, want unblocker", next)
	}

	if empty := NewGraph().NextFeature(); empty != nil {
		t.Errorf("NextFeature on empty graph = %v", empty)
	}
}

func TestMermaidExport(t *testing.T) {
	g := NewGraph()
	long := feature("F1", 1, 1)
	long.Description = strings.Repeat("very long description ", 5)
	long.Status = StatusComplete
	g.AddFeature(long)
	g.AddFeature(feature("F2", 1, 1, "F1"))

	mermaid := g.ToMermaid()

	if !strings.HasPrefix(mermaid, "graph TD") {
		t.Error("Expected graph TD header")
	}
	if !strings.Contains(mermaid, "F1 --> F2") {
		t.Errorf("Missing edge:\n%s", mermaid)
	}
	if !strings.Contains(mermaid, ":::complete") {
		t.Error("Missing status class for complete feature")
	}
	// Label truncated to 30 chars of description.
	if strings.Contains(mermaid, long.Description) {
		t.Error("Description not truncated")
	}
	if strings.Count(mermaid, "-->") != 1 {
		t.Errorf("Every dependency appears as exactly one edge:\n%s", mermaid)
	}
}

func TestFromJSON(t *testing.T) {
	doc := `{
		"features": [
			{"id": "F1", "description": "first", "priority": 1, "dependencies": []},
			{"id": "F2", "description": "second", "dependencies": ["F1"], "status": "in_progress",
			 "effort_estimate": 3, "passes": true, "unknown_field": 42}
		]
	}`

	path := filepath.Join(t.TempDir(), "features.json")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	g, err := FromJSON(path)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}

	if g.NodeCount() != 2 {
		t.Fatalf("NodeCount = %d", g.NodeCount())
	}

	f2, _ := g.GetFeature("F2")
	if f2.Priority != 99 {
		t.Errorf("Missing priority should default to 99, got %d", f2.Priority)
	}
	if f2.EffortEstimate != 3 {
		t.Errorf("EffortEstimate = %d", f2.EffortEstimate)
	}
	if f2.Status != StatusInProgress {
		t.Errorf("Status = %s", f2.Status)
	}
	if !f2.Passes {
		t.Error("Passes not parsed")
	}

	f1, _ := g.GetFeature("F1")
	if f1.EffortEstimate != 1 {
		t.Errorf("Missing effort should default to 1, got %d", f1.EffortEstimate)
	}
	if f1.Status != StatusPending {
		t.Errorf("Missing status should default to pending, got %s", f1.Status)
	}
}
