package contextmem

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAddAndGet(t *testing.T) {
	m := NewManager(1000, t.TempDir())

	m.Add("current_task", "implement parser", TierHot)

	value, ok := m.Get("current_task")
	if !ok || value != "implement parser" {
		t.Errorf("Get returned %v, %v", value, ok)
	}

	if _, ok := m.Get("missing"); ok {
		t.Error("Expected missing key to return false")
	}
}

func TestAddReplacesExistingKey(t *testing.T) {
	m := NewManager(1000, t.TempDir())

	m.Add("k", "v1", TierHot)
	m.Add("k", "v2", TierWarm)

	value, _ := m.Get("k")
	if value != "v2" {
		t.Errorf("Expected replacement, got %v", value)
	}
	if got := len(m.GetTier(TierHot)); got != 0 {
		t.Errorf("Expected old tier emptied, got %d entries", got)
	}
	if got := len(m.GetTier(TierWarm)); got != 1 {
		t.Errorf("Expected 1 warm entry, got %d", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	m := NewManager(1000, t.TempDir())

	m.Add("key1", "abcdefgh", TierHot) // 4 + 8 = 12 chars
	m.Add("k2", "xyz", TierWarm)       // 2 + 3 = 5 chars

	want := (12 + 5) / 4
	if got := m.EstimateTokens(); got != want {
		t.Errorf("EstimateTokens = %d, want %d", got, want)
	}
}

func TestPressureLevels(t *testing.T) {
	cases := []struct {
		current int
		max     int
		level   PressureLevel
	}{
		{10, 100, PressureLow},
		{30, 100, PressureMedium},
		{70, 100, PressureHigh},
		{90, 100, PressureCritical},
		{0, 0, PressureLow},
	}

	for _, tc := range cases {
		p := Pressure{CurrentTokens: tc.current, MaxTokens: tc.max}
		if got := p.Level(); got != tc.level {
			t.Errorf("Pressure %d/%d level = %s, want %s", tc.current, tc.max, got, tc.level)
		}
	}

	if !(Pressure{CurrentTokens: 70, MaxTokens: 100}).ShouldCheckpoint() {
		t.Error("Expected checkpoint recommended at 70%")
	}
	if (Pressure{CurrentTokens: 69, MaxTokens: 100}).ShouldCheckpoint() {
		t.Error("Expected no checkpoint below 70%")
	}
}

func TestPressureCallbackFiresOnEveryCrossingAdd(t *testing.T) {
	fired := 0
	m := NewManager(10, t.TempDir(),
		WithPressureThreshold(0.5),
		WithPressureCallback(func(p Pressure) { fired++ }),
	)

	// 40 chars -> 10 tokens -> 100% of max.
	m.Add("aaaa", strings.Repeat("x", 36), TierHot)
	m.Add("bbbb", strings.Repeat("y", 36), TierHot)

	if fired != 2 {
		t.Errorf("Expected callback on each crossing add, fired %d times", fired)
	}
}

func TestPromoteResetsAgeDemoteDoesNot(t *testing.T) {
	m := NewManager(1000, t.TempDir())
	m.Add("k", "v", TierWarm)

	entry := m.entries["k"]
	entry.CreatedAt = time.Now().Add(-time.Hour)
	created := entry.CreatedAt

	m.Demote("k", TierCold)
	if !m.entries["k"].CreatedAt.Equal(created) {
		t.Error("Demote must not reset created_at")
	}

	m.Promote("k", TierHot)
	if m.entries["k"].CreatedAt.Equal(created) {
		t.Error("Promote must reset created_at")
	}
	if m.entries["k"].Tier != TierHot {
		t.Errorf("Expected HOT tier, got %s", m.entries["k"].Tier)
	}
}

func TestDemoteStale(t *testing.T) {
	m := NewManager(1000, t.TempDir())

	m.Add("hot_stale", "v", TierHot)
	m.Add("hot_fresh", "v", TierHot)
	m.Add("warm_stale", "v", TierWarm)
	m.Add("cold_stale", "v", TierCold)

	m.entries["hot_stale"].CreatedAt = time.Now().Add(-10 * time.Minute)
	m.entries["warm_stale"].CreatedAt = time.Now().Add(-time.Hour)
	m.entries["cold_stale"].CreatedAt = time.Now().Add(-48 * time.Hour)

	m.DemoteStale()

	if m.entries["hot_stale"].Tier != TierWarm {
		t.Errorf("Stale HOT entry should demote to WARM, got %s", m.entries["hot_stale"].Tier)
	}
	if m.entries["hot_fresh"].Tier != TierHot {
		t.Errorf("Fresh HOT entry should stay, got %s", m.entries["hot_fresh"].Tier)
	}
	if m.entries["warm_stale"].Tier != TierCold {
		t.Errorf("Stale WARM entry should demote to COLD, got %s", m.entries["warm_stale"].Tier)
	}
	if m.entries["cold_stale"].Tier != TierCold {
		t.Errorf("COLD entries stay COLD, got %s", m.entries["cold_stale"].Tier)
	}
}

func TestCompressTruncatesLongStrings(t *testing.T) {
	m := NewManager(100000, t.TempDir())

	long := strings.Repeat("a", 600)
	m.Add("long", long, TierHot)
	m.Add("short", "brief", TierHot)

	m.Compress()

	value, _ := m.Get("long")
	s, ok := value.(string)
	if !ok {
		t.Fatalf("Expected string value, got %T", value)
	}
	if len(s) != 200+len("... [truncated]") {
		t.Errorf("Truncated length = %d", len(s))
	}
	if !strings.HasSuffix(s, "... [truncated]") {
		t.Error("Expected truncation marker")
	}

	if short, _ := m.Get("short"); short != "brief" {
		t.Errorf("Short value should be untouched, got %v", short)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(100000, dir)

	m.Add("hot_key", "hot_value", TierHot)
	m.Add("warm_key", "warm_value", TierWarm)
	m.Add("cold_key", "cold_value", TierCold)

	checkpoint, err := m.CreateCheckpoint("sess-1", "halfway through parser")
	if err != nil {
		t.Fatalf("CreateCheckpoint failed: %v", err)
	}

	// Tier maps must partition the keys.
	if _, ok := checkpoint.HotContext["hot_key"]; !ok {
		t.Error("hot_key missing from hot map")
	}
	if _, ok := checkpoint.WarmContext["hot_key"]; ok {
		t.Error("hot_key must not appear in warm map")
	}

	paths := m.ListCheckpoints()
	if len(paths) != 1 {
		t.Fatalf("Expected 1 checkpoint on disk, got %d", len(paths))
	}

	restored := NewManager(100000, dir)
	restored.Add("junk", "to be cleared", TierHot)
	if err := restored.RestoreCheckpoint(paths[0]); err != nil {
		t.Fatalf("RestoreCheckpoint failed: %v", err)
	}

	if _, ok := restored.Get("junk"); ok {
		t.Error("Restore must clear existing entries")
	}
	for key, tier := range map[string]Tier{"hot_key": TierHot, "warm_key": TierWarm, "cold_key": TierCold} {
		entry, ok := restored.entries[key]
		if !ok {
			t.Errorf("Key %s missing after restore", key)
			continue
		}
		if entry.Tier != tier {
			t.Errorf("Key %s restored to %s, want %s", key, entry.Tier, tier)
		}
	}
}

func TestRestoreFailureLeavesEntriesIntact(t *testing.T) {
	m := NewManager(1000, t.TempDir())
	m.Add("keep", "me", TierHot)

	if err := m.RestoreCheckpoint("/nonexistent/checkpoint.json"); err == nil {
		t.Fatal("Expected restore error")
	}

	if _, ok := m.Get("keep"); !ok {
		t.Error("Failed restore must not clear entries")
	}
}

func TestCheckpointEviction(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(100000, dir, WithMaxCheckpoints(2))

	m.Add("k", "v", TierHot)

	for i := 0; i < 5; i++ {
		// Distinct session ids keep filenames unique within one second.
		if _, err := m.CreateCheckpoint(fmt.Sprintf("sess-%d", i), "summary"); err != nil {
			t.Fatalf("CreateCheckpoint %d failed: %v", i, err)
		}
	}

	remaining := m.ListCheckpoints()
	if len(remaining) > 2 {
		t.Errorf("Expected at most 2 checkpoints after cleanup, got %d", len(remaining))
	}
}

func TestGetSummary(t *testing.T) {
	m := NewManager(1000, t.TempDir())
	m.Add("a", "1", TierHot)
	m.Add("b", "2", TierWarm)
	m.Add("c", "3", TierCold)

	summary := m.GetSummary()
	if summary.HotCount != 1 || summary.WarmCount != 1 || summary.ColdCount != 1 {
		t.Errorf("Tier counts wrong: %+v", summary)
	}
	if summary.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d", summary.TotalEntries)
	}
	if summary.EstimatedTokens != m.EstimateTokens() {
		t.Errorf("Summary token estimate mismatch")
	}
}

func TestClearTierAndRemove(t *testing.T) {
	m := NewManager(1000, t.TempDir())
	m.Add("a", "1", TierHot)
	m.Add("b", "2", TierHot)
	m.Add("c", "3", TierWarm)

	m.ClearTier(TierHot)
	if len(m.GetTier(TierHot)) != 0 {
		t.Error("ClearTier left hot entries")
	}
	if _, ok := m.Get("c"); !ok {
		t.Error("ClearTier must not touch other tiers")
	}

	m.Remove("c")
	if _, ok := m.Get("c"); ok {
		t.Error("Remove failed")
	}
}
