// Package contextmem provides tiered session memory with token-pressure
// monitoring and file-backed checkpointing.
package contextmem

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"devloop/pkg/logx"
)

// Tier identifies a memory tier. Entries age out of hotter tiers into colder
// ones; promotion is explicit only.
type Tier string

const (
	// TierHot holds current-task state, stale after 3 minutes.
	TierHot Tier = "hot"
	// TierWarm holds recent decisions, stale after 30 minutes.
	TierWarm Tier = "warm"
	// TierCold holds archived state, stale after 24 hours.
	TierCold Tier = "cold"
)

// MaxAge returns the tier's staleness horizon.
func (t Tier) MaxAge() time.Duration {
	switch t {
	case TierHot:
		return 180 * time.Second
	case TierWarm:
		return 1800 * time.Second
	case TierCold:
		return 86400 * time.Second
	default:
		return 0
	}
}

// PressureLevel classifies context pressure.
type PressureLevel string

const (
	PressureLow      PressureLevel = "low"
	PressureMedium   PressureLevel = "medium"
	PressureHigh     PressureLevel = "high"
	PressureCritical PressureLevel = "critical"
)

// Pressure represents current context pressure state.
type Pressure struct {
	CurrentTokens int
	MaxTokens     int
}

// Percentage returns context usage as a percentage of the maximum.
func (p Pressure) Percentage() float64 {
	if p.MaxTokens == 0 {
		return 0
	}
	return float64(p.CurrentTokens) / float64(p.MaxTokens) * 100
}

// Level maps the percentage onto the pressure scale.
func (p Pressure) Level() PressureLevel {
	pct := p.Percentage()
	switch {
	case pct >= 90:
		return PressureCritical
	case pct >= 70:
		return PressureHigh
	case pct >= 30:
		return PressureMedium
	default:
		return PressureLow
	}
}

// ShouldCheckpoint reports whether a checkpoint is recommended.
func (p Pressure) ShouldCheckpoint() bool {
	return p.Percentage() >= 70
}

// Entry is a single context entry with tier metadata.
type Entry struct {
	Key       string
	Value     any
	Tier      Tier
	CreatedAt time.Time
}

// Age returns the entry age.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// IsStale reports whether the entry outlived its tier.
func (e *Entry) IsStale() bool {
	return e.Age() > e.Tier.MaxAge()
}

// PressureCallback observes threshold crossings. It fires on every Add that
// lands at or above the threshold; consumers debounce if they need to.
type PressureCallback func(Pressure)

// Manager owns the tiered entries and the checkpoint directory.
type Manager struct {
	maxTokens         int
	checkpointDir     string
	pressureCallback  PressureCallback
	pressureThreshold float64
	maxCheckpoints    int
	entries           map[string]*Entry
	logger            *logx.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPressureCallback installs the pressure callback.
func WithPressureCallback(cb PressureCallback) Option {
	return func(m *Manager) { m.pressureCallback = cb }
}

// WithPressureThreshold sets the callback threshold as a 0-1 fraction.
func WithPressureThreshold(threshold float64) Option {
	return func(m *Manager) { m.pressureThreshold = threshold }
}

// WithMaxCheckpoints bounds the checkpoint directory.
func WithMaxCheckpoints(n int) Option {
	return func(m *Manager) { m.maxCheckpoints = n }
}

// NewManager creates a context memory manager. checkpointDir may not exist
// yet; it is created on first checkpoint.
func NewManager(maxTokens int, checkpointDir string, opts ...Option) *Manager {
	m := &Manager{
		maxTokens:         maxTokens,
		checkpointDir:     checkpointDir,
		pressureThreshold: 0.7,
		maxCheckpoints:    10,
		entries:           make(map[string]*Entry),
		logger:            logx.NewLogger("contextmem"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add inserts or replaces an entry, then checks pressure.
func (m *Manager) Add(key string, value any, tier Tier) {
	m.entries[key] = &Entry{
		Key:       key,
		Value:     value,
		Tier:      tier,
		CreatedAt: time.Now(),
	}
	m.checkPressure()
}

// Get returns the stored value, or nil and false when absent.
func (m *Manager) Get(key string) (any, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Remove deletes an entry if present.
func (m *Manager) Remove(key string) {
	delete(m.entries, key)
}

// ClearTier removes every entry in a tier.
func (m *Manager) ClearTier(tier Tier) {
	for key, entry := range m.entries {
		if entry.Tier == tier {
			delete(m.entries, key)
		}
	}
}

// GetTier returns all entries in a tier.
func (m *Manager) GetTier(tier Tier) []*Entry {
	var out []*Entry
	for _, entry := range m.entries {
		if entry.Tier == tier {
			out = append(out, entry)
		}
	}
	return out
}

// Promote moves an entry to a hotter tier and resets its age.
func (m *Manager) Promote(key string, target Tier) {
	if entry, ok := m.entries[key]; ok {
		entry.Tier = target
		entry.CreatedAt = time.Now()
	}
}

// Demote moves an entry to a colder tier without touching its age.
func (m *Manager) Demote(key string, target Tier) {
	if entry, ok := m.entries[key]; ok {
		entry.Tier = target
	}
}

// DemoteStale demotes every stale entry one tier; COLD entries stay put.
func (m *Manager) DemoteStale() {
	for _, entry := range m.entries {
		if !entry.IsStale() {
			continue
		}
		switch entry.Tier {
		case TierHot:
			entry.Tier = TierWarm
		case TierWarm:
			entry.Tier = TierCold
		}
	}
}

// EstimateTokens approximates total token usage at ~4 characters per token.
func (m *Manager) EstimateTokens() int {
	totalChars := 0
	for _, entry := range m.entries {
		totalChars += len(entry.Key) + len(fmt.Sprintf("%v", entry.Value))
	}
	return totalChars / 4
}

// Pressure returns the current pressure reading.
func (m *Manager) Pressure() Pressure {
	return Pressure{
		CurrentTokens: m.EstimateTokens(),
		MaxTokens:     m.maxTokens,
	}
}

func (m *Manager) checkPressure() {
	pressure := m.Pressure()
	if m.pressureCallback != nil && pressure.Percentage() >= m.pressureThreshold*100 {
		m.pressureCallback(pressure)
	}
}

// ShouldCheckpoint reports whether pressure warrants a checkpoint now.
func (m *Manager) ShouldCheckpoint() bool {
	return m.Pressure().ShouldCheckpoint()
}

// Compress truncates string values longer than 500 characters down to their
// first 200, appending a truncation marker.
func (m *Manager) Compress() {
	for _, entry := range m.entries {
		if s, ok := entry.Value.(string); ok && len(s) > 500 {
			entry.Value = s[:200] + "... [truncated]"
		}
	}
}

// Summary describes the current memory state.
type Summary struct {
	HotCount        int           `json:"hot_count"`
	WarmCount       int           `json:"warm_count"`
	ColdCount       int           `json:"cold_count"`
	TotalEntries    int           `json:"total_entries"`
	EstimatedTokens int           `json:"estimated_tokens"`
	Pressure        float64       `json:"pressure"`
	PressureLevel   PressureLevel `json:"pressure_level"`
}

// GetSummary returns a snapshot of the current memory state.
func (m *Manager) GetSummary() Summary {
	pressure := m.Pressure()
	return Summary{
		HotCount:        len(m.GetTier(TierHot)),
		WarmCount:       len(m.GetTier(TierWarm)),
		ColdCount:       len(m.GetTier(TierCold)),
		TotalEntries:    len(m.entries),
		EstimatedTokens: m.EstimateTokens(),
		Pressure:        pressure.Percentage(),
		PressureLevel:   pressure.Level(),
	}
}

// ListCheckpoints returns checkpoint file paths, newest first by mtime.
func (m *Manager) ListCheckpoints() []string {
	matches, err := filepath.Glob(filepath.Join(m.checkpointDir, "checkpoint-*.json"))
	if err != nil || len(matches) == 0 {
		return nil
	}

	type stamped struct {
		path  string
		mtime time.Time
	}
	var files []stamped
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, stamped{path: path, mtime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.After(files[j].mtime)
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out
}

func (m *Manager) cleanupOldCheckpoints() {
	checkpoints := m.ListCheckpoints()
	for _, old := range checkpoints[min(m.maxCheckpoints, len(checkpoints)):] {
		if err := os.Remove(old); err != nil {
			m.logger.Warn("Failed to remove old checkpoint %s: %v", old, err)
		}
	}
}
