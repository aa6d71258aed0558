// Package metrics provides the outcome sink: typed metric series, counters,
// and session-level rollups, with JSON snapshots and a Prometheus surface.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Type identifies a tracked metric.
type Type string

const (
	TypeIterations        Type = "iterations"
	TypeTokensUsed        Type = "tokens_used"
	TypeFeaturesCompleted Type = "features_completed"
	TypeFeaturesStarted   Type = "features_started"
	TypeTestsWritten      Type = "tests_written"
	TypeTestsPassed       Type = "tests_passed"
	TypeTestsFailed       Type = "tests_failed"
	TypeBugsFixed         Type = "bugs_fixed"
	TypeErrors            Type = "errors_encountered"
	TypeTimeElapsed       Type = "time_elapsed"
	TypeCoverage          Type = "coverage"
	TypeFilesChanged      Type = "files_changed"
)

// ParseType validates a metric type string.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeIterations, TypeTokensUsed, TypeFeaturesCompleted, TypeFeaturesStarted,
		TypeTestsWritten, TypeTestsPassed, TypeTestsFailed, TypeBugsFixed,
		TypeErrors, TypeTimeElapsed, TypeCoverage, TypeFilesChanged:
		return Type(s), true
	default:
		return "", false
	}
}

// Value is a single metric measurement.
type Value struct {
	Value     float64        `json:"value"`
	Timestamp float64        `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Collector aggregates metric series and counters.
type Collector struct {
	metrics  map[Type][]Value
	counters map[Type]int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		metrics:  make(map[Type][]Value),
		counters: make(map[Type]int),
	}
}

// Record appends a measurement to a metric series.
func (c *Collector) Record(metricType Type, value float64, metadata map[string]any) {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	c.metrics[metricType] = append(c.metrics[metricType], Value{
		Value:     value,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Metadata:  metadata,
	})
}

// Increment bumps a counter metric.
func (c *Collector) Increment(metricType Type, amount int) {
	c.counters[metricType] += amount
}

// GetValues returns the series for a metric type.
func (c *Collector) GetValues(metricType Type) []Value {
	return c.metrics[metricType]
}

// GetLatest returns the most recent value, or false when the series is empty.
func (c *Collector) GetLatest(metricType Type) (Value, bool) {
	values := c.metrics[metricType]
	if len(values) == 0 {
		return Value{}, false
	}
	return values[len(values)-1], true
}

// GetSum totals a metric series.
func (c *Collector) GetSum(metricType Type) float64 {
	sum := 0.0
	for _, v := range c.metrics[metricType] {
		sum += v.Value
	}
	return sum
}

// GetAverage averages a metric series; empty series average to 0.
func (c *Collector) GetAverage(metricType Type) float64 {
	values := c.metrics[metricType]
	if len(values) == 0 {
		return 0.0
	}
	return c.GetSum(metricType) / float64(len(values))
}

// GetCount returns a counter value.
func (c *Collector) GetCount(metricType Type) int {
	return c.counters[metricType]
}

type collectorDoc struct {
	Metrics  map[string][]Value `json:"metrics"`
	Counters map[string]int     `json:"counters"`
}

func (c *Collector) toDoc() collectorDoc {
	doc := collectorDoc{
		Metrics:  make(map[string][]Value, len(c.metrics)),
		Counters: make(map[string]int, len(c.counters)),
	}
	for mt, values := range c.metrics {
		doc.Metrics[string(mt)] = values
	}
	for mt, count := range c.counters {
		doc.Counters[string(mt)] = count
	}
	return doc
}

func (c *Collector) fromDoc(doc collectorDoc) {
	for name, values := range doc.Metrics {
		if mt, ok := ParseType(name); ok {
			c.metrics[mt] = append(c.metrics[mt], values...)
		}
	}
	for name, count := range doc.Counters {
		if mt, ok := ParseType(name); ok {
			c.counters[mt] = count
		}
	}
}

// ExportJSON renders the snapshot document.
func (c *Collector) ExportJSON() ([]byte, error) {
	doc := c.toDoc()
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return data, nil
}

// Save writes the snapshot to a file.
func (c *Collector) Save(path string) error {
	data, err := c.ExportJSON()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics snapshot: %w", err)
	}

	return nil
}

// Load restores a collector from a snapshot file. Unknown metric names are
// skipped.
func Load(path string) (*Collector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics snapshot: %w", err)
	}

	var doc collectorDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics snapshot: %w", err)
	}

	collector := NewCollector()
	collector.fromDoc(doc)
	return collector, nil
}
