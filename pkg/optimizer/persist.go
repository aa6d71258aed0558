package optimizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type parameterDoc struct {
	Name         string         `json:"name"`
	CurrentValue float64        `json:"current_value"`
	MinValue     float64        `json:"min_value"`
	MaxValue     float64        `json:"max_value"`
	Step         float64        `json:"step"`
	History      []HistoryEntry `json:"history"`
}

type optimizerDoc struct {
	LearningRate      float64                 `json:"learning_rate"`
	Strategy          string                  `json:"strategy"`
	OptimizationSteps int                     `json:"optimization_steps"`
	Parameters        map[string]parameterDoc `json:"parameters"`
	Outcomes          []Outcome               `json:"outcomes"`
}

// Save writes the optimizer state to a JSON file.
func (o *Optimizer) Save(path string) error {
	doc := optimizerDoc{
		LearningRate:      o.learningRate,
		Strategy:          string(o.strategy),
		OptimizationSteps: o.optimizationSteps,
		Parameters:        make(map[string]parameterDoc, len(o.parameters)),
		Outcomes:          o.outcomes,
	}

	for name, param := range o.parameters {
		doc.Parameters[name] = parameterDoc{
			Name:         param.Name,
			CurrentValue: param.CurrentValue,
			MinValue:     param.Range.Min,
			MaxValue:     param.Range.Max,
			Step:         param.Range.Step,
			History:      param.History,
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create optimizer directory: %w", err)
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal optimizer state: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write optimizer state: %w", err)
	}

	return nil
}

// Load restores an optimizer from a file written by Save.
func Load(path string) (*Optimizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read optimizer state: %w", err)
	}

	doc := optimizerDoc{LearningRate: 0.1, Strategy: string(StrategyHillClimbing)}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal optimizer state: %w", err)
	}

	strategy, err := ParseStrategy(doc.Strategy)
	if err != nil {
		return nil, err
	}

	o := New(doc.LearningRate, strategy)
	o.optimizationSteps = doc.OptimizationSteps

	for name, pd := range doc.Parameters {
		param := &Parameter{
			Name:         pd.Name,
			CurrentValue: pd.CurrentValue,
			Range:        ParameterRange{Min: pd.MinValue, Max: pd.MaxValue, Step: pd.Step},
			History:      pd.History,
		}
		if !param.Range.IsValid(param.CurrentValue) {
			return nil, fmt.Errorf("parameter %s value %v outside range [%v, %v]",
				name, param.CurrentValue, param.Range.Min, param.Range.Max)
		}
		o.parameters[name] = param
	}

	o.outcomes = doc.Outcomes

	return o, nil
}
