// Package optimizer provides the bounded self-tuning loop: it records
// outcomes and nudges registered parameters (iteration limits, timeouts,
// retry caps) toward better ones under a chosen strategy. Every assignment
// passes through the parameter's range clamp.
package optimizer

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"devloop/pkg/logx"
)

// OutcomeType classifies a recorded outcome.
type OutcomeType string

const (
	OutcomeSuccess OutcomeType = "success"
	OutcomeFailure OutcomeType = "failure"
	OutcomePartial OutcomeType = "partial"
	OutcomeTimeout OutcomeType = "timeout"
)

// ParseOutcomeType validates an outcome type string.
func ParseOutcomeType(s string) (OutcomeType, error) {
	switch OutcomeType(s) {
	case OutcomeSuccess, OutcomeFailure, OutcomePartial, OutcomeTimeout:
		return OutcomeType(s), nil
	default:
		return "", fmt.Errorf("unknown outcome type: %s", s)
	}
}

// Strategy selects how recommendations are applied.
type Strategy string

const (
	StrategyHillClimbing       Strategy = "hill_climbing"
	StrategySimulatedAnnealing Strategy = "simulated_annealing"
	StrategyRandomSearch       Strategy = "random_search"
)

// ParseStrategy validates a strategy string.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyHillClimbing, StrategySimulatedAnnealing, StrategyRandomSearch:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown optimization strategy: %s", s)
	}
}

// Outcome is one recorded result.
type Outcome struct {
	OutcomeType OutcomeType    `json:"outcome_type"`
	MetricName  string         `json:"metric_name"`
	Value       float64        `json:"value"`
	Context     map[string]any `json:"context"`
	Timestamp   float64        `json:"timestamp"`
}

// ParameterRange is the valid range for a parameter.
type ParameterRange struct {
	Min  float64 `json:"min_value"`
	Max  float64 `json:"max_value"`
	Step float64 `json:"step"`
}

// IsValid reports whether the value lies in range.
func (r ParameterRange) IsValid(value float64) bool {
	return r.Min <= value && value <= r.Max
}

// Clamp bounds the value to the range.
func (r ParameterRange) Clamp(value float64) float64 {
	if value < r.Min {
		return r.Min
	}
	if value > r.Max {
		return r.Max
	}
	return value
}

// HistoryEntry is one point in a parameter's append-only history.
type HistoryEntry struct {
	Value     float64 `json:"value"`
	Timestamp float64 `json:"timestamp"`
}

// Parameter is a tunable value with a clamped range and append-only history.
type Parameter struct {
	Name         string         `json:"name"`
	CurrentValue float64        `json:"current_value"`
	Range        ParameterRange `json:"range"`
	History      []HistoryEntry `json:"history"`
}

// Adjust clamps and assigns a new value, appending to history.
func (p *Parameter) Adjust(newValue float64) {
	p.CurrentValue = p.Range.Clamp(newValue)
	p.History = append(p.History, HistoryEntry{
		Value:     p.CurrentValue,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
}

// Recommendation is a suggested parameter change.
type Recommendation struct {
	Action         string  `json:"action"`
	Reason         string  `json:"reason"`
	SuggestedValue float64 `json:"suggested_value"`
}

// Optimizer tunes registered parameters from recorded outcomes.
type Optimizer struct {
	learningRate      float64
	strategy          Strategy
	parameters        map[string]*Parameter
	outcomes          []Outcome
	optimizationSteps int

	rng    *rand.Rand
	logger *logx.Logger
}

// New creates an optimizer with the given learning rate and strategy.
func New(learningRate float64, strategy Strategy) *Optimizer {
	return &Optimizer{
		learningRate: learningRate,
		strategy:     strategy,
		parameters:   make(map[string]*Parameter),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:       logx.NewLogger("optimizer"),
	}
}

// RegisterParameter adds a tunable parameter; the initial value opens its
// history.
func (o *Optimizer) RegisterParameter(name string, initial, minValue, maxValue, step float64) {
	param := &Parameter{
		Name:         name,
		CurrentValue: initial,
		Range:        ParameterRange{Min: minValue, Max: maxValue, Step: step},
	}
	param.History = append(param.History, HistoryEntry{
		Value:     initial,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
	o.parameters[name] = param
}

// GetParameter returns a registered parameter, or nil.
func (o *Optimizer) GetParameter(name string) *Parameter {
	return o.parameters[name]
}

// RecordOutcome stores an outcome for later optimization steps.
func (o *Optimizer) RecordOutcome(outcomeType OutcomeType, metricName string, value float64, context map[string]any) {
	if context == nil {
		context = make(map[string]any)
	}
	o.outcomes = append(o.outcomes, Outcome{
		OutcomeType: outcomeType,
		MetricName:  metricName,
		Value:       value,
		Context:     context,
		Timestamp:   float64(time.Now().UnixNano()) / 1e9,
	})
}

// SuccessRate over all recorded outcomes; empty history counts as 1.0.
func (o *Optimizer) SuccessRate() float64 {
	if len(o.outcomes) == 0 {
		return 1.0
	}
	successes := 0
	for _, outcome := range o.outcomes {
		if outcome.OutcomeType == OutcomeSuccess {
			successes++
		}
	}
	return float64(successes) / float64(len(o.outcomes))
}

// GetRecommendations inspects the last 20 outcomes and suggests changes:
// timeout parameters grow 1.5x under a >30% timeout rate, retry parameters
// grow one step under a >30% failure rate, iteration parameters shrink 10%
// when the success rate tops 90%.
func (o *Optimizer) GetRecommendations() map[string]Recommendation {
	recommendations := make(map[string]Recommendation)

	recent := o.outcomes
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	if len(recent) == 0 {
		return recommendations
	}

	successCount, timeoutCount, failureCount := 0, 0, 0
	for _, outcome := range recent {
		switch outcome.OutcomeType {
		case OutcomeSuccess:
			successCount++
		case OutcomeTimeout:
			timeoutCount++
		case OutcomeFailure:
			failureCount++
		}
	}
	successRate := float64(successCount) / float64(len(recent))

	for name, param := range o.parameters {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "timeout") && float64(timeoutCount) > float64(len(recent))*0.3:
			suggested := param.CurrentValue * 1.5
			if suggested > param.Range.Max {
				suggested = param.Range.Max
			}
			recommendations[name] = Recommendation{
				Action:         "increase",
				Reason:         "High timeout rate",
				SuggestedValue: suggested,
			}
		case strings.Contains(lower, "retry") && float64(failureCount) > float64(len(recent))*0.3:
			suggested := param.CurrentValue + param.Range.Step
			if suggested > param.Range.Max {
				suggested = param.Range.Max
			}
			recommendations[name] = Recommendation{
				Action:         "increase",
				Reason:         "High failure rate",
				SuggestedValue: suggested,
			}
		case strings.Contains(lower, "iteration") && successRate > 0.9:
			suggested := param.CurrentValue * 0.9
			if suggested < param.Range.Min {
				suggested = param.Range.Min
			}
			recommendations[name] = Recommendation{
				Action:         "decrease",
				Reason:         "High success rate, can be more efficient",
				SuggestedValue: suggested,
			}
		}
	}

	return recommendations
}

// OptimizeStep applies the current recommendations under the configured
// strategy.
func (o *Optimizer) OptimizeStep() {
	o.optimizationSteps++
	recommendations := o.GetRecommendations()

	switch o.strategy {
	case StrategyHillClimbing:
		for name, rec := range recommendations {
			if param := o.parameters[name]; param != nil {
				diff := rec.SuggestedValue - param.CurrentValue
				param.Adjust(param.CurrentValue + diff*o.learningRate)
			}
		}

	case StrategyRandomSearch:
		for _, param := range o.parameters {
			if o.rng.Float64() < 0.2 {
				direction := 1.0
				if o.rng.Intn(2) == 0 {
					direction = -1.0
				}
				param.Adjust(param.CurrentValue + direction*param.Range.Step)
			}
		}

	case StrategySimulatedAnnealing:
		// Temperature decreases as outcomes accumulate (more certainty).
		temperature := 1.0 - float64(len(o.outcomes))/100
		if temperature < 0.1 {
			temperature = 0.1
		}
		for name, rec := range recommendations {
			param := o.parameters[name]
			if param == nil {
				continue
			}
			diff := rec.SuggestedValue - param.CurrentValue
			if diff > 0 || o.rng.Float64() < temperature {
				param.Adjust(param.CurrentValue + diff*o.learningRate)
			}
		}
	}
}

// GetCorrelations reports a naive parameter/outcome alignment: the recent
// success fraction signed by the parameter's overall trend.
func (o *Optimizer) GetCorrelations() map[string]float64 {
	correlations := make(map[string]float64)

	for name, param := range o.parameters {
		if len(param.History) < 2 || len(o.outcomes) < 2 {
			continue
		}

		trend := param.History[len(param.History)-1].Value - param.History[0].Value
		if trend == 0 {
			continue
		}

		recent := o.outcomes
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		recentSuccesses := 0
		for _, outcome := range recent {
			if outcome.OutcomeType == OutcomeSuccess {
				recentSuccesses++
			}
		}

		correlation := float64(recentSuccesses) / 5
		if trend < 0 {
			correlation = -correlation
		}
		correlations[name] = correlation
	}

	return correlations
}

// SetLearningRate updates the learning rate.
func (o *Optimizer) SetLearningRate(rate float64) {
	o.learningRate = rate
}

// SetStrategy updates the optimization strategy.
func (o *Optimizer) SetStrategy(strategy Strategy) {
	o.strategy = strategy
}

// ParameterSummary is one parameter's slice of the summary.
type ParameterSummary struct {
	CurrentValue  float64 `json:"current_value"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	HistoryLength int     `json:"history_length"`
}

// Summary is the optimizer rollup.
type Summary struct {
	TotalOutcomes     int                         `json:"total_outcomes"`
	SuccessRate       float64                     `json:"success_rate"`
	LearningRate      float64                     `json:"learning_rate"`
	Strategy          Strategy                    `json:"strategy"`
	OptimizationSteps int                         `json:"optimization_steps"`
	Parameters        map[string]ParameterSummary `json:"parameters"`
}

// GetSummary returns the rollup.
func (o *Optimizer) GetSummary() Summary {
	params := make(map[string]ParameterSummary, len(o.parameters))
	for name, param := range o.parameters {
		params[name] = ParameterSummary{
			CurrentValue:  param.CurrentValue,
			Min:           param.Range.Min,
			Max:           param.Range.Max,
			HistoryLength: len(param.History),
		}
	}

	return Summary{
		TotalOutcomes:     len(o.outcomes),
		SuccessRate:       o.SuccessRate(),
		LearningRate:      o.learningRate,
		Strategy:          o.strategy,
		OptimizationSteps: o.optimizationSteps,
		Parameters:        params,
	}
}
