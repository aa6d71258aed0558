// Package session wires the control-plane components into the iteration data
// flow: the loop controller advances, the dependency engine yields ready
// work, the dispatcher assigns it to agents over the bus, and results feed
// metrics, the flaky detector, and the circuit breakers, which together
// decide whether to continue. The self-optimizer reads outcomes on a cadence
// and tunes controller parameters.
package session

import (
	"time"

	"github.com/google/uuid"

	"devloop/pkg/breaker"
	"devloop/pkg/bus"
	"devloop/pkg/config"
	"devloop/pkg/contextmem"
	"devloop/pkg/depgraph"
	"devloop/pkg/dispatch"
	"devloop/pkg/errorsig"
	"devloop/pkg/flaky"
	"devloop/pkg/logx"
	"devloop/pkg/loopctl"
	"devloop/pkg/metrics"
	"devloop/pkg/optimizer"
	"devloop/pkg/proto"
	"devloop/pkg/tokens"
)

// Coordinator drives one autonomous-development session. All operations are
// synchronous; the caller owns pacing via RecommendedDelay.
type Coordinator struct {
	sessionID string
	cfg       config.Config

	graph      *depgraph.Graph
	dispatcher *dispatch.Dispatcher
	msgBus     *bus.MessageBus
	memory     *contextmem.Manager
	controller *loopctl.Controller
	breakers   *breaker.MultiLevel
	detector   *flaky.Detector
	analyzer   *flaky.Analyzer
	progress   *ProgressTracker
	optimizer  *optimizer.Optimizer
	session    *metrics.SessionMetrics
	classifier *errorsig.Classifier
	counter    *tokens.Counter

	recorder  *metrics.PrometheusRecorder
	submitted map[string]struct{}
	tokenUsed int
	logger    *logx.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPrometheusRecorder mirrors activity onto Prometheus metrics.
func WithPrometheusRecorder(recorder *metrics.PrometheusRecorder) Option {
	return func(c *Coordinator) { c.recorder = recorder }
}

// NewCoordinator builds a session over the given feature graph. Complexity
// for the adaptive iteration limit is derived from the graph shape: node
// count as file count and critical-path length as dependency depth.
func NewCoordinator(cfg config.Config, graph *depgraph.Graph, opts ...Option) *Coordinator {
	complexity := loopctl.ComplexityFromMetrics(
		graph.NodeCount(),
		0,
		len(graph.FindCriticalPath()),
	)

	controller := loopctl.NewController(complexity)
	controller.Config.BaseIterations = cfg.Loop.BaseIterations
	controller.Config.MinIterations = cfg.Loop.MinIterations
	controller.Config.MaxIterations = cfg.Loop.MaxIterations
	controller.State.StuckThreshold = cfg.Loop.StuckThreshold
	controller.State.NoProgressThreshold = cfg.Loop.NoProgressThreshold
	controller.Backoff = loopctl.Backoff{
		BaseDelay:  time.Duration(cfg.Loop.BackoffBaseSeconds * float64(time.Second)),
		Multiplier: cfg.Loop.BackoffMultiplier,
		MaxDelay:   time.Duration(cfg.Loop.BackoffMaxSeconds * float64(time.Second)),
		Jitter:     cfg.Loop.BackoffJitter,
	}

	breakers := breaker.NewMultiLevel(
		cfg.Breakers.MaxTokens,
		cfg.Breakers.NoProgressThreshold,
		time.Duration(cfg.Breakers.MaxDurationSeconds*float64(time.Second)),
		cfg.Breakers.MinCoverage,
	)
	breakers.Token.ThresholdPct = cfg.Breakers.TokenThresholdPct
	breakers.Token.WarningPct = cfg.Breakers.TokenWarningPct
	breakers.Progress.OutputDeclineThreshold = cfg.Breakers.OutputDeclinePct
	breakers.Quality.DegradationThreshold = cfg.Breakers.DegradationWindow
	breakers.Quality.MaxLintErrors = cfg.Breakers.MaxLintErrors
	breakers.Time.WarningPct = cfg.Breakers.TimeWarningPct

	sessionID := uuid.NewString()

	c := &Coordinator{
		sessionID:  sessionID,
		cfg:        cfg,
		graph:      graph,
		dispatcher: dispatch.NewDispatcher(cfg.Dispatcher.NumAgents),
		msgBus:     bus.NewMessageBus(),
		controller: controller,
		breakers:   breakers,
		detector: flaky.NewDetector(flaky.Settings{
			FlakinessThreshold: cfg.Flaky.FlakinessThreshold,
			MinRuns:            cfg.Flaky.MinRuns,
			AutoQuarantine:     cfg.Flaky.AutoQuarantine,
			RetentionDays:      cfg.Flaky.RetentionDays,
		}),
		progress:   NewProgressTracker(),
		optimizer:  optimizer.New(cfg.Optimizer.LearningRate, optimizer.Strategy(cfg.Optimizer.Strategy)),
		session:    metrics.NewSessionMetrics(sessionID),
		classifier: errorsig.NewClassifier(),
		submitted:  make(map[string]struct{}),
		logger:     logx.NewLogger("session"),
	}

	c.analyzer = flaky.NewAnalyzer()
	c.analyzer.MinCoverage = float64(cfg.Breakers.MinCoverage)
	c.analyzer.Coverage.Threshold = float64(cfg.Breakers.MinCoverage)

	c.memory = contextmem.NewManager(
		cfg.Memory.MaxTokens,
		cfg.Memory.CheckpointDir,
		contextmem.WithPressureThreshold(cfg.Memory.PressureThreshold),
		contextmem.WithMaxCheckpoints(cfg.Memory.MaxCheckpoints),
		contextmem.WithPressureCallback(c.onPressure),
	)

	if counter, err := tokens.NewCounter(); err == nil {
		c.counter = counter
	} else {
		c.logger.Warn("Tokenizer unavailable, using character estimate: %v", err)
	}

	c.optimizer.RegisterParameter("max_iterations",
		float64(controller.IterationLimit()),
		float64(cfg.Loop.MinIterations),
		float64(cfg.Loop.MaxIterations), 10)
	c.optimizer.RegisterParameter("task_timeout_seconds", 120, 10, 600, 10)
	c.optimizer.RegisterParameter("retry_limit", 3, 1, 10, 1)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SessionID returns the session identifier.
func (c *Coordinator) SessionID() string { return c.sessionID }

// Graph returns the feature graph.
func (c *Coordinator) Graph() *depgraph.Graph { return c.graph }

// Dispatcher returns the task dispatcher.
func (c *Coordinator) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// Bus returns the message bus.
func (c *Coordinator) Bus() *bus.MessageBus { return c.msgBus }

// Memory returns the context memory manager.
func (c *Coordinator) Memory() *contextmem.Manager { return c.memory }

// Controller returns the loop controller.
func (c *Coordinator) Controller() *loopctl.Controller { return c.controller }

// Breakers returns the composite circuit breaker.
func (c *Coordinator) Breakers() *breaker.MultiLevel { return c.breakers }

// Detector returns the flaky test detector.
func (c *Coordinator) Detector() *flaky.Detector { return c.detector }

// TestAnalyzer returns the test pyramid and coverage trend analyzer.
func (c *Coordinator) TestAnalyzer() *flaky.Analyzer { return c.analyzer }

// Progress returns the task progress tracker.
func (c *Coordinator) Progress() *ProgressTracker { return c.progress }

// Optimizer returns the self-optimizer.
func (c *Coordinator) Optimizer() *optimizer.Optimizer { return c.optimizer }

// Metrics returns the session metrics.
func (c *Coordinator) Metrics() *metrics.SessionMetrics { return c.session }

// taskPriority maps a feature's int priority (lower = higher) onto the task
// priority scale.
func taskPriority(featurePriority int) proto.Priority {
	switch {
	case featurePriority <= 1:
		return proto.PriorityCritical
	case featurePriority <= 3:
		return proto.PriorityHigh
	case featurePriority <= 10:
		return proto.PriorityNormal
	default:
		return proto.PriorityLow
	}
}

// BeginIteration advances the loop one tick: ready features become tasks,
// idle agents receive assignments, and assignment messages are delivered on
// the bus. Returns the number of tasks assigned.
func (c *Coordinator) BeginIteration() int {
	c.controller.Tick()
	c.session.Collector.Increment(metrics.TypeIterations, 1)
	if c.recorder != nil {
		c.recorder.ObserveIteration(c.sessionID)
	}

	for _, feature := range c.graph.GetReadyFeatures() {
		if _, done := c.submitted[feature.ID]; done {
			continue
		}
		c.submitted[feature.ID] = struct{}{}

		task := dispatch.NewTask(feature.ID, feature.Description, taskPriority(feature.Priority))
		task.Dependencies = append([]string(nil), feature.Dependencies...)
		c.dispatcher.Submit(task)
		c.session.RecordFeatureStarted(feature.ID)

		if c.progress.GetProgress(feature.ID) == nil {
			tracked := c.progress.Track(feature.ID, feature.Description)
			tracked.Estimate = &EffortEstimate{
				Value:      float64(feature.EffortEstimate),
				Unit:       UnitStoryPoints,
				Confidence: 0.5,
			}
		}
	}

	assigned := c.dispatcher.AssignTasks()

	for _, agent := range c.dispatcher.Agents() {
		if agent.Status != dispatch.AgentBusy || agent.CurrentTask == nil {
			continue
		}
		if feature, ok := c.graph.GetFeature(agent.CurrentTask.TaskID); ok &&
			feature.Status != depgraph.StatusInProgress {
			feature.Status = depgraph.StatusInProgress

			if tracked := c.progress.GetProgress(feature.ID); tracked != nil {
				tracked.SetPhase(PhaseInProgress)
				tracked.StartTimer()
			}

			msg := proto.NewMessage(proto.MsgTypeTaskAssignment, bus.OrchestratorID, agent.AgentID)
			msg.Priority = agent.CurrentTask.Priority
			msg.SetPayload(proto.KeyTaskID, agent.CurrentTask.TaskID)
			c.msgBus.Publish(msg)
		}
	}

	delivered := c.msgBus.Deliver()
	if c.recorder != nil {
		c.recorder.AddBusDeliveries(delivered)
	}

	return assigned
}

// CompleteTask applies one task result: the dispatcher completes and
// unblocks, the feature flips to complete or back to pending, and metrics,
// breakers, classifier, and optimizer all observe the outcome.
func (c *Coordinator) CompleteTask(agentID string, success bool, output, errMsg string) *dispatch.WorkResult {
	result := c.dispatcher.CompleteTask(agentID, success, output, errMsg)
	if result == nil {
		return nil
	}

	if output != "" {
		c.tokenUsed += c.countTokens(output)
	}

	if feature, ok := c.graph.GetFeature(result.TaskID); ok {
		if success {
			feature.Status = depgraph.StatusComplete
			feature.Passes = true
			c.session.RecordFeatureCompleted(feature.ID)
		} else {
			// Failed features stay eligible for resubmission.
			feature.Status = depgraph.StatusPending
			delete(c.submitted, feature.ID)
		}
	}

	if tracked := c.progress.GetProgress(result.TaskID); tracked != nil {
		tracked.StopTimer()
		if success {
			c.progress.Complete(result.TaskID)
		} else {
			tracked.SetPhase(PhaseNotStarted)
		}
	}

	outcomeType := optimizer.OutcomeSuccess
	if !success {
		outcomeType = optimizer.OutcomeFailure
		classification := c.classifier.Classify(errMsg, false)
		c.classifier.RecordError(errMsg)
		c.session.RecordError(classification.Kind.String())
		if classification.ShouldEscalate {
			c.logger.Warn("Error signature past escalation threshold: %s", classification.Kind)
		}
	}
	c.optimizer.RecordOutcome(outcomeType, "task_duration_ms", result.DurationMS, map[string]any{
		"task_id": result.TaskID,
	})

	if c.recorder != nil {
		c.recorder.ObserveTask(c.sessionID, agentID, success,
			time.Duration(result.DurationMS*float64(time.Millisecond)))
	}

	return result
}

// RecordIterationResult feeds one iteration's progress into the controller
// and the progress breaker, amending the iteration history record.
func (c *Coordinator) RecordIterationResult(filesChanged, testsPassed int, errMsg string) {
	if errMsg != "" {
		c.controller.RecordError(errMsg)
	}
	c.controller.RecordProgress(filesChanged, testsPassed)
	c.breakers.RecordProgress(filesChanged, testsPassed)

	c.session.Collector.Record(metrics.TypeFilesChanged, float64(filesChanged), nil)
	c.session.Collector.Record(metrics.TypeTestsPassed, float64(testsPassed), nil)
}

// RecordTestOutput parses a test run's output: every result line feeds the
// flaky detector, the pass/fail totals feed the quality breaker, and any
// coverage TOTAL line feeds the coverage warning.
func (c *Coordinator) RecordTestOutput(output string) {
	c.detector.ParsePytestOutput(output)
	c.analyzer.AnalyzeOutput(output)

	passed, failed := countResults(output)
	if passed+failed > 0 {
		c.breakers.RecordTestResult(passed, failed)
	}

	if coverage, ok := breaker.ParseCoverage(output); ok {
		c.breakers.Quality.RecordCoverage(coverage)
		c.analyzer.Coverage.Record(coverage)
		c.session.Collector.Record(metrics.TypeCoverage, coverage, nil)
	}

	if c.recorder != nil {
		c.recorder.SetQuarantineSize(len(c.detector.GetQuarantinedTests()))
	}
}

// TokensUsed returns counted output tokens plus the context memory estimate.
func (c *Coordinator) TokensUsed() int {
	return c.tokenUsed + c.memory.EstimateTokens()
}

func (c *Coordinator) countTokens(text string) int {
	if c.counter != nil {
		return c.counter.CountTokens(text)
	}
	return tokens.Estimate(text)
}

// ShouldStop consults the circuit breakers first (OPEN is a cancellation
// signal for the controller), then the controller's own stop predicates.
func (c *Coordinator) ShouldStop() (bool, string) {
	result := c.breakers.Check(c.TokensUsed())
	if result.IsTripped() {
		if c.recorder != nil {
			c.recorder.ObserveBreakerTrip(c.sessionID, result.Level.String())
		}
		return true, result.Reason
	}

	if c.controller.ShouldStop() {
		return true, c.controller.StopReason()
	}

	return false, ""
}

// RecommendedDelay returns the controller's backoff for the caller to honor.
func (c *Coordinator) RecommendedDelay() time.Duration {
	return c.controller.RecommendedDelay()
}

// OptimizeIfDue runs one optimizer step every configured cadence of
// iterations and pushes the tuned iteration limit back into the controller.
func (c *Coordinator) OptimizeIfDue() {
	if c.controller.State.Iteration == 0 || c.controller.State.Iteration%c.cfg.Optimizer.Cadence != 0 {
		return
	}

	c.optimizer.OptimizeStep()

	if param := c.optimizer.GetParameter("max_iterations"); param != nil {
		c.controller.Config.MaxIterations = int(param.CurrentValue)
	}
}

func (c *Coordinator) onPressure(p contextmem.Pressure) {
	if c.recorder != nil {
		c.recorder.SetContextPressure(c.sessionID, p.Percentage())
	}
	if p.ShouldCheckpoint() {
		if _, err := c.memory.CreateCheckpoint(c.sessionID, "pressure checkpoint"); err != nil {
			c.logger.Warn("Pressure checkpoint failed: %v", err)
		}
	}
}

// Shutdown stops all agents and broadcasts the shutdown message.
func (c *Coordinator) Shutdown() {
	msg := proto.NewMessage(proto.MsgTypeShutdown, bus.OrchestratorID, proto.BroadcastRecipient)
	msg.Priority = proto.PriorityCritical
	c.msgBus.Publish(msg)
	c.msgBus.Deliver()

	c.dispatcher.Shutdown()
}
