package session

import (
	"fmt"
	"sort"
	"time"
)

// EffortUnit is the unit of an effort estimate.
type EffortUnit string

const (
	UnitStoryPoints EffortUnit = "story_points"
	UnitHours       EffortUnit = "hours"
	UnitDays        EffortUnit = "days"
	UnitTokens      EffortUnit = "tokens"
)

// ParseEffortUnit validates an effort unit string.
func ParseEffortUnit(s string) (EffortUnit, error) {
	switch EffortUnit(s) {
	case UnitStoryPoints, UnitHours, UnitDays, UnitTokens:
		return EffortUnit(s), nil
	default:
		return "", fmt.Errorf("unknown effort unit: %s", s)
	}
}

// Phase of task progress.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhasePlanning   Phase = "planning"
	PhaseInProgress Phase = "in_progress"
	PhaseTesting    Phase = "testing"
	PhaseReview     Phase = "review"
	PhaseComplete   Phase = "complete"
)

// ParsePhase validates a phase string.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseNotStarted, PhasePlanning, PhaseInProgress, PhaseTesting, PhaseReview, PhaseComplete:
		return Phase(s), nil
	default:
		return "", fmt.Errorf("unknown progress phase: %s", s)
	}
}

// EffortEstimate is an estimate in a chosen unit with a confidence level.
type EffortEstimate struct {
	Value      float64    `json:"value"`
	Unit       EffortUnit `json:"unit"`
	Confidence float64    `json:"confidence"`
}

// ToHours converts the estimate to hours: 2 hours per story point, 8 hours
// per day, 10k tokens per hour.
func (e EffortEstimate) ToHours() float64 {
	switch e.Unit {
	case UnitHours:
		return e.Value
	case UnitDays:
		return e.Value * 8
	case UnitStoryPoints:
		return e.Value * 2
	default:
		return e.Value / 10000
	}
}

// TaskProgress tracks one task through phases, effort, and estimation
// accuracy.
type TaskProgress struct {
	TaskID               string          `json:"task_id"`
	Name                 string          `json:"name"`
	Phase                Phase           `json:"phase"`
	CompletionPercentage int             `json:"completion_percentage"`
	Estimate             *EffortEstimate `json:"estimate,omitempty"`
	ActualEffortHours    float64         `json:"actual_effort"`
	Notes                []string        `json:"notes,omitempty"`
	CreatedAt            float64         `json:"created_at"`
	StartedAt            float64         `json:"started_at,omitempty"`
	CompletedAt          float64         `json:"completed_at,omitempty"`

	timerStart time.Time
}

// SetPhase moves the task to a new phase; COMPLETE pins completion to 100%
// and stamps the completion time.
func (p *TaskProgress) SetPhase(phase Phase) {
	p.Phase = phase
	if phase == PhaseComplete {
		p.CompletionPercentage = 100
		p.CompletedAt = float64(time.Now().UnixNano()) / 1e9
	}
}

// UpdateCompletion sets the completion percentage, clamped to [0, 100].
func (p *TaskProgress) UpdateCompletion(percentage int) {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	p.CompletionPercentage = percentage
}

// AddNote appends a progress note.
func (p *TaskProgress) AddNote(note string) {
	p.Notes = append(p.Notes, note)
}

// RecordEffort accumulates actual effort, converted to hours.
func (p *TaskProgress) RecordEffort(amount float64, unit EffortUnit) {
	p.ActualEffortHours += EffortEstimate{Value: amount, Unit: unit}.ToHours()
}

// StartTimer begins timing the task and stamps StartedAt on first use.
func (p *TaskProgress) StartTimer() {
	p.timerStart = time.Now()
	if p.StartedAt == 0 {
		p.StartedAt = float64(time.Now().UnixNano()) / 1e9
	}
}

// StopTimer stops timing and accumulates the elapsed time as effort.
func (p *TaskProgress) StopTimer() {
	if !p.timerStart.IsZero() {
		p.ActualEffortHours += time.Since(p.timerStart).Hours()
		p.timerStart = time.Time{}
	}
}

// EstimationAccuracy returns how close the actual effort came to the
// estimate as a 0-1 ratio; 1 when nothing to compare.
func (p *TaskProgress) EstimationAccuracy() float64 {
	if p.Estimate == nil || p.ActualEffortHours == 0 {
		return 1.0
	}

	estimated := p.Estimate.ToHours()
	if estimated == 0 {
		return 1.0
	}

	lo, hi := estimated, p.ActualEffortHours
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo / hi
}

// IsOverdue reports actual effort past the estimate.
func (p *TaskProgress) IsOverdue() bool {
	return p.Estimate != nil && p.ActualEffortHours > p.Estimate.ToHours()
}

// VelocityRecord is one completed task's contribution to velocity.
type VelocityRecord struct {
	TaskID      string  `json:"task_id"`
	StoryPoints float64 `json:"story_points"`
	HoursSpent  float64 `json:"hours_spent"`
	Timestamp   float64 `json:"timestamp"`
}

// VelocityTracker derives points-per-hour velocity from completions.
type VelocityTracker struct {
	records []VelocityRecord
}

// RecordCompletion adds one completed task.
func (v *VelocityTracker) RecordCompletion(taskID string, storyPoints, hoursSpent float64) {
	v.records = append(v.records, VelocityRecord{
		TaskID:      taskID,
		StoryPoints: storyPoints,
		HoursSpent:  hoursSpent,
		Timestamp:   float64(time.Now().UnixNano()) / 1e9,
	})
}

// CompletedCount returns the number of recorded completions.
func (v *VelocityTracker) CompletedCount() int {
	return len(v.records)
}

// TotalPoints sums completed story points.
func (v *VelocityTracker) TotalPoints() float64 {
	total := 0.0
	for _, r := range v.records {
		total += r.StoryPoints
	}
	return total
}

// TotalHours sums hours spent.
func (v *VelocityTracker) TotalHours() float64 {
	total := 0.0
	for _, r := range v.records {
		total += r.HoursSpent
	}
	return total
}

// Velocity returns overall points per hour, 0 when nothing is recorded.
func (v *VelocityTracker) Velocity() float64 {
	hours := v.TotalHours()
	if hours == 0 {
		return 0
	}
	return v.TotalPoints() / hours
}

// RollingVelocity returns points per hour over the last n completions.
func (v *VelocityTracker) RollingVelocity(n int) float64 {
	recent := v.records
	if n < len(recent) {
		recent = recent[len(recent)-n:]
	}
	if len(recent) == 0 {
		return 0
	}

	points, hours := 0.0, 0.0
	for _, r := range recent {
		points += r.StoryPoints
		hours += r.HoursSpent
	}
	if hours == 0 {
		return 0
	}
	return points / hours
}

// EstimateHours projects hours for the remaining points at current velocity.
func (v *VelocityTracker) EstimateHours(remainingPoints float64) float64 {
	velocity := v.Velocity()
	if velocity == 0 {
		return 0
	}
	return remainingPoints / velocity
}

// Trend compares first-half to second-half velocity: "improving",
// "declining", or "stable".
func (v *VelocityTracker) Trend() string {
	if len(v.records) < 3 {
		return "stable"
	}

	mid := len(v.records) / 2
	halfVelocity := func(records []VelocityRecord) float64 {
		points, hours := 0.0, 0.0
		for _, r := range records {
			points += r.StoryPoints
			hours += r.HoursSpent
		}
		if hours < 0.01 {
			hours = 0.01
		}
		return points / hours
	}

	diff := halfVelocity(v.records[mid:]) - halfVelocity(v.records[:mid])
	switch {
	case diff > 0.1:
		return "improving"
	case diff < -0.1:
		return "declining"
	default:
		return "stable"
	}
}

// ProgressTracker tracks every task's progress plus session velocity.
type ProgressTracker struct {
	tasks    map[string]*TaskProgress
	Velocity *VelocityTracker
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		tasks:    make(map[string]*TaskProgress),
		Velocity: &VelocityTracker{},
	}
}

// Track starts tracking a task and returns its progress record.
func (t *ProgressTracker) Track(taskID, name string) *TaskProgress {
	progress := &TaskProgress{
		TaskID:    taskID,
		Name:      name,
		Phase:     PhaseNotStarted,
		CreatedAt: float64(time.Now().UnixNano()) / 1e9,
	}
	t.tasks[taskID] = progress
	return progress
}

// GetProgress returns a task's progress, or nil when untracked.
func (t *ProgressTracker) GetProgress(taskID string) *TaskProgress {
	return t.tasks[taskID]
}

// Update applies an optional phase and completion change to a task; unknown
// ids are ignored.
func (t *ProgressTracker) Update(taskID string, phase Phase, completion int) {
	progress := t.tasks[taskID]
	if progress == nil {
		return
	}
	if phase != "" {
		progress.SetPhase(phase)
	}
	if completion >= 0 {
		progress.UpdateCompletion(completion)
	}
}

// Complete marks a task complete and records its velocity contribution.
// Estimates in other units convert to approximate points at 2 hours each.
func (t *ProgressTracker) Complete(taskID string) {
	progress := t.tasks[taskID]
	if progress == nil {
		return
	}

	progress.SetPhase(PhaseComplete)

	storyPoints := 0.0
	if progress.Estimate != nil {
		if progress.Estimate.Unit == UnitStoryPoints {
			storyPoints = progress.Estimate.Value
		} else {
			storyPoints = progress.Estimate.ToHours() / 2
		}
	}

	hoursSpent := progress.ActualEffortHours
	if hoursSpent > 0 || storyPoints > 0 {
		if hoursSpent < 0.1 {
			hoursSpent = 0.1
		}
		t.Velocity.RecordCompletion(taskID, storyPoints, hoursSpent)
	}
}

// IsComplete reports whether a tracked task reached COMPLETE.
func (t *ProgressTracker) IsComplete(taskID string) bool {
	progress := t.tasks[taskID]
	return progress != nil && progress.Phase == PhaseComplete
}

// GetAll returns every tracked task, sorted by id.
func (t *ProgressTracker) GetAll() []*TaskProgress {
	out := make([]*TaskProgress, 0, len(t.tasks))
	for _, p := range t.tasks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// GetByPhase returns tracked tasks currently in a phase.
func (t *ProgressTracker) GetByPhase(phase Phase) []*TaskProgress {
	var out []*TaskProgress
	for _, p := range t.GetAll() {
		if p.Phase == phase {
			out = append(out, p)
		}
	}
	return out
}

// OverallCompletion averages completion across all tracked tasks.
func (t *ProgressTracker) OverallCompletion() float64 {
	if len(t.tasks) == 0 {
		return 0
	}
	total := 0
	for _, p := range t.tasks {
		total += p.CompletionPercentage
	}
	return float64(total) / float64(len(t.tasks))
}

// RemainingPoints sums story-point estimates of incomplete tasks.
func (t *ProgressTracker) RemainingPoints() float64 {
	total := 0.0
	for _, p := range t.tasks {
		if p.Phase != PhaseComplete && p.Estimate != nil && p.Estimate.Unit == UnitStoryPoints {
			total += p.Estimate.Value
		}
	}
	return total
}

// ProgressSummary is the tracker rollup.
type ProgressSummary struct {
	TotalTasks        int           `json:"total_tasks"`
	ByPhase           map[Phase]int `json:"by_phase"`
	OverallCompletion float64       `json:"overall_completion"`
	Velocity          float64       `json:"velocity"`
	VelocityTrend     string        `json:"velocity_trend"`
}

// GetProgressSummary returns the rollup.
func (t *ProgressTracker) GetProgressSummary() ProgressSummary {
	byPhase := map[Phase]int{
		PhaseNotStarted: 0,
		PhasePlanning:   0,
		PhaseInProgress: 0,
		PhaseTesting:    0,
		PhaseReview:     0,
		PhaseComplete:   0,
	}
	for _, p := range t.tasks {
		byPhase[p.Phase]++
	}

	return ProgressSummary{
		TotalTasks:        len(t.tasks),
		ByPhase:           byPhase,
		OverallCompletion: t.OverallCompletion(),
		Velocity:          t.Velocity.Velocity(),
		VelocityTrend:     t.Velocity.Trend(),
	}
}
