package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionRollup holds aggregated task metrics for one session as recorded in
// Prometheus.
type SessionRollup struct {
	SessionID      string  `json:"session_id"`
	Iterations     int64   `json:"iterations"`
	TasksCompleted int64   `json:"tasks_completed"`
	TasksFailed    int64   `json:"tasks_failed"`
	BreakerTrips   int64   `json:"breaker_trips"`
	AvgTaskSeconds float64 `json:"avg_task_seconds"`
}

// QueryService aggregates session metrics from a Prometheus endpoint.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service against the given
// Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetSessionRollup retrieves aggregated loop and task metrics for a session,
// summed across all agents.
func (q *QueryService) GetSessionRollup(ctx context.Context, sessionID string) (*SessionRollup, error) {
	rollup := &SessionRollup{SessionID: sessionID}

	iterations, err := q.scalar(ctx, fmt.Sprintf(`sum(devloop_iterations_total{session_id=%q})`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	rollup.Iterations = int64(iterations)

	completed, err := q.scalar(ctx, fmt.Sprintf(`sum(devloop_tasks_total{session_id=%q, status="completed"})`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query completed tasks: %w", err)
	}
	rollup.TasksCompleted = int64(completed)

	failed, err := q.scalar(ctx, fmt.Sprintf(`sum(devloop_tasks_total{session_id=%q, status="failed"})`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query failed tasks: %w", err)
	}
	rollup.TasksFailed = int64(failed)

	trips, err := q.scalar(ctx, fmt.Sprintf(`sum(devloop_breaker_trips_total{session_id=%q})`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query breaker trips: %w", err)
	}
	rollup.BreakerTrips = int64(trips)

	avg, err := q.scalar(ctx, fmt.Sprintf(
		`sum(devloop_task_duration_seconds_sum{session_id=%q}) / sum(devloop_task_duration_seconds_count{session_id=%q})`,
		sessionID, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query task durations: %w", err)
	}
	rollup.AvgTaskSeconds = avg

	return rollup, nil
}

// GetBreakerTripsByLevel returns per-level trip counts for a session.
func (q *QueryService) GetBreakerTripsByLevel(ctx context.Context, sessionID string) (map[string]int64, error) {
	query := fmt.Sprintf(`sum by (level) (devloop_breaker_trips_total{session_id=%q})`, sessionID)
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query breaker trips by level: %w", err)
	}

	out := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if level, ok := sample.Metric["level"]; ok {
				out[string(level)] = int64(sample.Value)
			}
		}
	}

	return out, nil
}
