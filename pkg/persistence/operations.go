package persistence

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord is one archived session row.
type SessionRecord struct {
	SessionID         string
	StartedAt         float64
	EndedAt           sql.NullFloat64
	StopReason        sql.NullString
	Iterations        int
	FeaturesStarted   int
	FeaturesCompleted int
}

// TaskResultRecord is one archived task result row.
type TaskResultRecord struct {
	SessionID  string
	TaskID     string
	AgentID    string
	Success    bool
	Error      string
	DurationMS float64
	RecordedAt float64
}

// OutcomeRecord is one archived optimizer outcome row.
type OutcomeRecord struct {
	SessionID   string
	OutcomeType string
	MetricName  string
	Value       float64
	RecordedAt  float64
}

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// BeginSession inserts a session row; re-beginning an existing id is an
// error.
func (s *Store) BeginSession(sessionID string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)`,
		sessionID, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to begin session %s: %w", sessionID, err)
	}
	return nil
}

// EndSession closes a session row with its final counters.
func (s *Store) EndSession(sessionID, stopReason string, iterations, featuresStarted, featuresCompleted int) error {
	result, err := s.db.Exec(
		`UPDATE sessions
		 SET ended_at = ?, stop_reason = ?, iterations = ?, features_started = ?, features_completed = ?
		 WHERE session_id = ?`,
		now(), stopReason, iterations, featuresStarted, featuresCompleted, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// GetSession fetches one session row.
func (s *Store) GetSession(sessionID string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT session_id, started_at, ended_at, stop_reason, iterations, features_started, features_completed
		 FROM sessions WHERE session_id = ?`,
		sessionID,
	)

	var rec SessionRecord
	err := row.Scan(&rec.SessionID, &rec.StartedAt, &rec.EndedAt, &rec.StopReason,
		&rec.Iterations, &rec.FeaturesStarted, &rec.FeaturesCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	return &rec, nil
}

// RecordTaskResult archives one task result.
func (s *Store) RecordTaskResult(rec TaskResultRecord) error {
	if rec.RecordedAt == 0 {
		rec.RecordedAt = now()
	}
	_, err := s.db.Exec(
		`INSERT INTO task_results (session_id, task_id, agent_id, success, error, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TaskID, rec.AgentID, rec.Success, rec.Error, rec.DurationMS, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record task result %s: %w", rec.TaskID, err)
	}
	return nil
}

// GetTaskResults returns a session's task results in recorded order.
func (s *Store) GetTaskResults(sessionID string) ([]TaskResultRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, task_id, agent_id, success, error, duration_ms, recorded_at
		 FROM task_results WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	var results []TaskResultRecord
	for rows.Next() {
		var rec TaskResultRecord
		var errText sql.NullString
		var duration sql.NullFloat64
		if err := rows.Scan(&rec.SessionID, &rec.TaskID, &rec.AgentID, &rec.Success,
			&errText, &duration, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		rec.Error = errText.String
		rec.DurationMS = duration.Float64
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task results: %w", err)
	}
	return results, nil
}

// RecordOutcome archives one optimizer outcome.
func (s *Store) RecordOutcome(rec OutcomeRecord) error {
	if rec.RecordedAt == 0 {
		rec.RecordedAt = now()
	}
	_, err := s.db.Exec(
		`INSERT INTO outcomes (session_id, outcome_type, metric_name, value, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.OutcomeType, rec.MetricName, rec.Value, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome %s: %w", rec.MetricName, err)
	}
	return nil
}

// GetOutcomes returns a session's outcomes in recorded order.
func (s *Store) GetOutcomes(sessionID string) ([]OutcomeRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, outcome_type, metric_name, value, recorded_at
		 FROM outcomes WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		if err := rows.Scan(&rec.SessionID, &rec.OutcomeType, &rec.MetricName,
			&rec.Value, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return outcomes, nil
}
