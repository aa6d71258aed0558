package persistence

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id        TEXT PRIMARY KEY,
	started_at        REAL NOT NULL,
	ended_at          REAL,
	stop_reason       TEXT,
	iterations        INTEGER NOT NULL DEFAULT 0,
	features_started  INTEGER NOT NULL DEFAULT 0,
	features_completed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	task_id     TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT,
	duration_ms REAL,
	recorded_at REAL NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_task_results_session ON task_results(session_id);

CREATE TABLE IF NOT EXISTS outcomes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	outcome_type TEXT NOT NULL,
	metric_name  TEXT NOT NULL,
	value        REAL NOT NULL,
	recorded_at  REAL NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_outcomes_session ON outcomes(session_id);
`

func initializeSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
