// Package postgres keeps an optional history of editor events (block runs,
// failures, template loads) in a Postgres table.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Editor    string                 `json:"editor"`
	SessionID *string                `json:"session_id,omitempty"`
}

// Client manages the Postgres connection for run history.
type Client struct {
	db     *sql.DB
	editor string
}

// ConnString builds a lib/pq connection string from the PG* environment.
func ConnString() string {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "ragflow")
	dbname := getEnv("PGDATABASE", "ragflow")
	password := os.Getenv("PGPASSWORD")

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
}

// New connects using the PG* environment variables and prepares the table.
// editor names the editor instance rows are attributed to.
func New(editor string) (*Client, error) {
	db, err := sql.Open("postgres", ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:     db,
		editor: editor,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create editor_events table: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS editor_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			editor     TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_editor_events_ts ON editor_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_editor_events_session ON editor_events(session_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}

	query := `
		INSERT INTO editor_events (ts, level, event, msg, fields, editor, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.editor, sessionPtr)
	return err
}

// Query returns the last N events of a session, newest first. An empty
// sessionID returns events of every session of this editor.
func (c *Client) Query(sessionID string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, editor, session_id
		FROM editor_events
		WHERE editor = $1 AND ($2 = '' OR session_id = $2)
		ORDER BY ts DESC
		LIMIT $3
	`
	rows, err := c.db.Query(query, c.editor, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, session sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Editor, &session); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if session.Valid {
			e.SessionID = &session.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// RunSummary counts the pipeline runs of one session.
type RunSummary struct {
	SessionID string    `json:"session_id"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	LastRun   time.Time `json:"last_run"`
}

// Runs summarizes pipeline runs per session, most recent first.
func (c *Client) Runs(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT session_id,
		       COUNT(*) FILTER (WHERE event = 'pipeline.run_completed'),
		       COUNT(*) FILTER (WHERE event = 'pipeline.run_failed'),
		       MAX(ts)
		FROM editor_events
		WHERE editor = $1
		  AND session_id IS NOT NULL
		  AND event IN ('pipeline.run_completed', 'pipeline.run_failed')
		GROUP BY session_id
		ORDER BY MAX(ts) DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.editor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.SessionID, &r.Completed, &r.Failed, &r.LastRun); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
