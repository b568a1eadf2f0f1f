package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of session event
type EventType string

const (
	EventSessionJoined        EventType = "session_joined"
	EventSessionLeft          EventType = "session_left"
	EventJoinFailed           EventType = "join_failed"
	EventTranscriptionStarted EventType = "transcription_started"
	EventTranscriptionStopped EventType = "transcription_stopped"
	EventTranscriptionError   EventType = "transcription_error"
)

// Logger provides async event logging to the database.
// Caption text is never written here.
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l.db == nil || sessionID == "" {
		return nil // Silently skip if no DB or session ID
	}

	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO session_events (session_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, sessionID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}

// Event is a stored session event.
type Event struct {
	SessionID string          `json:"session_id"`
	EventType EventType       `json:"event_type"`
	Data      json.RawMessage `json:"event_data"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListSession returns the events of one session, oldest first.
func (l *Logger) ListSession(ctx context.Context, sessionID string) ([]Event, error) {
	if l.db == nil {
		return nil, nil
	}

	rows, err := l.db.Query(ctx, `
		SELECT session_id, event_type, event_data, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType string
		if err := rows.Scan(&e.SessionID, &eventType, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventType = EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}

// EnsureSchema creates the session_events table if it does not exist.
func (l *Logger) EnsureSchema(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	_, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_events (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS session_events_session_id_idx ON session_events (session_id);
	`)
	return err
}
