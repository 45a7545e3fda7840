// Package ledger provides an append-only history of mood session lifecycle
// events, used for auditing what huemood did to which bulb and when.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huemood/internal/eventbus"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	SessionID string
	Bulb      string
	EventType string
	Timestamp time.Time
	Payload   map[string]any
}

// Ledger provides append-only session event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(sessionID, bulb, eventType string, at time.Time, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.Exec(
		`INSERT INTO session_ledger (session_id, bulb, event_type, timestamp, payload) VALUES (?, ?, ?, ?, ?)`,
		sessionID, bulb, eventType, at.Unix(), string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT id, session_id, bulb, event_type, timestamp, payload
		 FROM session_ledger ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Bulb, &e.EventType, &ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than retention.
func (l *Ledger) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := l.db.Exec(`DELETE FROM session_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up ledger: %w", err)
	}
	return res.RowsAffected()
}

// Subscribe attaches the ledger to the event bus so every session event is
// recorded. Write failures are logged, never propagated to the mood loops.
func (l *Ledger) Subscribe(bus *eventbus.Bus) {
	bus.SubscribeAll(func(e eventbus.Event) {
		if err := l.Append(e.SessionID, e.Bulb, string(e.Type), e.At, e.Data); err != nil {
			log.Error().Err(err).Str("bulb", e.Bulb).Str("event_type", string(e.Type)).
				Msg("Failed to record session event")
		}
	})
}
