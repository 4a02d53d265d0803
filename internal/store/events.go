package store

import (
	"context"
	"database/sql"
)

// IsEventProcessed checks if an event has been processed (idempotency)
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`
	err := s.db.GetContext(ctx, &exists, query, eventID)
	return exists, err
}

// ClaimEvent records the event atomically and reports whether this caller won the claim.
// A false result means another delivery already claimed it.
func (s *Store) ClaimEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, event_type, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
		RETURNING event_id`

	var claimed string
	err := s.db.QueryRowxContext(ctx, query, eventID, eventType).Scan(&claimed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseEvent drops a claim so a later delivery can retry the event
func (s *Store) ReleaseEvent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM processed_events WHERE event_id = $1", eventID)
	return err
}
