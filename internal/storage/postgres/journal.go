package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/proxsync/internal/gameserver"
)

// ErrInvalidEvent is returned for an event that cannot be stored.
var ErrInvalidEvent = errors.New("invalid journal event")

// JournalRepository appends session events to the session_events table.
// Rows are written for audit only; nothing reads them back at runtime.
type JournalRepository struct {
	db *pgxpool.Pool
}

// NewJournalRepository creates a JournalRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with migrations applied.
func NewJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db}
}

// Record implements gameserver.Journal.
//
// Precondition: ev.Kind and ev.ParticipantID must be non-empty; ev.At must be set.
// Postcondition: One row is inserted, or a non-nil error is returned.
func (r *JournalRepository) Record(ctx context.Context, ev gameserver.JournalEvent) error {
	if ev.Kind == "" || ev.ParticipantID == "" || ev.At.IsZero() {
		return fmt.Errorf("%w: kind=%q participant=%q", ErrInvalidEvent, ev.Kind, ev.ParticipantID)
	}
	recipients := ev.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO session_events (kind, participant_id, x, y, message, recipients, occurred_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		string(ev.Kind), ev.ParticipantID, ev.X, ev.Y, ev.Message, recipients, ev.At,
	)
	if err != nil {
		return fmt.Errorf("inserting %s event for %s: %w", ev.Kind, ev.ParticipantID, err)
	}
	return nil
}
