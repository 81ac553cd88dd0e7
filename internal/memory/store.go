package memory

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable side of conversation memory. The cache in front
// of it is a latency optimization only; the store is authoritative for
// everything ever written.
type Store interface {
	// LoadRecent returns up to limit turns for the session in
	// chronological order.
	LoadRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Turn, error)
	// Append persists a single turn.
	Append(ctx context.Context, sessionID uuid.UUID, turn Turn) error
	Close() error
}
