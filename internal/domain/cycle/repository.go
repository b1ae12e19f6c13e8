package cycle

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Cycle) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cycle, error)

	// GetActive returns ErrNoActiveCycle when no cycle is active.
	GetActive(ctx context.Context) (*Cycle, error)

	// List returns all cycles, newest first.
	List(ctx context.Context) ([]*Cycle, error)

	// SetActive deactivates every other cycle and activates id as one transaction.
	SetActive(ctx context.Context, id uuid.UUID) (*Cycle, error)

	// Deactivate clears the active flag on the given cycles.
	Deactivate(ctx context.Context, ids ...uuid.UUID) error

	Rename(ctx context.Context, id uuid.UUID, name string) (*Cycle, error)

	Delete(ctx context.Context, id uuid.UUID) error
}
