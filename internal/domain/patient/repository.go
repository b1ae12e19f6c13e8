package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new patient. Returns ErrPatientAlreadyExists on duplicate child code.
	Create(ctx context.Context, p *Patient) error

	// CreateBatch persists all patients in one transaction or none of them.
	CreateBatch(ctx context.Context, patients []*Patient) error

	// GetByChildCode returns ErrPatientNotFound if no patient carries the code.
	GetByChildCode(ctx context.Context, childCode string) (*Patient, error)

	// Save writes back every column of an existing patient.
	Save(ctx context.Context, p *Patient) error

	// DeleteByChildCodes removes the patients and returns how many rows went away.
	DeleteByChildCodes(ctx context.Context, childCodes []string) (int64, error)

	// List returns patients newest first, each joined with its screening count.
	List(ctx context.Context, q *ListPatientsQuery) ([]*Summary, error)

	// ExistingChildCodes returns the subset of codes that are already taken.
	ExistingChildCodes(ctx context.Context, childCodes []string, excludeID *uuid.UUID) ([]string, error)
}
