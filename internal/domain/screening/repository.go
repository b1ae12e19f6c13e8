package screening

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

type Repository interface {
	// Get returns ErrRecordNotFound when the patient has no record in the cycle.
	Get(ctx context.Context, patientID, cycleID uuid.UUID) (*Record, error)

	// SaveSection inserts the record keyed by (patient, cycle), or updates
	// only the columns of section s when it already exists.
	SaveSection(ctx context.Context, r *Record, s domain.Section) error

	// ListByCycle returns every record in the cycle keyed by patient ID.
	ListByCycle(ctx context.Context, cycleID uuid.UUID) (map[uuid.UUID]*Record, error)
}
