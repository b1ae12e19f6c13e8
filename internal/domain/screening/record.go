package screening

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

// Record is the workflow unit for one patient within one cycle.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;uniqueIndex:idx_records_patient_cycle"`
	CycleID   uuid.UUID `gorm:"column:cycle_id;type:uuid;not null;uniqueIndex:idx_records_patient_cycle;index"`

	Section1Complete bool `gorm:"column:section1_complete;not null;default:false"`
	Section2Complete bool `gorm:"column:section2_complete;not null;default:false"`
	Section3Complete bool `gorm:"column:section3_complete;not null;default:false"`

	Vitals     *Vitals     `gorm:"column:vitals;serializer:json"`
	Laboratory *Laboratory `gorm:"column:laboratory;serializer:json"`
	Diagnosis  *Diagnosis  `gorm:"column:diagnosis;serializer:json"`

	Section1CompletedAt *time.Time `gorm:"column:section1_completed_at"`
	Section1CompletedBy *uuid.UUID `gorm:"column:section1_completed_by;type:uuid"`
	Section2CompletedAt *time.Time `gorm:"column:section2_completed_at"`
	Section2CompletedBy *uuid.UUID `gorm:"column:section2_completed_by;type:uuid"`
	Section3CompletedAt *time.Time `gorm:"column:section3_completed_at"`
	Section3CompletedBy *uuid.UUID `gorm:"column:section3_completed_by;type:uuid"`
}

func (Record) TableName() string {
	return "screening.records"
}

// NewShadow is the empty record shown for a patient who has not been seen in
// the cycle yet. It is only persisted when a section is saved.
func NewShadow(patientID, cycleID uuid.UUID) *Record {
	return &Record{PatientID: patientID, CycleID: cycleID}
}

func (r *Record) Flags() Flags {
	return Flags{r.Section1Complete, r.Section2Complete, r.Section3Complete}
}

func (r *Record) FullyComplete() bool {
	return r.Flags().AllComplete()
}

// Apply stores the payload and marks its section complete. A completed
// section stays complete; re-applying only replaces the payload. It returns
// true when the section was newly completed.
func (r *Record) Apply(p Payload, by uuid.UUID, at time.Time) (newlyCompleted bool) {
	switch v := p.(type) {
	case *Vitals:
		r.Vitals = v
		newlyCompleted = !r.Section1Complete
		if newlyCompleted {
			r.Section1Complete, r.Section1CompletedAt, r.Section1CompletedBy = true, &at, &by
		}
	case *Laboratory:
		r.Laboratory = v
		newlyCompleted = !r.Section2Complete
		if newlyCompleted {
			r.Section2Complete, r.Section2CompletedAt, r.Section2CompletedBy = true, &at, &by
		}
	case *Diagnosis:
		r.Diagnosis = v
		newlyCompleted = !r.Section3Complete
		if newlyCompleted {
			r.Section3Complete, r.Section3CompletedAt, r.Section3CompletedBy = true, &at, &by
		}
	}
	return newlyCompleted
}

// PayloadFor returns a zero payload of the right concrete type for a section,
// ready to be decoded into.
func PayloadFor(s domain.Section) (Payload, error) {
	switch s {
	case domain.SectionVitals:
		return &Vitals{}, nil
	case domain.SectionLaboratory:
		return &Laboratory{}, nil
	case domain.SectionDiagnosis:
		return &Diagnosis{}, nil
	}
	return nil, ErrInvalidSection
}

// CycleSummary counts progress across a cycle.
type CycleSummary struct {
	CycleID          uuid.UUID `json:"cycle_id"`
	Patients         int64     `json:"patients"`
	Section1Complete int64     `json:"section1_complete"`
	Section2Complete int64     `json:"section2_complete"`
	Section3Complete int64     `json:"section3_complete"`
	FullyComplete    int64     `json:"fully_complete"`
}
