package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
)

// sectionColumns lists what a section save is allowed to overwrite.
var sectionColumns = map[domain.Section][]string{
	domain.SectionVitals:     {"vitals", "section1_complete", "section1_completed_at", "section1_completed_by", "updated_at"},
	domain.SectionLaboratory: {"laboratory", "section2_complete", "section2_completed_at", "section2_completed_by", "updated_at"},
	domain.SectionDiagnosis:  {"diagnosis", "section3_complete", "section3_completed_at", "section3_completed_by", "updated_at"},
}

type ScreeningRepository struct {
	base
}

func NewScreeningRepository(db *gorm.DB, timeout time.Duration) *ScreeningRepository {
	return &ScreeningRepository{base: newBase(db, timeout)}
}

func (r *ScreeningRepository) Get(ctx context.Context, patientID, cycleID uuid.UUID) (*screening.Record, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var rec screening.Record
	err := db.Where("patient_id = ? AND cycle_id = ?", patientID, cycleID).First(&rec).Error
	if err != nil {
		return nil, translate(err, screening.ErrRecordNotFound, nil)
	}
	return &rec, nil
}

// SaveSection upserts on (patient_id, cycle_id). On conflict only the
// section's own columns change, so concurrent saves of different sections
// do not overwrite each other.
func (r *ScreeningRepository) SaveSection(ctx context.Context, rec *screening.Record, s domain.Section) error {
	cols, ok := sectionColumns[s]
	if !ok {
		return screening.ErrInvalidSection
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}, {Name: "cycle_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(rec).Error
	return translate(err, nil, nil)
}

func (r *ScreeningRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID) (map[uuid.UUID]*screening.Record, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var recs []*screening.Record
	if err := db.Where("cycle_id = ?", cycleID).Find(&recs).Error; err != nil {
		return nil, translate(err, nil, nil)
	}

	out := make(map[uuid.UUID]*screening.Record, len(recs))
	for _, rec := range recs {
		out[rec.PatientID] = rec
	}
	return out, nil
}
