package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
)

const importBatchSize = 200

type PatientRepository struct {
	base
}

func NewPatientRepository(db *gorm.DB, timeout time.Duration) *PatientRepository {
	return &PatientRepository{base: newBase(db, timeout)}
}

func (r *PatientRepository) Create(ctx context.Context, p *patient.Patient) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return translate(db.Create(p).Error, nil, patient.ErrPatientAlreadyExists)
}

func (r *PatientRepository) CreateBatch(ctx context.Context, patients []*patient.Patient) error {
	if len(patients) == 0 {
		return nil
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(patients, importBatchSize).Error
	})
	return translate(err, nil, patient.ErrPatientAlreadyExists)
}

func (r *PatientRepository) GetByChildCode(ctx context.Context, childCode string) (*patient.Patient, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var p patient.Patient
	if err := db.Where("child_code = ?", childCode).First(&p).Error; err != nil {
		return nil, translate(err, patient.ErrPatientNotFound, nil)
	}
	return &p, nil
}

func (r *PatientRepository) Save(ctx context.Context, p *patient.Patient) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(p).
		Select("child_code", "first_name", "last_name", "community", "date_of_birth", "sex", "updated_at").
		Updates(p)
	if err := translate(res.Error, nil, patient.ErrPatientAlreadyExists); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return patient.ErrPatientNotFound
	}
	return nil
}

// DeleteByChildCodes removes the patients and their screening records in one
// transaction.
func (r *PatientRepository) DeleteByChildCodes(ctx context.Context, childCodes []string) (int64, error) {
	if len(childCodes) == 0 {
		return 0, nil
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	var deleted int64
	err := db.Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&patient.Patient{}).Select("id").Where("child_code IN ?", childCodes)
		if err := tx.Where("patient_id IN (?)", ids).Delete(&screening.Record{}).Error; err != nil {
			return fmt.Errorf("deleting screening records: %w", err)
		}

		res := tx.Where("child_code IN ?", childCodes).Delete(&patient.Patient{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, translate(err, nil, nil)
	}
	return deleted, nil
}

func (r *PatientRepository) List(ctx context.Context, q *patient.ListPatientsQuery) ([]*patient.Summary, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	query := db.Table("clinical.patients AS p").
		Select("p.*, COUNT(r.id) AS screen_count").
		Joins("LEFT JOIN screening.records r ON r.patient_id = p.id").
		Group("p.id").
		Order("p.created_at DESC")

	if s := strings.TrimSpace(q.Search); s != "" {
		like := containsPattern(s)
		query = query.Where("p.child_code ILIKE ? OR p.first_name ILIKE ? OR p.last_name ILIKE ?", like, like, like)
	}
	if c := strings.TrimSpace(q.Community); c != "" {
		query = query.Where("LOWER(p.community) = LOWER(?)", c)
	}

	var out []*patient.Summary
	if err := query.Scan(&out).Error; err != nil {
		return nil, translate(err, nil, nil)
	}
	return out, nil
}

func (r *PatientRepository) ExistingChildCodes(ctx context.Context, childCodes []string, excludeID *uuid.UUID) ([]string, error) {
	if len(childCodes) == 0 {
		return nil, nil
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	query := db.Model(&patient.Patient{}).Where("child_code IN ?", childCodes)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var taken []string
	if err := query.Pluck("child_code", &taken).Error; err != nil {
		return nil, translate(err, nil, nil)
	}
	return taken, nil
}
