package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

type AuditRepository struct {
	base
}

func NewAuditRepository(db *gorm.DB, timeout time.Duration) *AuditRepository {
	return &AuditRepository{base: newBase(db, timeout)}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return translate(db.Create(entry).Error, nil, nil)
}
