package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
)

// activationLock serializes SetActive across connections.
const activationLock = 0x63796331

type CycleRepository struct {
	base
}

func NewCycleRepository(db *gorm.DB, timeout time.Duration) *CycleRepository {
	return &CycleRepository{base: newBase(db, timeout)}
}

func (r *CycleRepository) Create(ctx context.Context, c *cycle.Cycle) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	return translate(db.Create(c).Error, nil, nil)
}

func (r *CycleRepository) GetByID(ctx context.Context, id uuid.UUID) (*cycle.Cycle, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var c cycle.Cycle
	if err := db.First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, cycle.ErrCycleNotFound, nil)
	}
	return &c, nil
}

func (r *CycleRepository) GetActive(ctx context.Context) (*cycle.Cycle, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var c cycle.Cycle
	err := db.Where("active").Order("activated_at DESC NULLS LAST").First(&c).Error
	if err != nil {
		return nil, translate(err, cycle.ErrNoActiveCycle, nil)
	}
	return &c, nil
}

func (r *CycleRepository) List(ctx context.Context) ([]*cycle.Cycle, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var out []*cycle.Cycle
	if err := db.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, translate(err, nil, nil)
	}
	return out, nil
}

func (r *CycleRepository) SetActive(ctx context.Context, id uuid.UUID) (*cycle.Cycle, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var c cycle.Cycle
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", activationLock).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error; err != nil {
			return err
		}

		// Others first, so the partial unique index never sees two active rows.
		if err := tx.Model(&cycle.Cycle{}).
			Where("active AND id <> ?", id).
			Update("active", false).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		c.Active = true
		c.ActivatedAt = &now
		return tx.Model(&c).Updates(map[string]any{"active": true, "activated_at": now}).Error
	})
	if err != nil {
		return nil, translate(err, cycle.ErrCycleNotFound, nil)
	}
	return &c, nil
}

func (r *CycleRepository) Deactivate(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Model(&cycle.Cycle{}).Where("id IN ?", ids).Update("active", false).Error
	return translate(err, nil, nil)
}

func (r *CycleRepository) Rename(ctx context.Context, id uuid.UUID, name string) (*cycle.Cycle, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var c cycle.Cycle
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			return err
		}
		c.Name = name
		return tx.Model(&c).Update("name", name).Error
	})
	if err != nil {
		return nil, translate(err, cycle.ErrCycleNotFound, nil)
	}
	return &c, nil
}

// Delete removes an inactive cycle. Screening records that reference it are
// left in place. The active guard is repeated in the statement so a
// concurrent activation cannot slip past the service check.
func (r *CycleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		var c cycle.Cycle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error; err != nil {
			return err
		}
		if c.Active {
			return cycle.ErrCycleActive
		}
		return tx.Where("id = ? AND NOT active", id).Delete(&cycle.Cycle{}).Error
	})
	return translate(err, cycle.ErrCycleNotFound, nil)
}
