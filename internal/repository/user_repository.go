package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

type UserRepository struct {
	base
}

func NewUserRepository(db *gorm.DB, timeout time.Duration) *UserRepository {
	return &UserRepository{base: newBase(db, timeout)}
}

func (r *UserRepository) CreateWithProfile(ctx context.Context, u *domain.User, p *domain.Profile) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		p.ID = u.ID
		return tx.Create(p).Error
	})
	return translate(err, nil, domain.ErrEmailTaken)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var u domain.User
	if err := db.Where("email = ? AND deleted_at IS NULL", email).First(&u).Error; err != nil {
		return nil, translate(err, domain.ErrUserNotFound, nil)
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var u domain.User
	if err := db.Where("id = ? AND deleted_at IS NULL", id).First(&u).Error; err != nil {
		return nil, translate(err, domain.ErrUserNotFound, nil)
	}
	return &u, nil
}

// UpdateLoginAttempt resets the failure counter on success. On failure it
// increments the counter and locks the account once maxAttempts is reached,
// in a single statement so concurrent failures are all counted.
func (r *UserRepository) UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool, maxAttempts int, lockFor time.Duration) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	now := time.Now().UTC()
	q := db.Model(&domain.User{}).Where("id = ?", id)

	var err error
	if success {
		err = q.Updates(map[string]any{
			"failed_login_count": 0,
			"locked_until":       nil,
			"last_login_at":      now,
		}).Error
	} else {
		err = q.Updates(map[string]any{
			"failed_login_count": gorm.Expr("failed_login_count + 1"),
			"locked_until": gorm.Expr(
				"CASE WHEN failed_login_count + 1 >= ? THEN ?::timestamptz ELSE locked_until END",
				maxAttempts, now.Add(lockFor),
			),
		}).Error
	}
	return translate(err, nil, nil)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash":       hash,
		"password_changed_at": time.Now().UTC(),
		"failed_login_count":  0,
		"locked_until":        nil,
	})
	if res.Error != nil {
		return translate(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) DeleteWithProfile(ctx context.Context, id uuid.UUID) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.Profile{}, "id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.User{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
	return translate(err, nil, nil)
}

type ProfileRepository struct {
	base
}

func NewProfileRepository(db *gorm.DB, timeout time.Duration) *ProfileRepository {
	return &ProfileRepository{base: newBase(db, timeout)}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var p domain.Profile
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err, domain.ErrProfileNotFound, nil)
	}
	return &p, nil
}

// List returns every profile with its account email. Profiles left behind
// by a partial deletion have no account and an empty email.
func (r *ProfileRepository) List(ctx context.Context) ([]*domain.StaffMember, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var out []*domain.StaffMember
	err := db.Table("public.profiles AS p").
		Select("p.*, COALESCE(u.email, '') AS email").
		Joins("LEFT JOIN auth.users u ON u.id = p.id").
		Order("p.full_name").
		Scan(&out).Error
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return out, nil
}

func (r *ProfileRepository) Save(ctx context.Context, p *domain.Profile) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(p).Select("full_name", "role", "section", "centre", "updated_at").Updates(p)
	if res.Error != nil {
		return translate(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (r *ProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Delete(&domain.Profile{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, nil, nil)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
