//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/database"
)

const callTimeout = 5 * time.Second

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := database.Connect(config.DatabaseConfig{URL: dsn})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"screening.records", "screening.cycles", "clinical.patients", "public.profiles", "auth.users"} {
		if err := db.Exec("TRUNCATE " + table + " CASCADE").Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

func newPatient(code string) *patient.Patient {
	return &patient.Patient{
		ChildCode:   code,
		FirstName:   "Ama",
		LastName:    "Mensah",
		Community:   "Kumasi",
		DateOfBirth: time.Date(2018, 4, 10, 0, 0, 0, 0, time.UTC),
		Sex:         patient.SexFemale,
		CreatedBy:   uuid.New(),
	}
}

func TestPatientRepository_Integration(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewPatientRepository(db, callTimeout)

	if err := repo.Create(ctx, newPatient("GH1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, newPatient("GH1")); !errors.Is(err, patient.ErrPatientAlreadyExists) {
		t.Errorf("expected ErrPatientAlreadyExists, got %v", err)
	}

	err := repo.CreateBatch(ctx, []*patient.Patient{newPatient("GH2"), newPatient("GH1")})
	if !errors.Is(err, patient.ErrPatientAlreadyExists) {
		t.Fatalf("expected batch to fail, got %v", err)
	}
	if _, err := repo.GetByChildCode(ctx, "GH2"); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Error("failed batch must not leave rows behind")
	}

	if err := repo.CreateBatch(ctx, []*patient.Patient{newPatient("GH2"), newPatient("GH3")}); err != nil {
		t.Fatalf("batch: %v", err)
	}

	list, err := repo.List(ctx, &patient.ListPatientsQuery{Search: "gh"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 patients, got %d", len(list))
	}

	taken, err := repo.ExistingChildCodes(ctx, []string{"GH1", "GH9"}, nil)
	if err != nil || len(taken) != 1 || taken[0] != "GH1" {
		t.Errorf("unexpected taken codes %v %v", taken, err)
	}

	n, err := repo.DeleteByChildCodes(ctx, []string{"GH1", "GH2", "GH404"})
	if err != nil || n != 2 {
		t.Errorf("expected 2 deleted, got %d %v", n, err)
	}
}

func TestCycleRepository_SingleActive_Integration(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := NewCycleRepository(db, callTimeout)

	a := &cycle.Cycle{Name: "A", CreatedBy: uuid.New()}
	b := &cycle.Cycle{Name: "B", CreatedBy: uuid.New()}
	for _, c := range []*cycle.Cycle{a, b} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	if _, err := repo.SetActive(ctx, a.ID); err != nil {
		t.Fatalf("activate a: %v", err)
	}
	if _, err := repo.SetActive(ctx, b.ID); err != nil {
		t.Fatalf("activate b: %v", err)
	}

	var active int64
	db.Model(&cycle.Cycle{}).Where("active").Count(&active)
	if active != 1 {
		t.Errorf("expected exactly one active cycle, got %d", active)
	}

	// The partial unique index rejects a second active row.
	if err := db.Model(&cycle.Cycle{}).Where("id = ?", a.ID).Update("active", true).Error; err == nil {
		t.Error("expected unique index violation")
	}

	if err := repo.Delete(ctx, b.ID); !errors.Is(err, cycle.ErrCycleActive) {
		t.Errorf("expected ErrCycleActive, got %v", err)
	}
	p := newPatient("GH1")
	if err := NewPatientRepository(db, callTimeout).Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	rec := screening.NewShadow(p.ID, a.ID)
	rec.Apply(&screening.Vitals{Pallor: "no"}, uuid.New(), time.Now())
	if err := NewScreeningRepository(db, callTimeout).SaveSection(ctx, rec, domain.SectionVitals); err != nil {
		t.Fatalf("save vitals: %v", err)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Errorf("delete inactive: %v", err)
	}
	if _, err := repo.GetByID(ctx, a.ID); !errors.Is(err, cycle.ErrCycleNotFound) {
		t.Errorf("expected ErrCycleNotFound, got %v", err)
	}

	// Records of a deleted cycle are orphaned, not removed.
	var records int64
	db.Model(&screening.Record{}).Where("cycle_id = ?", a.ID).Count(&records)
	if records != 1 {
		t.Errorf("expected the cycle's record to remain, got %d", records)
	}
}

func TestScreeningRepository_SaveSection_Integration(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	patients := NewPatientRepository(db, callTimeout)
	cycles := NewCycleRepository(db, callTimeout)
	repo := NewScreeningRepository(db, callTimeout)

	p := newPatient("GH1")
	c := &cycle.Cycle{Name: "A", CreatedBy: uuid.New()}
	if err := patients.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := cycles.Create(ctx, c); err != nil {
		t.Fatal(err)
	}

	by := uuid.New()
	first := screening.NewShadow(p.ID, c.ID)
	first.Apply(&screening.Vitals{Pallor: "no"}, by, time.Now())
	if err := repo.SaveSection(ctx, first, domain.SectionVitals); err != nil {
		t.Fatalf("save vitals: %v", err)
	}

	// A stale copy saving section 2 must not wipe section 1.
	stale := screening.NewShadow(p.ID, c.ID)
	stale.Apply(&screening.Laboratory{MalariaRDT: "negative"}, by, time.Now())
	if err := repo.SaveSection(ctx, stale, domain.SectionLaboratory); err != nil {
		t.Fatalf("save lab: %v", err)
	}

	got, err := repo.Get(ctx, p.ID, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Flags() != (screening.Flags{true, true, false}) {
		t.Errorf("unexpected flags %v", got.Flags())
	}
	if got.Vitals == nil || got.Vitals.Pallor != "no" || got.Laboratory.MalariaRDT != "negative" {
		t.Errorf("unexpected payloads %+v %+v", got.Vitals, got.Laboratory)
	}

	list, _ := patients.List(ctx, &patient.ListPatientsQuery{})
	if len(list) != 1 || list[0].ScreenCount != 1 {
		t.Errorf("expected screen count 1, got %+v", list)
	}
}

func TestUserRepository_Integration(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	users := NewUserRepository(db, callTimeout)
	profiles := NewProfileRepository(db, callTimeout)

	u := &domain.User{ID: uuid.New(), Email: "nurse@clinic.test", PasswordHash: "x", IsActive: true}
	if err := users.CreateWithProfile(ctx, u, &domain.Profile{FullName: "Nurse", Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &domain.User{ID: uuid.New(), Email: "nurse@clinic.test", PasswordHash: "x"}
	if err := users.CreateWithProfile(ctx, dup, &domain.Profile{FullName: "Dup", Role: domain.RoleAdmin}); !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = users.UpdateLoginAttempt(ctx, u.ID, false, 3, time.Minute)
	}
	got, _ := users.GetByID(ctx, u.ID)
	if !got.IsLocked() {
		t.Error("expected account to be locked after 3 failures")
	}

	staff, err := profiles.List(ctx)
	if err != nil || len(staff) != 1 || staff[0].Email != "nurse@clinic.test" {
		t.Errorf("unexpected staff list %+v %v", staff, err)
	}

	if err := users.DeleteWithProfile(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := profiles.GetByID(ctx, u.ID); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("expected profile to be gone, got %v", err)
	}
}
