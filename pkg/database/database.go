package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt:                              true,
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

const startKey = "childscreen:start"

// Instrument records every query's latency in m.DBQueryDuration and logs
// queries slower than slow at Warn. A zero slow disables the slow log.
func Instrument(db *gorm.DB, m *metrics.Collector, log *zap.Logger, slow time.Duration) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			elapsed := time.Since(v.(time.Time))
			table := tx.Statement.Table
			m.DBQueryDuration.WithLabelValues(op, table).Observe(elapsed.Seconds())

			if slow > 0 && elapsed > slow {
				log.Warn("slow query",
					zap.String("operation", op),
					zap.String("table", table),
					zap.Duration("duration", elapsed),
					zap.Int64("rows", tx.RowsAffected),
				)
			}
		}
	}

	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
	}
	for _, h := range hooks {
		if err := h.before("metrics:before_"+h.op, before); err != nil {
			return fmt.Errorf("registering %s callback: %w", h.op, err)
		}
		if err := h.after("metrics:after_"+h.op, after(h.op)); err != nil {
			return fmt.Errorf("registering %s callback: %w", h.op, err)
		}
	}
	return nil
}

// ReportPoolStats updates the open connection gauge every interval until stop is closed.
func ReportPoolStats(db *gorm.DB, m *metrics.Collector, interval time.Duration, stop <-chan struct{}) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.DBConnections.Set(float64(sqlDB.Stats().OpenConnections))
		case <-stop:
			return
		}
	}
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"auth", "clinical", "screening", "audit"} // logical namespace
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.Profile{},
		&domain.AuditLog{},
		&patient.Patient{},
		&cycle.Cycle{},
		&screening.Record{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db, log); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB, log *zap.Logger) error {
	indexes := []struct {
		name     string
		query    string
		required bool
	}{
		{
			name:     "idx_cycles_single_active",
			query:    `CREATE UNIQUE INDEX IF NOT EXISTS idx_cycles_single_active ON screening.cycles (active) WHERE active`,
			required: true,
		},
		// Patient search: trigram index for ILIKE on code and name fields
		{
			name:  "idx_patients_search_trgm",
			query: `CREATE INDEX IF NOT EXISTS idx_patients_search_trgm ON clinical.patients USING gin ((child_code || ' ' || first_name || ' ' || last_name) gin_trgm_ops)`,
		},
		{
			name:  "idx_records_patient",
			query: `CREATE INDEX IF NOT EXISTS idx_records_patient ON screening.records (patient_id)`,
		},
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
		log.Warn("pg_trgm extension unavailable, search index skipped", zap.Error(err))
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			if idx.required {
				return fmt.Errorf("%s: %w", idx.name, err)
			}
			log.Warn("optional index not created", zap.String("index", idx.name), zap.Error(err))
		}
	}

	return nil
}
