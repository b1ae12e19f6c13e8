package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/archive"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/events"
	v1 "github.com/dmehra2102/prod-golang-projects/childscreen/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/identity"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/service"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/tracer"
)

// app holds everything the subcommands share. Close releases it in reverse
// order of construction.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	metrics *metrics.Collector
	jwt     *auth.JWTManager

	users    *repository.UserRepository
	profiles *repository.ProfileRepository

	audit     *service.AuditService
	publisher events.Publisher
	services  v1.Services
	authSvc   *service.AuthService
	patients  *service.PatientService

	stopPool chan struct{}
	closers  []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With(zap.String("service", cfg.App.Name), zap.String("version", cfg.App.Version))

	a := &app{cfg: cfg, log: log, stopPool: make(chan struct{})}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	})

	a.metrics = metrics.NewCollector("childscreen", prometheus.DefaultRegisterer)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := database.Instrument(db, a.metrics, log, cfg.Database.SlowQueryThreshold); err != nil {
		a.Close()
		return nil, fmt.Errorf("instrument database: %w", err)
	}
	go database.ReportPoolStats(db, a.metrics, 15*time.Second, a.stopPool)
	a.closers = append(a.closers, func() { close(a.stopPool) })

	a.jwt = auth.NewJWTManager(cfg.JWT)
	timeout := cfg.Remote.CallTimeout
	a.users = repository.NewUserRepository(db, timeout)
	a.profiles = repository.NewProfileRepository(db, timeout)

	if err := a.wireServices(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wireServices(ctx context.Context) error {
	cfg, log, m := a.cfg, a.log, a.metrics
	timeout := cfg.Remote.CallTimeout

	if cfg.Kafka.Enabled() {
		a.publisher = events.NewKafkaPublisher(cfg.Kafka, log)
		log.Info("publishing domain events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		a.publisher = events.Nop{}
	}
	publisher := a.publisher
	a.closers = append(a.closers, func() {
		if err := publisher.Close(); err != nil {
			log.Warn("event publisher close failed", zap.Error(err))
		}
	})

	a.audit = service.NewAuditService(repository.NewAuditRepository(a.db, timeout), m, log)
	auditSvc := a.audit
	a.closers = append(a.closers, auditSvc.Shutdown)

	var archiver service.Archiver
	if cfg.Export.Enabled() {
		arc, err := archive.New(ctx, cfg.Export)
		if err != nil {
			return fmt.Errorf("init export archive: %w", err)
		}
		archiver = arc
	}

	observeCache := func(collection, result string) {
		m.CacheLookups.WithLabelValues(collection, result).Inc()
	}
	observeRemote := func(operation, outcome string) {
		m.RemoteCallsTotal.WithLabelValues(operation, outcome).Inc()
	}

	profileCache := cache.New[*domain.Profile]("profiles", cfg.Cache.ListTTL, observeCache)
	patientRepo := repository.NewPatientRepository(a.db, timeout)

	a.patients = service.NewPatientService(service.PatientServiceDeps{
		Repo:       patientRepo,
		Lists:      cache.New[[]*patient.Summary]("patients", cfg.Cache.ListTTL, observeCache),
		Previews:   cache.New[*service.ImportPreview]("import_previews", cfg.Cache.PreviewTTL, observeCache),
		PreviewTTL: cfg.Cache.PreviewTTL,
		Archiver:   archiver,
		Publisher:  publisher,
		AuditSvc:   auditSvc,
		Metrics:    m,
		Log:        log,
	})

	cycles := service.NewCycleService(
		repository.NewCycleRepository(a.db, timeout),
		cache.New[[]*cycle.Cycle]("cycles", cfg.Cache.ListTTL, observeCache),
		publisher, auditSvc, m, log,
	)

	a.authSvc = service.NewAuthService(a.users, a.profiles, profileCache, a.jwt, auditSvc, log)

	a.services = v1.Services{
		Auth:     a.authSvc,
		Patients: a.patients,
		Cycles:   cycles,
		Screening: service.NewScreeningService(
			repository.NewScreeningRepository(a.db, timeout),
			patientRepo, cycles, a.patients, publisher, auditSvc, m, log,
		),
		Users: service.NewUserService(
			identity.NewClient(cfg.Functions, timeout, observeRemote, log),
			a.profiles, profileCache, publisher, auditSvc, m, log,
		),
	}
	return nil
}

func (a *app) ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
