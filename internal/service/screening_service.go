package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/events"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

// WorklistItem is one patient's progress in the active cycle. Clinicians get
// State for their own section; admins get States for all three.
type WorklistItem struct {
	ChildCode     string                                 `json:"child_code"`
	FirstName     string                                 `json:"first_name"`
	LastName      string                                 `json:"last_name"`
	Community     string                                 `json:"community"`
	DateOfBirth   string                                 `json:"birthdate"`
	Sex           patient.Sex                            `json:"gender"`
	Age           int                                    `json:"age"`
	Sections      screening.Flags                        `json:"sections"`
	FullyComplete bool                                   `json:"fully_complete"`
	State         screening.GateState                    `json:"state,omitempty"`
	States        map[domain.Section]screening.GateState `json:"states,omitempty"`
}

type Worklist struct {
	Cycle   *cycle.Cycle    `json:"cycle"`
	Section *domain.Section `json:"section,omitempty"`
	Items   []WorklistItem  `json:"items"`
}

// RecordView is a patient's screening record in the active cycle with the
// gate state of every section.
type RecordView struct {
	Patient *patient.Patient
	Cycle   *cycle.Cycle
	Record  *screening.Record
	States  map[domain.Section]screening.GateState
}

type ScreeningService struct {
	repo        screening.Repository
	patientRepo patient.Repository
	cycles      *CycleService
	patients    *PatientService
	publisher   events.Publisher
	auditSvc    *AuditService
	metrics     *metrics.Collector
	log         *zap.Logger
	now         func() time.Time
}

func NewScreeningService(
	repo screening.Repository,
	patientRepo patient.Repository,
	cycles *CycleService,
	patients *PatientService,
	publisher events.Publisher,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *ScreeningService {
	return &ScreeningService{
		repo:        repo,
		patientRepo: patientRepo,
		cycles:      cycles,
		patients:    patients,
		publisher:   publisher,
		auditSvc:    auditSvc,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

// Worklist lists every patient with their progress in the active cycle.
func (s *ScreeningService) Worklist(ctx context.Context, q *patient.ListPatientsQuery, actor Actor) (*Worklist, error) {
	if !actor.IsAdmin() && actor.Section == nil {
		return nil, ErrNoSectionAssigned
	}

	active, err := s.cycles.ActiveCycle(ctx)
	if err != nil {
		return nil, err
	}

	patients, err := s.patients.ListPatients(ctx, q)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListByCycle(ctx, active.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]WorklistItem, 0, len(patients))
	for _, p := range patients {
		var flags screening.Flags
		if r, ok := records[p.ID]; ok {
			flags = r.Flags()
		}

		item := WorklistItem{
			ChildCode:     p.ChildCode,
			FirstName:     p.FirstName,
			LastName:      p.LastName,
			Community:     p.Community,
			DateOfBirth:   p.DateOfBirth.Format(patient.DateLayout),
			Sex:           p.Sex,
			Age:           p.Age(now),
			Sections:      flags,
			FullyComplete: flags.AllComplete(),
		}
		if actor.IsAdmin() {
			item.States = screening.GateAll(flags)
		} else {
			item.State = screening.Gate(*actor.Section, flags)
		}
		items = append(items, item)
	}

	wl := &Worklist{Cycle: active, Items: items}
	if !actor.IsAdmin() {
		wl.Section = actor.Section
	}
	return wl, nil
}

// Summary counts progress across the active cycle.
func (s *ScreeningService) Summary(ctx context.Context) (*screening.CycleSummary, error) {
	active, err := s.cycles.ActiveCycle(ctx)
	if err != nil {
		return nil, err
	}
	patients, err := s.patients.ListPatients(ctx, &patient.ListPatientsQuery{})
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListByCycle(ctx, active.ID)
	if err != nil {
		return nil, err
	}

	sum := &screening.CycleSummary{CycleID: active.ID, Patients: int64(len(patients))}
	for _, r := range records {
		f := r.Flags()
		if f[0] {
			sum.Section1Complete++
		}
		if f[1] {
			sum.Section2Complete++
		}
		if f[2] {
			sum.Section3Complete++
		}
		if f.AllComplete() {
			sum.FullyComplete++
		}
	}
	return sum, nil
}

// GetRecord returns the patient's record in the active cycle, or an empty
// shadow record if nothing has been saved yet.
func (s *ScreeningService) GetRecord(ctx context.Context, childCode string, actor Actor) (*RecordView, error) {
	if !actor.IsAdmin() && actor.Section == nil {
		return nil, ErrNoSectionAssigned
	}

	p, active, rec, err := s.load(ctx, childCode)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionRead,
		ResourceType: "screening",
		ResourceID:   p.ChildCode,
	})

	return &RecordView{Patient: p, Cycle: active, Record: rec, States: screening.GateAll(rec.Flags())}, nil
}

// SaveSection stores a section's form and marks it complete. Clinicians may
// only save their assigned section, and a section cannot be saved while the
// one before it is incomplete.
func (s *ScreeningService) SaveSection(ctx context.Context, childCode string, section domain.Section, payload screening.Payload, actor Actor) (*RecordView, error) {
	ctx, span := tracer.Start(ctx, "ScreeningService.SaveSection")
	defer span.End()
	span.SetAttributes(attribute.Int("screening.section", int(section)))

	if !section.IsValid() {
		return nil, screening.ErrInvalidSection
	}
	if !actor.IsAdmin() {
		if actor.Section == nil {
			return nil, ErrNoSectionAssigned
		}
		if *actor.Section != section {
			return nil, screening.ErrSectionForbidden
		}
	}
	if payload == nil || payload.Section() != section {
		return nil, screening.ErrPayloadMismatch
	}
	if errs := payload.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	p, active, rec, err := s.load(ctx, childCode)
	if err != nil {
		return nil, err
	}

	if screening.Gate(section, rec.Flags()) == screening.GateBlocked {
		return nil, screening.ErrSectionBlocked
	}

	newlyCompleted := rec.Apply(payload, actor.UserID, s.now().UTC())
	if err := s.repo.SaveSection(ctx, rec, section); err != nil {
		s.log.Error("failed to save screening section",
			zap.String("child_code", p.ChildCode),
			zap.Int("section", int(section)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("saving section: %w", err)
	}
	s.patients.InvalidateList()

	if newlyCompleted {
		s.metrics.SectionsCompleted.WithLabelValues(section.String()).Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionUpdate,
		ResourceType: "screening",
		ResourceID:   p.ChildCode,
		Changes:      map[string]any{"section": section, "payload": payload},
	})
	if newlyCompleted {
		ev := events.New(events.ScreeningSectionComplete, actor.UserID, "screening", p.ChildCode, map[string]any{
			"cycle_id":       active.ID,
			"section":        section,
			"fully_complete": rec.FullyComplete(),
		})
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.Warn("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}

	s.log.Info("screening section saved",
		zap.String("child_code", p.ChildCode),
		zap.String("cycle_id", active.ID.String()),
		zap.Int("section", int(section)),
		zap.Bool("newly_completed", newlyCompleted),
	)

	return &RecordView{Patient: p, Cycle: active, Record: rec, States: screening.GateAll(rec.Flags())}, nil
}

func (s *ScreeningService) load(ctx context.Context, childCode string) (*patient.Patient, *cycle.Cycle, *screening.Record, error) {
	active, err := s.cycles.ActiveCycle(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := s.patientRepo.GetByChildCode(ctx, patient.NormalizeChildCode(childCode))
	if err != nil {
		return nil, nil, nil, err
	}

	rec, err := s.repo.Get(ctx, p.ID, active.ID)
	if errors.Is(err, screening.ErrRecordNotFound) {
		rec = screening.NewShadow(p.ID, active.ID)
	} else if err != nil {
		return nil, nil, nil, err
	}
	return p, active, rec, nil
}
