package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/events"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/patientcsv"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

var tracer = otel.Tracer("github.com/dmehra2102/prod-golang-projects/childscreen/internal/service")

// Archiver uploads an export and returns where it was stored.
type Archiver interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// ImportPreview is a validated, normalized import waiting for confirmation.
type ImportPreview struct {
	ID        uuid.UUID        `json:"preview_id"`
	Rows      []patientcsv.Row `json:"rows"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedBy uuid.UUID        `json:"-"`
}

type PatientService struct {
	repo      patient.Repository
	lists     *cache.Store[[]*patient.Summary]
	previews  *cache.Store[*ImportPreview]
	previewTT time.Duration
	archiver  Archiver
	publisher events.Publisher
	auditSvc  *AuditService
	metrics   *metrics.Collector
	log       *zap.Logger
	now       func() time.Time
}

type PatientServiceDeps struct {
	Repo       patient.Repository
	Lists      *cache.Store[[]*patient.Summary]
	Previews   *cache.Store[*ImportPreview]
	PreviewTTL time.Duration
	// Archiver may be nil when no bucket is configured.
	Archiver  Archiver
	Publisher events.Publisher
	AuditSvc  *AuditService
	Metrics   *metrics.Collector
	Log       *zap.Logger
}

func NewPatientService(d PatientServiceDeps) *PatientService {
	return &PatientService{
		repo:      d.Repo,
		lists:     d.Lists,
		previews:  d.Previews,
		previewTT: d.PreviewTTL,
		archiver:  d.Archiver,
		publisher: d.Publisher,
		auditSvc:  d.AuditSvc,
		metrics:   d.Metrics,
		log:       d.Log,
		now:       time.Now,
	}
}

// ListPatients returns patients newest first with their screening counts.
// Results may be up to one cache TTL stale.
func (s *PatientService) ListPatients(ctx context.Context, q *patient.ListPatientsQuery) ([]*patient.Summary, error) {
	return s.lists.Load(ctx, q.CacheKey(), func(ctx context.Context) ([]*patient.Summary, error) {
		return s.repo.List(ctx, q)
	})
}

// InvalidateList drops cached patient lists, e.g. after a screening changes a count.
func (s *PatientService) InvalidateList() {
	s.lists.Invalidate()
}

func (s *PatientService) CreatePatient(ctx context.Context, fields patient.Fields, actor Actor) (*patient.Patient, error) {
	if errs := fields.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	p := fields.Normalize().ToPatient()
	p.CreatedBy = actor.UserID

	taken, err := s.repo.ExistingChildCodes(ctx, []string{p.ChildCode}, nil)
	if err != nil {
		s.log.Error("failed to check child code uniqueness", zap.Error(err))
		return nil, fmt.Errorf("checking uniqueness: %w", err)
	}
	if len(taken) > 0 {
		return nil, patient.ErrPatientAlreadyExists
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.log.Error("failed to create patient", zap.Error(err))
		return nil, fmt.Errorf("creating patient: %w", err)
	}
	s.lists.Invalidate()
	s.metrics.PatientsCreatedTotal.Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionCreate,
		ResourceType: "patient",
		ResourceID:   p.ChildCode,
	})
	s.publish(ctx, events.New(events.PatientCreated, actor.UserID, "patient", p.ChildCode, patient.FieldsOf(p)))

	s.log.Info("patient created",
		zap.String("child_code", p.ChildCode),
		zap.String("created_by", actor.UserID.String()),
	)

	return p, nil
}

// UpdatePatient applies a partial update to the patient identified by childCode.
func (s *PatientService) UpdatePatient(ctx context.Context, childCode string, cmd *patient.UpdatePatientCommand, actor Actor) (*patient.Patient, error) {
	p, err := s.repo.GetByChildCode(ctx, patient.NormalizeChildCode(childCode))
	if err != nil {
		return nil, err
	}

	before := patient.FieldsOf(p)
	fields := before
	if cmd.ChildCode != nil {
		fields.ChildCode = *cmd.ChildCode
	}
	if cmd.FirstName != nil {
		fields.FirstName = *cmd.FirstName
	}
	if cmd.LastName != nil {
		fields.LastName = *cmd.LastName
	}
	if cmd.Community != nil {
		fields.Community = *cmd.Community
	}
	if cmd.DateOfBirth != nil {
		fields.DateOfBirth = *cmd.DateOfBirth
	}
	if cmd.Sex != nil {
		fields.Sex = *cmd.Sex
	}

	if errs := fields.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	after := fields.Normalize()

	if after.ChildCode != before.ChildCode {
		taken, err := s.repo.ExistingChildCodes(ctx, []string{after.ChildCode}, &p.ID)
		if err != nil {
			return nil, fmt.Errorf("checking uniqueness: %w", err)
		}
		if len(taken) > 0 {
			return nil, patient.ErrPatientAlreadyExists
		}
	}

	updated := after.ToPatient()
	updated.ID = p.ID
	updated.CreatedAt = p.CreatedAt
	updated.CreatedBy = p.CreatedBy

	if err := s.repo.Save(ctx, updated); err != nil {
		s.log.Error("failed to update patient", zap.String("child_code", before.ChildCode), zap.Error(err))
		return nil, fmt.Errorf("updating patient: %w", err)
	}
	s.lists.Invalidate()

	changes := map[string]patient.Fields{"before": before, "after": after}
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionUpdate,
		ResourceType: "patient",
		ResourceID:   after.ChildCode,
		Changes:      changes,
	})
	s.publish(ctx, events.New(events.PatientUpdated, actor.UserID, "patient", after.ChildCode, changes))

	return updated, nil
}

// BulkDelete removes the patients with the given codes. An empty set is a no-op.
func (s *PatientService) BulkDelete(ctx context.Context, childCodes []string, actor Actor) (int64, error) {
	if !actor.IsAdmin() {
		return 0, ErrForbidden
	}

	codes := lo.Uniq(lo.FilterMap(childCodes, func(c string, _ int) (string, bool) {
		n := patient.NormalizeChildCode(c)
		return n, n != ""
	}))
	if len(codes) == 0 {
		return 0, nil
	}

	deleted, err := s.repo.DeleteByChildCodes(ctx, codes)
	if err != nil {
		s.log.Error("failed to delete patients", zap.Int("count", len(codes)), zap.Error(err))
		return 0, fmt.Errorf("deleting patients: %w", err)
	}
	s.lists.Invalidate()
	s.metrics.PatientsDeletedTotal.Add(float64(deleted))

	for _, code := range codes {
		s.auditSvc.LogAsync(ctx, AuditEntry{
			Actor:        actor,
			Action:       domain.ActionDelete,
			ResourceType: "patient",
			ResourceID:   code,
		})
	}
	s.publish(ctx, events.New(events.PatientsDeleted, actor.UserID, "patient", "", map[string]any{"child_codes": codes}))

	s.log.Info("patients deleted",
		zap.Int64("deleted", deleted),
		zap.Int("requested", len(codes)),
		zap.String("deleted_by", actor.UserID.String()),
	)

	return deleted, nil
}

// PreviewImport parses and validates an import file. Nothing is written; the
// normalized rows are held until CommitImport or until the preview expires.
func (s *PatientService) PreviewImport(ctx context.Context, r io.Reader, actor Actor) (*ImportPreview, error) {
	ctx, span := tracer.Start(ctx, "PatientService.PreviewImport")
	defer span.End()

	rows, err := patientcsv.Parse(r)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("import.rows", len(rows)))

	codes := lo.Map(rows, func(r patientcsv.Row, _ int) string { return r.ChildCode })
	taken, err := s.repo.ExistingChildCodes(ctx, codes, nil)
	if err != nil {
		return nil, fmt.Errorf("checking uniqueness: %w", err)
	}
	if len(taken) > 0 {
		exists := lo.SliceToMap(taken, func(c string) (string, struct{}) { return c, struct{}{} })
		var rowErrs patientcsv.RowErrors
		for _, row := range rows {
			if _, ok := exists[row.ChildCode]; ok {
				rowErrs = append(rowErrs, patientcsv.RowError{
					Line:      row.Line,
					ChildCode: row.ChildCode,
					Messages:  []string{"child_code " + row.ChildCode + " already exists"},
				})
			}
		}
		return nil, rowErrs
	}

	preview := &ImportPreview{
		ID:        uuid.New(),
		Rows:      rows,
		ExpiresAt: s.now().Add(s.previewTT),
		CreatedBy: actor.UserID,
	}
	s.previews.Set(preview.ID.String(), preview)

	s.log.Info("patient import previewed",
		zap.String("preview_id", preview.ID.String()),
		zap.Int("rows", len(rows)),
	)
	return preview, nil
}

// CommitImport writes a previewed import in one transaction.
func (s *PatientService) CommitImport(ctx context.Context, previewID uuid.UUID, actor Actor) (int, error) {
	ctx, span := tracer.Start(ctx, "PatientService.CommitImport")
	defer span.End()

	preview, ok := s.previews.Get(previewID.String())
	if !ok || preview.CreatedBy != actor.UserID {
		return 0, ErrPreviewNotFound
	}

	patients := lo.Map(preview.Rows, func(r patientcsv.Row, _ int) *patient.Patient {
		p := r.ToPatient()
		p.CreatedBy = actor.UserID
		return p
	})

	if err := s.repo.CreateBatch(ctx, patients); err != nil {
		s.log.Error("failed to commit patient import",
			zap.String("preview_id", previewID.String()),
			zap.Error(err),
		)
		return 0, fmt.Errorf("importing patients: %w", err)
	}
	s.previews.Delete(previewID.String())
	s.lists.Invalidate()
	s.metrics.PatientsImportedTotal.Add(float64(len(patients)))
	span.SetAttributes(attribute.Int("import.rows", len(patients)))

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionCreate,
		ResourceType: "patient_import",
		ResourceID:   previewID.String(),
		Changes:      map[string]int{"rows": len(patients)},
	})
	s.publish(ctx, events.New(events.PatientsImported, actor.UserID, "patient_import", previewID.String(),
		map[string]int{"rows": len(patients)}))

	s.log.Info("patient import committed",
		zap.String("preview_id", previewID.String()),
		zap.Int("rows", len(patients)),
	)
	return len(patients), nil
}

// Export writes every patient as CSV.
func (s *PatientService) Export(ctx context.Context, w io.Writer) error {
	ctx, span := tracer.Start(ctx, "PatientService.Export")
	defer span.End()

	patients, err := s.repo.List(ctx, &patient.ListPatientsQuery{})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("export.rows", len(patients)))
	return patientcsv.Write(w, patients)
}

// ArchiveExport stores a CSV export in the configured bucket and returns its key.
func (s *PatientService) ArchiveExport(ctx context.Context, actor Actor) (string, error) {
	if s.archiver == nil {
		return "", ErrArchiveDisabled
	}

	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		return "", err
	}

	name := fmt.Sprintf("patients-%s.csv", s.now().UTC().Format("20060102T150405Z"))
	key, err := s.archiver.Put(ctx, name, buf.Bytes())
	if err != nil {
		s.log.Error("failed to archive patient export", zap.Error(err))
		return "", err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionRead,
		ResourceType: "patient_export",
		ResourceID:   key,
	})
	return key, nil
}

func (s *PatientService) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
