package v1

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/service"
)

type PatientService interface {
	ListPatients(ctx context.Context, q *patient.ListPatientsQuery) ([]*patient.Summary, error)
	CreatePatient(ctx context.Context, fields patient.Fields, actor service.Actor) (*patient.Patient, error)
	UpdatePatient(ctx context.Context, childCode string, cmd *patient.UpdatePatientCommand, actor service.Actor) (*patient.Patient, error)
	BulkDelete(ctx context.Context, childCodes []string, actor service.Actor) (int64, error)
	PreviewImport(ctx context.Context, r io.Reader, actor service.Actor) (*service.ImportPreview, error)
	CommitImport(ctx context.Context, previewID uuid.UUID, actor service.Actor) (int, error)
	Export(ctx context.Context, w io.Writer) error
	ArchiveExport(ctx context.Context, actor service.Actor) (string, error)
}

type CycleService interface {
	ListCycles(ctx context.Context) ([]*cycle.Cycle, error)
	ActiveCycle(ctx context.Context) (*cycle.Cycle, error)
	CreateCycle(ctx context.Context, name string, actor service.Actor) (*cycle.Cycle, error)
	SetActive(ctx context.Context, id uuid.UUID, actor service.Actor) (*cycle.Cycle, error)
	Deactivate(ctx context.Context, id uuid.UUID, actor service.Actor) (*cycle.Cycle, error)
	Rename(ctx context.Context, id uuid.UUID, name string, actor service.Actor) (*cycle.Cycle, error)
	Delete(ctx context.Context, id uuid.UUID, actor service.Actor) error
}

type ScreeningService interface {
	Worklist(ctx context.Context, q *patient.ListPatientsQuery, actor service.Actor) (*service.Worklist, error)
	Summary(ctx context.Context) (*screening.CycleSummary, error)
	GetRecord(ctx context.Context, childCode string, actor service.Actor) (*service.RecordView, error)
	SaveSection(ctx context.Context, childCode string, section domain.Section, payload screening.Payload, actor service.Actor) (*service.RecordView, error)
}

type UserService interface {
	ListUsers(ctx context.Context, actor service.Actor) ([]*domain.StaffMember, error)
	CreateUser(ctx context.Context, cmd *service.CreateUserCommand, actor service.Actor) (*service.Credentials, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, cmd *service.UpdateProfileCommand, actor service.Actor) (*domain.Profile, error)
	ResetPassword(ctx context.Context, id uuid.UUID, password string, actor service.Actor) error
	DeleteUser(ctx context.Context, id uuid.UUID, actor service.Actor) (service.DeleteOutcome, error)
}

type AuthService interface {
	Login(ctx context.Context, email, password, ip string) (*domain.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, actor service.Actor)
}

// Services groups what the v1 API needs. Every field is required.
type Services struct {
	Auth      AuthService
	Patients  PatientService
	Cycles    CycleService
	Screening ScreeningService
	Users     UserService
}

type PatientHandler struct {
	svc PatientService
	// maxImportBytes caps the body of an import preview.
	maxImportBytes int64
}

type CycleHandler struct {
	svc CycleService
}

type ScreeningHandler struct {
	svc ScreeningService
}

type UserHandler struct {
	svc UserService
}

type AuthHandler struct {
	svc AuthService
}
