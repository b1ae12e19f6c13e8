package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/identity"
)

type userFixture struct {
	*fixture
	identity *fakeIdentity
	profiles *mockProfileRepo
	cache    *cache.Store[*domain.Profile]
	svc      *UserService
}

func newUserFixture(t *testing.T) *userFixture {
	f := newFixture(t)
	uf := &userFixture{
		fixture:  f,
		identity: &fakeIdentity{},
		profiles: newMockProfileRepo(),
		cache:    cache.New[*domain.Profile]("profiles", time.Minute, nil),
	}
	uf.svc = NewUserService(uf.identity, uf.profiles, uf.cache, f.publisher, f.audit, f.metrics, f.log)
	return uf
}

func sectionPtr(s domain.Section) *domain.Section { return &s }

func TestCreateUser_ForwardsCallerToken(t *testing.T) {
	f := newUserFixture(t)

	creds, err := f.svc.CreateUser(context.Background(), &CreateUserCommand{
		FirstName: " Kofi ",
		LastName:  "Boateng",
		Email:     "Kofi@Clinic.org",
		Password:  "secret1",
		Role:      domain.RoleClinician,
		Section:   sectionPtr(domain.SectionLaboratory),
	}, adminActor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if creds.Email != "kofi@clinic.org" || creds.FullName != "Kofi Boateng" || creds.Password != "secret1" {
		t.Errorf("unexpected credentials %+v", creds)
	}
	if len(f.identity.tokens) != 1 || f.identity.tokens[0] != adminActor.Token {
		t.Errorf("expected caller token to be forwarded, got %v", f.identity.tokens)
	}
	req := f.identity.created[0]
	if req.AssignedSection == nil || *req.AssignedSection != domain.SectionLaboratory {
		t.Errorf("expected section 2 to be sent, got %v", req.AssignedSection)
	}
}

func TestCreateUser_AdminHasNoSection(t *testing.T) {
	f := newUserFixture(t)

	creds, err := f.svc.CreateUser(context.Background(), &CreateUserCommand{
		FirstName: "Efua", LastName: "Owusu", Email: "efua@clinic.org", Password: "secret1",
		Role: domain.RoleAdmin, Section: sectionPtr(domain.SectionVitals),
	}, adminActor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if creds.Section != nil || f.identity.created[0].AssignedSection != nil {
		t.Error("admin accounts must not carry a section")
	}
}

func TestCreateUser_ValidationBeforeRemoteCall(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.svc.CreateUser(context.Background(), &CreateUserCommand{
		FirstName: "Kofi", LastName: "Boateng", Email: "not-an-email", Password: "abc",
		Role: domain.RoleClinician,
	}, adminActor)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 3 {
		t.Errorf("expected email, password and section errors, got %v", ve.Fields)
	}
	if len(f.identity.tokens) != 0 {
		t.Error("remote call must not be made for invalid input")
	}
}

func TestCreateUser_RemoteErrorPassedThrough(t *testing.T) {
	f := newUserFixture(t)
	f.identity.createErr = &identity.RemoteError{
		Status:  http.StatusConflict,
		Message: "A user with this email address has already been registered",
	}

	_, err := f.svc.CreateUser(context.Background(), &CreateUserCommand{
		FirstName: "Kofi", LastName: "Boateng", Email: "kofi@clinic.org", Password: "secret1",
		Role: domain.RoleAdmin,
	}, adminActor)

	var re *identity.RemoteError
	if !errors.As(err, &re) || err.Error() != "A user with this email address has already been registered" {
		t.Errorf("expected remote message verbatim, got %v", err)
	}
}

func TestCreateUser_AdminOnly(t *testing.T) {
	f := newUserFixture(t)
	_, err := f.svc.CreateUser(context.Background(), &CreateUserCommand{}, clinician(1))
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestResetPassword_ShortPasswordNeverSent(t *testing.T) {
	f := newUserFixture(t)

	err := f.svc.ResetPassword(context.Background(), uuid.New(), "12345", adminActor)
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if f.identity.resets != 0 {
		t.Error("remote call must not be made")
	}

	// Six bytes but three characters.
	err = f.svc.ResetPassword(context.Background(), uuid.New(), "ééé", adminActor)
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort for multibyte password, got %v", err)
	}
	if f.identity.resets != 0 {
		t.Error("remote call must not be made")
	}

	if err := f.svc.ResetPassword(context.Background(), uuid.New(), "123456", adminActor); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if f.identity.resets != 1 {
		t.Errorf("expected one remote call, got %d", f.identity.resets)
	}
}

func TestDeleteUser_Full(t *testing.T) {
	f := newUserFixture(t)
	id := uuid.New()

	outcome, err := f.svc.DeleteUser(context.Background(), id, adminActor)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if outcome != DeletedFully {
		t.Errorf("expected deleted_fully, got %s", outcome)
	}
	if len(f.profiles.deleted) != 0 {
		t.Error("profile fallback must not run when the remote call succeeds")
	}
}

func TestDeleteUser_FallsBackToProfile(t *testing.T) {
	for name, remoteErr := range map[string]error{
		"remote error": &identity.RemoteError{Status: http.StatusNotFound, Message: "User not found"},
		"unavailable":  identity.ErrUnavailable,
		"timeout":      domain.ErrTimeout,
	} {
		t.Run(name, func(t *testing.T) {
			f := newUserFixture(t)
			id := uuid.New()
			f.profiles.profiles[id] = &domain.Profile{ID: id, FullName: "Kofi", Role: domain.RoleClinician}
			f.identity.deleteErr = remoteErr

			outcome, err := f.svc.DeleteUser(context.Background(), id, adminActor)
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if outcome != DeletedPartially {
				t.Errorf("expected deleted_partially, got %s", outcome)
			}
			if len(f.profiles.deleted) != 1 || f.profiles.deleted[0] != id {
				t.Errorf("expected profile %s to be removed, got %v", id, f.profiles.deleted)
			}
			if got := testutil.ToFloat64(f.metrics.UserDeletionsTotal.WithLabelValues("deleted_partially")); got != 1 {
				t.Errorf("expected partial deletion metric, got %v", got)
			}
		})
	}
}

func TestDeleteUser_FallbackFailure(t *testing.T) {
	f := newUserFixture(t)
	f.identity.deleteErr = identity.ErrUnavailable
	f.profiles.err = errors.New("connection refused")

	if _, err := f.svc.DeleteUser(context.Background(), uuid.New(), adminActor); err == nil {
		t.Fatal("expected error when both deletions fail")
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newUserFixture(t)
	id := uuid.New()
	f.profiles.profiles[id] = &domain.Profile{ID: id, FullName: "Kofi", Role: domain.RoleClinician, Section: sectionPtr(1)}
	f.cache.Set(id.String(), f.profiles.profiles[id])

	admin := domain.RoleAdmin
	p, err := f.svc.UpdateProfile(context.Background(), id, &UpdateProfileCommand{Role: &admin}, adminActor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Section != nil {
		t.Error("promoting to admin must clear the section")
	}
	if _, ok := f.cache.Get(id.String()); ok {
		t.Error("expected cached profile to be dropped")
	}

	clin := domain.RoleClinician
	_, err = f.svc.UpdateProfile(context.Background(), id, &UpdateProfileCommand{Role: &clin}, adminActor)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for clinician without section, got %v", err)
	}
}
