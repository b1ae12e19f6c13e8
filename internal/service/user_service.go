package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/events"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/identity"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

type IdentityClient interface {
	CreateUser(ctx context.Context, token string, req identity.CreateUserRequest) (uuid.UUID, error)
	ResetPassword(ctx context.Context, token string, userID uuid.UUID, password string) error
	DeleteUser(ctx context.Context, token string, userID uuid.UUID) error
}

// DeleteOutcome tells a full deletion apart from the profile-only fallback.
type DeleteOutcome string

const (
	DeletedFully     DeleteOutcome = "deleted_fully"
	DeletedPartially DeleteOutcome = "deleted_partially"
)

type CreateUserCommand struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      domain.Role
	Section   *domain.Section
	Centre    *string
}

// Credentials are shown to the admin once after creation and never stored.
type Credentials struct {
	UserID   uuid.UUID       `json:"user_id"`
	FullName string          `json:"full_name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     domain.Role     `json:"role"`
	Section  *domain.Section `json:"section"`
}

type UpdateProfileCommand struct {
	FullName *string
	Role     *domain.Role
	Section  *domain.Section
	Centre   *string
}

type UserService struct {
	identity  IdentityClient
	profiles  ProfileRepository
	cache     *cache.Store[*domain.Profile]
	publisher events.Publisher
	auditSvc  *AuditService
	metrics   *metrics.Collector
	log       *zap.Logger
}

func NewUserService(
	identity IdentityClient,
	profiles ProfileRepository,
	profileCache *cache.Store[*domain.Profile],
	publisher events.Publisher,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *UserService {
	return &UserService{
		identity:  identity,
		profiles:  profiles,
		cache:     profileCache,
		publisher: publisher,
		auditSvc:  auditSvc,
		metrics:   m,
		log:       log,
	}
}

func (s *UserService) ListUsers(ctx context.Context, actor Actor) ([]*domain.StaffMember, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.profiles.List(ctx)
}

// CreateUser provisions the account and profile through the privileged
// functions. Remote failures are returned as *identity.RemoteError.
func (s *UserService) CreateUser(ctx context.Context, cmd *CreateUserCommand, actor Actor) (*Credentials, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	cmd.FirstName = strings.TrimSpace(cmd.FirstName)
	cmd.LastName = strings.TrimSpace(cmd.LastName)
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	if cmd.Role == domain.RoleAdmin {
		cmd.Section = nil
	}
	if errs := validateCreateUser(cmd); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	id, err := s.identity.CreateUser(ctx, actor.Token, identity.CreateUserRequest{
		FirstName:       cmd.FirstName,
		LastName:        cmd.LastName,
		Email:           cmd.Email,
		Password:        cmd.Password,
		Role:            cmd.Role,
		AssignedSection: cmd.Section,
		Centre:          cmd.Centre,
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionCreate,
		ResourceType: "user",
		ResourceID:   id.String(),
		Changes:      map[string]any{"email": cmd.Email, "role": cmd.Role, "section": cmd.Section},
	})
	s.publish(ctx, events.New(events.UserCreated, actor.UserID, "user", id.String(),
		map[string]any{"role": cmd.Role, "section": cmd.Section}))

	s.log.Info("user created",
		zap.String("user_id", id.String()),
		zap.String("role", string(cmd.Role)),
		zap.String("created_by", actor.UserID.String()),
	)

	return &Credentials{
		UserID:   id,
		FullName: cmd.FirstName + " " + cmd.LastName,
		Email:    cmd.Email,
		Password: cmd.Password,
		Role:     cmd.Role,
		Section:  cmd.Section,
	}, nil
}

// UpdateProfile edits role, section, centre or name. Switching to admin
// clears the section; a clinician must end up with one.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, cmd *UpdateProfileCommand, actor Actor) (*domain.Profile, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if cmd.FullName != nil {
		p.FullName = strings.TrimSpace(*cmd.FullName)
	}
	if cmd.Role != nil {
		p.Role = *cmd.Role
	}
	if cmd.Section != nil {
		p.Section = cmd.Section
	}
	if cmd.Centre != nil {
		if c := strings.TrimSpace(*cmd.Centre); c != "" {
			p.Centre = &c
		} else {
			p.Centre = nil
		}
	}
	p.Normalize()

	var errs []string
	if p.FullName == "" {
		errs = append(errs, "full_name is required")
	}
	if !p.Role.IsValid() {
		errs = append(errs, "role must be admin or clinician")
	}
	if p.Role == domain.RoleClinician && (p.Section == nil || !p.Section.IsValid()) {
		errs = append(errs, "section must be 1, 2 or 3 for clinicians")
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	if err := s.profiles.Save(ctx, p); err != nil {
		s.log.Error("failed to update profile", zap.String("user_id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	s.cache.Delete(id.String())

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionUpdate,
		ResourceType: "user",
		ResourceID:   id.String(),
		Changes:      p,
	})
	return p, nil
}

func (s *UserService) ResetPassword(ctx context.Context, id uuid.UUID, password string, actor Actor) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	if err := s.identity.ResetPassword(ctx, actor.Token, id, password); err != nil {
		return err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionUpdate,
		ResourceType: "user_password",
		ResourceID:   id.String(),
	})
	return nil
}

// DeleteUser removes the account through the privileged function. If that
// call fails for any reason, only the profile is removed and the account is
// left behind; the caller sees DeletedPartially.
func (s *UserService) DeleteUser(ctx context.Context, id uuid.UUID, actor Actor) (DeleteOutcome, error) {
	if !actor.IsAdmin() {
		return "", ErrForbidden
	}

	outcome := DeletedFully
	if remoteErr := s.identity.DeleteUser(ctx, actor.Token, id); remoteErr != nil {
		if err := s.profiles.Delete(ctx, id); err != nil {
			s.log.Error("profile fallback delete failed",
				zap.String("user_id", id.String()),
				zap.NamedError("remote_error", remoteErr),
				zap.Error(err),
			)
			return "", err
		}
		outcome = DeletedPartially
		s.log.Warn("user deleted partially: account remains with the identity provider",
			zap.String("user_id", id.String()),
			zap.String("deleted_by", actor.UserID.String()),
			zap.NamedError("remote_error", remoteErr),
		)
	}
	s.cache.Delete(id.String())
	s.metrics.UserDeletionsTotal.WithLabelValues(string(outcome)).Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionDelete,
		ResourceType: "user",
		ResourceID:   id.String(),
		Changes:      map[string]DeleteOutcome{"outcome": outcome},
	})
	s.publish(ctx, events.New(events.UserDeleted, actor.UserID, "user", id.String(),
		map[string]DeleteOutcome{"outcome": outcome}))

	return outcome, nil
}

func (s *UserService) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func validateCreateUser(cmd *CreateUserCommand) []string {
	var errs []string

	if cmd.FirstName == "" {
		errs = append(errs, "first_name is required")
	}
	if cmd.LastName == "" {
		errs = append(errs, "last_name is required")
	}
	if cmd.Email == "" {
		errs = append(errs, "email is required")
	} else if _, err := mail.ParseAddress(cmd.Email); err != nil {
		errs = append(errs, "email is not a valid address")
	}
	if err := validatePassword(cmd.Password); err != nil {
		errs = append(errs, err.Error())
	}
	if !cmd.Role.IsValid() {
		errs = append(errs, "role must be admin or clinician")
	}
	if cmd.Role == domain.RoleClinician && (cmd.Section == nil || !cmd.Section.IsValid()) {
		errs = append(errs, "section must be 1, 2 or 3 for clinicians")
	}

	return errs
}
