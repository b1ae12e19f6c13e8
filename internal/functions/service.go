// Package functions is the privileged user-management surface. It is the
// only code that writes auth.users; the API server reaches it over HTTP.
package functions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/identity"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/service"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/auth"
)

var (
	ErrNotAdmin      = errors.New("only admins can manage users")
	ErrInvalidInput  = errors.New("invalid input")
	ErrPasswordShort = errors.New("password should be at least 6 characters")
)

type Service struct {
	users      service.UserRepository
	profiles   service.ProfileRepository
	jwtManager *auth.JWTManager
	log        *zap.Logger
}

func NewService(users service.UserRepository, profiles service.ProfileRepository, jwtManager *auth.JWTManager, log *zap.Logger) *Service {
	return &Service{users: users, profiles: profiles, jwtManager: jwtManager, log: log}
}

// Authorize checks that the bearer token belongs to an admin according to
// the stored profile, not the token's claims.
func (s *Service) Authorize(ctx context.Context, token string) (uuid.UUID, error) {
	claims, err := s.jwtManager.ValidateAccessToken(token)
	if err != nil {
		return uuid.Nil, err
	}
	p, err := s.profiles.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return uuid.Nil, err
		}
		return uuid.Nil, ErrNotAdmin
	}
	if p.Role != domain.RoleAdmin {
		return uuid.Nil, ErrNotAdmin
	}
	return claims.UserID, nil
}

func (s *Service) CreateUser(ctx context.Context, req identity.CreateUserRequest) (uuid.UUID, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName))
	if email == "" || name == "" || !req.Role.IsValid() {
		return uuid.Nil, fmt.Errorf("%w: email, name and role are required", ErrInvalidInput)
	}
	if !service.PasswordLongEnough(req.Password) {
		return uuid.Nil, ErrPasswordShort
	}

	profile := &domain.Profile{
		FullName: name,
		Role:     req.Role,
		Section:  req.AssignedSection,
		Centre:   req.Centre,
	}
	profile.Normalize()
	if profile.Role == domain.RoleClinician && (profile.Section == nil || !profile.Section.IsValid()) {
		return uuid.Nil, fmt.Errorf("%w: clinicians need an assigned section of 1, 2 or 3", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &domain.User{
		ID:                uuid.New(),
		Email:             email,
		PasswordHash:      string(hash),
		IsActive:          true,
		PasswordChangedAt: time.Now().UTC(),
	}
	profile.ID = u.ID

	if err := s.users.CreateWithProfile(ctx, u, profile); err != nil {
		return uuid.Nil, err
	}

	s.log.Info("account provisioned", zap.String("user_id", u.ID.String()), zap.String("role", string(profile.Role)))
	return u.ID, nil
}

func (s *Service) ResetPassword(ctx context.Context, req identity.ResetPasswordRequest) error {
	if req.UserID == uuid.Nil {
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if !service.PasswordLongEnough(req.NewPassword) {
		return ErrPasswordShort
	}

	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, req.UserID, string(hash)); err != nil {
		return err
	}

	s.log.Info("password reset", zap.String("user_id", req.UserID.String()))
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, req identity.DeleteUserRequest) error {
	if req.UserID == uuid.Nil {
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if err := s.users.DeleteWithProfile(ctx, req.UserID); err != nil {
		return err
	}

	s.log.Info("account deleted", zap.String("user_id", req.UserID.String()))
	return nil
}
