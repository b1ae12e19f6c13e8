package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/session"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
)

const maxFailedAttempts = 5

const lockDuration = 15 * time.Minute

// MinPasswordLength counts characters, not bytes.
const MinPasswordLength = 6

type UserRepository interface {
	// CreateWithProfile inserts the account and its profile in one transaction.
	CreateWithProfile(ctx context.Context, u *domain.User, p *domain.Profile) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool, maxAttempts int, lockFor time.Duration) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	// DeleteWithProfile removes the account and its profile in one transaction.
	DeleteWithProfile(ctx context.Context, id uuid.UUID) error
}

type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	List(ctx context.Context) ([]*domain.StaffMember, error)
	Save(ctx context.Context, p *domain.Profile) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type AuthService struct {
	userRepo    UserRepository
	profileRepo ProfileRepository
	profiles    *cache.Store[*domain.Profile]
	jwtManager  *auth.JWTManager
	auditSvc    *AuditService
	log         *zap.Logger
}

func NewAuthService(
	userRepo UserRepository,
	profileRepo ProfileRepository,
	profiles *cache.Store[*domain.Profile],
	jwtManager *auth.JWTManager,
	auditSvc *AuditService,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		profiles:    profiles,
		jwtManager:  jwtManager,
		auditSvc:    auditSvc,
		log:         log,
	}
}

func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*domain.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return nil, err
		}
		// Hash anyway so response time does not reveal whether the email exists.
		_, _ = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if user.IsLocked() {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		_ = s.userRepo.UpdateLoginAttempt(ctx, user.ID, false, maxFailedAttempts, lockDuration)
		s.log.Warn("failed login attempt",
			zap.String("email", email),
			zap.String("ip", ip),
		)
		return nil, ErrInvalidCredentials
	}

	profile, err := s.profile(ctx, user.ID)
	if err != nil {
		s.log.Warn("login without profile", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, ErrInvalidCredentials
	}

	_ = s.userRepo.UpdateLoginAttempt(ctx, user.ID, true, maxFailedAttempts, lockDuration)

	pair, err := s.jwtManager.GenerateTokenPair(&domain.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   profile.Role,
	})
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        Actor{UserID: user.ID, Role: profile.Role, IP: ip},
		Action:       domain.ActionLogin,
		ResourceType: "session",
		ResourceID:   user.ID.String(),
	})

	s.log.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("ip", ip),
	)

	return pair, nil
}

// RefreshToken issues a new token pair given a valid refresh token.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// Re-validate user is still active
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	profile, err := s.profile(ctx, user.ID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.jwtManager.GenerateTokenPair(&domain.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   profile.Role,
	})
}

// ResolveSession validates an access token and loads the caller's current
// profile. The role in the profile wins over the one in the token.
func (s *AuthService) ResolveSession(ctx context.Context, accessToken string) (*session.Session, error) {
	claims, err := s.jwtManager.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	return &session.Session{
		UserID:      claims.UserID,
		Email:       claims.Email,
		AccessToken: accessToken,
		Profile:     profile,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, actor Actor) {
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionLogout,
		ResourceType: "session",
		ResourceID:   actor.UserID.String(),
	})
}

func (s *AuthService) profile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	return s.profiles.Load(ctx, id.String(), func(ctx context.Context) (*domain.Profile, error) {
		return s.profileRepo.GetByID(ctx, id)
	})
}

// PasswordLongEnough reports whether password has at least MinPasswordLength
// characters.
func PasswordLongEnough(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

func validatePassword(password string) error {
	if !PasswordLongEnough(password) {
		return ErrPasswordTooShort
	}
	return nil
}
