package service

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

var (
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrNoSectionAssigned is returned to a clinician whose profile carries no section.
	ErrNoSectionAssigned = errors.New("no section assigned to this clinician")

	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPreviewNotFound  = errors.New("import preview not found or expired")
	ErrArchiveDisabled  = errors.New("export archive is not configured")
)

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID    uuid.UUID
	Role      domain.Role
	Section   *domain.Section
	Token     string
	IP        string
	RequestID string
}

func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

type AuditEntry struct {
	Actor        Actor
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	StatusCode   int
	Changes      any
}
