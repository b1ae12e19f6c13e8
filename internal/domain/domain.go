package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ErrTimeout marks a call to the database or a privileged function that did
// not complete before its deadline.
var ErrTimeout = errors.New("remote call timed out")

// WrapTimeout converts context deadline errors into ErrTimeout and leaves
// everything else untouched.
func WrapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleClinician Role = "clinician"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleClinician:
		return true
	}
	return false
}

// Section is one of the three sequential clinical sub-forms:
// 1 vitals/exam, 2 laboratory, 3 diagnosis.
type Section int

const (
	SectionVitals     Section = 1
	SectionLaboratory Section = 2
	SectionDiagnosis  Section = 3
)

var AllSections = []Section{SectionVitals, SectionLaboratory, SectionDiagnosis}

func (s Section) IsValid() bool {
	return s >= SectionVitals && s <= SectionDiagnosis
}

func (s Section) String() string {
	return strconv.Itoa(int(s))
}

func ParseSection(raw string) (Section, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || !Section(n).IsValid() {
		return 0, fmt.Errorf("invalid section %q: must be 1, 2 or 3", raw)
	}
	return Section(n), nil
}

type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	Email        string `gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null"`

	IsActive          bool       `gorm:"column:is_active;default:true;index"`
	FailedLoginCount  int        `gorm:"column:failed_login_count;default:0"`
	LockedUntil       *time.Time `gorm:"column:locked_until"`
	LastLoginAt       *time.Time `gorm:"column:last_login_at"`
	PasswordChangedAt time.Time  `gorm:"column:password_changed_at"`
}

func (User) TableName() string {
	return "auth.users"
}

// IsLocked returns true if the account is temporarily locked due to failed logins.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().Before(*u.LockedUntil)
}

// Profile is the staff metadata layered over an auth.users account. The
// profile ID is the user ID.
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	FullName string   `gorm:"column:full_name;type:varchar(200);not null" json:"full_name"`
	Role     Role     `gorm:"column:role;type:varchar(20);not null;index" json:"role"`
	Section  *Section `gorm:"column:section" json:"section"`
	Centre   *string  `gorm:"column:centre;type:varchar(200)" json:"centre,omitempty"`
}

func (Profile) TableName() string {
	return "public.profiles"
}

// Normalize clears the section of admins; only clinicians carry one.
func (p *Profile) Normalize() {
	if p.Role == RoleAdmin {
		p.Section = nil
	}
}

// StaffMember is a profile joined with its account email, as listed to admins.
type StaffMember struct {
	Profile
	Email string `gorm:"column:email" json:"email"`
}

type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionRead   AuditAction = "read"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
	ActionLogin  AuditAction = "login"
	ActionLogout AuditAction = "logout"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(20);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID  string `gorm:"column:request_id;type:varchar(50);index"`
	StatusCode int    `gorm:"column:status_code"`

	Changes datatypes.JSON `gorm:"column:changes;type:jsonb"`
}

func (AuditLog) TableName() string {
	return "audit.logs"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID uuid.UUID `json:"sub"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}
