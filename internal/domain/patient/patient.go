package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sex is stored as its canonical single-letter form.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

func (s Sex) IsValid() bool {
	switch s {
	case SexMale, SexFemale:
		return true
	}
	return false
}

// DateLayout is the ISO calendar date format used on the wire and in CSV files.
const DateLayout = "2006-01-02"

type Patient struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	ChildCode   string    `gorm:"column:child_code;type:varchar(50);uniqueIndex;not null"`
	FirstName   string    `gorm:"column:first_name;type:varchar(100);not null"`
	LastName    string    `gorm:"column:last_name;type:varchar(100);not null"`
	Community   string    `gorm:"column:community;type:varchar(150);not null;index"`
	DateOfBirth time.Time `gorm:"column:date_of_birth;type:date;not null"`
	Sex         Sex       `gorm:"column:sex;type:varchar(1);not null;check:sex IN ('M','F')"`

	// Who registered this child
	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Patient) TableName() string {
	return "clinical.patients"
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Age is the child's age in whole years at the given instant.
func (p *Patient) Age(at time.Time) int {
	years := at.Year() - p.DateOfBirth.Year()
	if at.Month() < p.DateOfBirth.Month() ||
		(at.Month() == p.DateOfBirth.Month() && at.Day() < p.DateOfBirth.Day()) {
		years--
	}
	return years
}

// Summary is a patient row joined with the number of screening records it has.
type Summary struct {
	Patient
	ScreenCount int64 `gorm:"column:screen_count"`
}

type CreatePatientCommand struct {
	ChildCode   string
	FirstName   string
	LastName    string
	Community   string
	DateOfBirth string
	Sex         string
	CreatedBy   uuid.UUID
}

type UpdatePatientCommand struct {
	ChildCode   *string
	FirstName   *string
	LastName    *string
	Community   *string
	DateOfBirth *string
	Sex         *string
	UpdatedBy   uuid.UUID
}

// ListPatientsQuery defines filtering for patient list queries. Results are
// always ordered by creation time, newest first.
type ListPatientsQuery struct {
	Search    string // matches child code, first or last name
	Community string
}

// CacheKey identifies the query in the list cache.
func (q ListPatientsQuery) CacheKey() string {
	return "search=" + strings.ToLower(q.Search) + "&community=" + strings.ToLower(q.Community)
}
