package patient

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TitleCase lower-cases the input, capitalises the first letter of every word
// and collapses runs of whitespace. Applying it twice yields the same value.
func TitleCase(s string) string {
	// A Caser is stateful, so each call gets its own.
	return cases.Title(language.Und).String(strings.ToLower(strings.Join(strings.Fields(s), " ")))
}

// NormalizeChildCode upper-cases the identifier and strips all whitespace.
func NormalizeChildCode(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// ParseSex accepts M, F, Male or Female in any letter case.
func ParseSex(s string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male":
		return SexMale, nil
	case "f", "female":
		return SexFemale, nil
	}
	return "", ErrInvalidSex
}

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	time.RFC3339,
}

// ParseDateOfBirth parses a calendar date. Future dates are accepted.
func ParseDateOfBirth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, ErrInvalidDateOfBirth
}

// Fields is the string form of a patient as it arrives from a form or a CSV row.
type Fields struct {
	ChildCode   string `json:"child_code"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Community   string `json:"community"`
	DateOfBirth string `json:"birthdate"`
	Sex         string `json:"gender"`
}

// Validate reports every problem with the raw fields, keyed by field name.
func (f Fields) Validate() []string {
	var errs []string

	if NormalizeChildCode(f.ChildCode) == "" {
		errs = append(errs, "child_code is required")
	}
	if strings.TrimSpace(f.FirstName) == "" {
		errs = append(errs, "first_name is required")
	}
	if strings.TrimSpace(f.LastName) == "" {
		errs = append(errs, "last_name is required")
	}
	if strings.TrimSpace(f.Community) == "" {
		errs = append(errs, "community is required")
	}
	if strings.TrimSpace(f.DateOfBirth) == "" {
		errs = append(errs, "birthdate is required")
	} else if _, err := ParseDateOfBirth(f.DateOfBirth); err != nil {
		errs = append(errs, "birthdate is not a valid date")
	}
	if strings.TrimSpace(f.Sex) == "" {
		errs = append(errs, "gender is required")
	} else if _, err := ParseSex(f.Sex); err != nil {
		errs = append(errs, "gender must be M, F, Male or Female")
	}

	return errs
}

// Normalize applies the canonical forms. It must only be called on fields
// that passed Validate.
func (f Fields) Normalize() Fields {
	dob, _ := ParseDateOfBirth(f.DateOfBirth)
	sex, _ := ParseSex(f.Sex)
	return Fields{
		ChildCode:   NormalizeChildCode(f.ChildCode),
		FirstName:   TitleCase(f.FirstName),
		LastName:    TitleCase(f.LastName),
		Community:   TitleCase(f.Community),
		DateOfBirth: dob.Format(DateLayout),
		Sex:         string(sex),
	}
}

// ToPatient builds an unsaved patient from normalized fields.
func (f Fields) ToPatient() *Patient {
	dob, _ := ParseDateOfBirth(f.DateOfBirth)
	return &Patient{
		ChildCode:   f.ChildCode,
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		Community:   f.Community,
		DateOfBirth: dob,
		Sex:         Sex(f.Sex),
	}
}

// FieldsOf returns the string form of a stored patient.
func FieldsOf(p *Patient) Fields {
	return Fields{
		ChildCode:   p.ChildCode,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Community:   p.Community,
		DateOfBirth: p.DateOfBirth.Format(DateLayout),
		Sex:         string(p.Sex),
	}
}
