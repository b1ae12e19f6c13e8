package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestParseSection(t *testing.T) {
	for _, raw := range []string{"1", "2", "3"} {
		s, err := ParseSection(raw)
		if err != nil {
			t.Fatalf("ParseSection(%q): unexpected error %v", raw, err)
		}
		if s.String() != raw {
			t.Errorf("expected %s, got %s", raw, s)
		}
	}

	for _, raw := range []string{"0", "4", "", "two"} {
		if _, err := ParseSection(raw); err == nil {
			t.Errorf("ParseSection(%q): expected error", raw)
		}
	}
}

func TestProfileNormalize_ClearsAdminSection(t *testing.T) {
	s := SectionLaboratory
	p := &Profile{Role: RoleAdmin, Section: &s}
	p.Normalize()
	if p.Section != nil {
		t.Error("expected admin section to be cleared")
	}

	c := &Profile{Role: RoleClinician, Section: &s}
	c.Normalize()
	if c.Section == nil || *c.Section != SectionLaboratory {
		t.Error("expected clinician section to be kept")
	}
}

func TestWrapTimeout(t *testing.T) {
	err := WrapTimeout(fmt.Errorf("query: %w", context.DeadlineExceeded))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}

	plain := errors.New("boom")
	if WrapTimeout(plain) != plain {
		t.Error("expected non-deadline error to pass through")
	}
	if WrapTimeout(nil) != nil {
		t.Error("expected nil to stay nil")
	}
}
