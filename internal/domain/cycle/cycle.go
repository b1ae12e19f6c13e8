package cycle

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cycle is a named, time-boxed screening outreach period. At most one cycle
// is active at a time.
type Cycle struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Name        string     `gorm:"column:name;type:varchar(150);not null" json:"name"`
	Active      bool       `gorm:"column:active;not null;default:false" json:"active"`
	ActivatedAt *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
}

func (Cycle) TableName() string {
	return "screening.cycles"
}

func NormalizeName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ErrCycleNameRequired
	}
	return name, nil
}

// Reconcile picks the cycle that should stay active when more than one is
// observed active. The most recently activated wins; ties and missing
// activation times fall back to UpdatedAt, then CreatedAt. The losers are
// returned as stale. With zero or one active cycle nothing is stale.
func Reconcile(cycles []*Cycle) (winner *Cycle, stale []*Cycle) {
	var active []*Cycle
	for _, c := range cycles {
		if c.Active {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	sort.SliceStable(active, func(i, j int) bool {
		return activationTime(active[i]).After(activationTime(active[j]))
	})
	return active[0], active[1:]
}

func activationTime(c *Cycle) time.Time {
	if c.ActivatedAt != nil {
		return *c.ActivatedAt
	}
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}
