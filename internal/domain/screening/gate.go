package screening

import "github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"

// GateState classifies a patient for one clinician's section. It is always
// recomputed from the completion flags and never stored.
type GateState string

const (
	GateReady     GateState = "ready"
	GateBlocked   GateState = "blocked"
	GateCompleted GateState = "completed"
	// GateNoPolicy is returned for a section outside 1..3.
	GateNoPolicy GateState = "no_policy"
)

// Flags holds the completion flags of sections 1, 2 and 3 at indexes 0, 1 and 2.
type Flags [3]bool

func (f Flags) Complete(s domain.Section) bool {
	return s.IsValid() && f[s-1]
}

// AllComplete is the derived "fully screened" state.
func (f Flags) AllComplete() bool {
	return f[0] && f[1] && f[2]
}

// Gate decides whether work on section s may start:
//
//	flag[s] set            -> completed
//	s == 1                 -> ready
//	flag[s-1] not set      -> blocked
//	otherwise              -> ready
func Gate(s domain.Section, f Flags) GateState {
	if !s.IsValid() {
		return GateNoPolicy
	}
	if f[s-1] {
		return GateCompleted
	}
	if s == domain.SectionVitals {
		return GateReady
	}
	if !f[s-2] {
		return GateBlocked
	}
	return GateReady
}

// GateAll returns the state of every section, as shown on the admin worklist.
func GateAll(f Flags) map[domain.Section]GateState {
	out := make(map[domain.Section]GateState, len(domain.AllSections))
	for _, s := range domain.AllSections {
		out[s] = Gate(s, f)
	}
	return out
}
