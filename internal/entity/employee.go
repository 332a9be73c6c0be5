package entity

import "time"

// Role of an employee inside a company. Hierarchical companies carry all
// three roles; collective companies are worker-only peer groups.
type Role string

const (
	RoleCEO     Role = "ceo"
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleCEO, RoleManager, RoleWorker:
		return true
	}
	return false
}

// RoleForSlot maps a roster position to its default role: slot 0 is the
// CEO, the next three are managers, everyone after works the line.
// Collective rosters have no hierarchy at all.
func RoleForSlot(t Topology, position int) Role {
	if t == TopologyCollective {
		return RoleWorker
	}
	switch {
	case position == 0:
		return RoleCEO
	case position <= 3:
		return RoleManager
	default:
		return RoleWorker
	}
}

// AuthorityLevel orders roles for escalation purposes.
func (r Role) AuthorityLevel() int {
	switch r {
	case RoleCEO:
		return 3
	case RoleManager:
		return 2
	default:
		return 1
	}
}

// EmployeeStatus is transient, observational state the scheduler overwrites
// each round for external observers. Nothing in decision routing depends on it.
type EmployeeStatus string

const (
	StatusIdle     EmployeeStatus = "idle"
	StatusThinking EmployeeStatus = "thinking"
	StatusActive   EmployeeStatus = "active"
)

// Employee is a single AI-driven decision agent. Personality and DecisionStyle
// are free-form trait strings woven into the agent's prompt.
type Employee struct {
	ID            string         `json:"id"`
	CompanyID     string         `json:"company_id"`
	Name          string         `json:"name"`
	Role          Role           `json:"role"`
	Status        EmployeeStatus `json:"status"`
	Personality   string         `json:"personality"`
	DecisionStyle string         `json:"decision_style"`
	Level         int            `json:"level"`
	Experience    int            `json:"experience"`

	// Cumulative counters, updated when decisions this employee initiated
	// reach a terminal state.
	DecisionsMade     int `json:"decisions_made"`
	DecisionsApproved int `json:"decisions_approved"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SuccessRate is the share of this employee's resolved decisions that were
// approved. Zero when nothing has resolved yet.
func (e *Employee) SuccessRate() float64 {
	if e.DecisionsMade == 0 {
		return 0
	}
	return float64(e.DecisionsApproved) / float64(e.DecisionsMade)
}
