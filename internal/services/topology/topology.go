// Package topology encodes the two organizational shapes and decides how a
// fresh proposal is routed: resolved on the spot, escalated up the chain or
// put to a vote. Everything here is a pure function of the company, its
// roster and the decision, so it tests in isolation from AI calls.
package topology

import (
	"sort"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

// ActionKind is the routing verdict for a decision.
type ActionKind string

const (
	ActionSelfResolve ActionKind = "self_resolve"
	ActionEscalate    ActionKind = "escalate"
	ActionOpenVote    ActionKind = "open_vote"
)

// Routing tells the lifecycle what to do with a decision. Target is set for
// escalations, Eligible for votes (sorted by employee ID).
type Routing struct {
	Kind     ActionKind
	Target   *entity.Employee
	Eligible []entity.Employee
}

// Engine routes decisions according to company topology.
type Engine struct {
	// escalationThreshold is the minimum importance at which a
	// manager-level decision travels on to the CEO.
	escalationThreshold int
}

// New creates a routing engine. threshold is clamped into 1..3.
func New(threshold int) *Engine {
	if threshold < 1 {
		threshold = 1
	}
	if threshold > 3 {
		threshold = 3
	}
	return &Engine{escalationThreshold: threshold}
}

// Route determines the initial action for a decision freshly proposed by its
// initiator. load carries the number of escalations already assigned to each
// employee this round; manager selection is least-loaded with the
// lexicographically smallest ID breaking ties, so identical inputs always
// pick the same manager.
func (e *Engine) Route(company entity.Company, roster []entity.Employee, d entity.Decision, load map[string]int) Routing {
	if company.Topology == entity.TopologyCollective {
		if d.Type == entity.DecisionCollaborative {
			return Routing{Kind: ActionOpenVote, Eligible: eligibleVoters(roster, d.EmployeeID)}
		}
		// Peers act autonomously on everything that is not collaborative.
		return Routing{Kind: ActionSelfResolve}
	}

	initiator := findEmployee(roster, d.EmployeeID)
	if initiator == nil {
		return Routing{Kind: ActionSelfResolve}
	}
	return e.RouteAt(roster, d, *initiator, load)
}

// RouteAt evaluates the chain from the viewpoint of the employee currently
// holding the decision: workers hand it to a manager, managers pass
// sufficiently important calls to the CEO, the CEO resolves.
func (e *Engine) RouteAt(roster []entity.Employee, d entity.Decision, current entity.Employee, load map[string]int) Routing {
	switch current.Role {
	case entity.RoleWorker:
		if target := pickManager(roster, load); target != nil {
			return Routing{Kind: ActionEscalate, Target: target}
		}
		// No manager on the roster; the CEO is next in line.
		if ceo := findCEO(roster); ceo != nil {
			return Routing{Kind: ActionEscalate, Target: ceo}
		}
		return Routing{Kind: ActionSelfResolve}
	case entity.RoleManager:
		if d.Importance >= e.escalationThreshold {
			if ceo := findCEO(roster); ceo != nil {
				return Routing{Kind: ActionEscalate, Target: ceo}
			}
		}
		return Routing{Kind: ActionSelfResolve}
	default: // CEO resolves without escalation
		return Routing{Kind: ActionSelfResolve}
	}
}

// pickManager returns the active manager with the fewest assigned
// escalations, smallest ID on ties. Nil when the roster has no active
// manager.
func pickManager(roster []entity.Employee, load map[string]int) *entity.Employee {
	var best *entity.Employee
	for i := range roster {
		emp := &roster[i]
		if emp.Role != entity.RoleManager || !emp.IsActive {
			continue
		}
		if best == nil {
			best = emp
			continue
		}
		be, ce := load[best.ID], load[emp.ID]
		if ce < be || (ce == be && emp.ID < best.ID) {
			best = emp
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func findCEO(roster []entity.Employee) *entity.Employee {
	for i := range roster {
		if roster[i].Role == entity.RoleCEO && roster[i].IsActive {
			cp := roster[i]
			return &cp
		}
	}
	return nil
}

func findEmployee(roster []entity.Employee, id string) *entity.Employee {
	for i := range roster {
		if roster[i].ID == id {
			cp := roster[i]
			return &cp
		}
	}
	return nil
}

func eligibleVoters(roster []entity.Employee, initiatorID string) []entity.Employee {
	var eligible []entity.Employee
	for _, emp := range roster {
		if emp.ID == initiatorID || !emp.IsActive {
			continue
		}
		eligible = append(eligible, emp)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible
}
