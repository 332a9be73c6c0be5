// Package promptbuilder formats an employee's identity and the company's
// current situation into role-play prompts for decision agents.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

const historyDepth = 3

// Situation is the company snapshot an agent reasons over: funds, roster
// size, the round number and recent activity.
type Situation struct {
	Company         entity.Company
	Round           int64
	RecentDecisions []entity.Decision
	RecentEvents    []entity.Event
}

// PromptBuilder assembles user prompts for decision calls.
type PromptBuilder struct{}

// New creates a PromptBuilder.
func New() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildUserPrompt renders the role-play prompt for one employee's decision of
// the given type.
func (b *PromptBuilder) BuildUserPrompt(emp entity.Employee, sit Situation, decisionType entity.DecisionType) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Who you are\n")
	fmt.Fprintf(&sb, "You are %s, a %s at %s.\n\n", emp.Name, emp.Role, sit.Company.Name)

	fmt.Fprintf(&sb, "## Your traits\n")
	fmt.Fprintf(&sb, "- Personality: %s\n", defaultIfEmpty(emp.Personality, "professional and diligent"))
	fmt.Fprintf(&sb, "- Decision style: %s\n", defaultIfEmpty(emp.DecisionStyle, "data-driven"))
	fmt.Fprintf(&sb, "- Seniority level: %d\n", emp.Level)
	fmt.Fprintf(&sb, "- Experience: %d\n\n", emp.Experience)

	fmt.Fprintf(&sb, "## Company situation\n")
	fmt.Fprintf(&sb, "- Organization: %s (%s)\n", sit.Company.Name, topologyDescription(sit.Company.Topology))
	fmt.Fprintf(&sb, "- Funds: $%s\n", sit.Company.Funds.StringFixed(2))
	fmt.Fprintf(&sb, "- Team size: %d\n", sit.Company.Size)
	fmt.Fprintf(&sb, "- Simulation round: %d\n\n", sit.Round)

	fmt.Fprintf(&sb, "## Your responsibilities\n%s\n\n", roleContext(emp.Role, sit.Company.Topology))

	fmt.Fprintf(&sb, "## Decision required\nType: %s\n\n", decisionType)

	fmt.Fprintf(&sb, "## Recent company decisions\n%s\n", historySummary(sit.RecentDecisions))
	if events := eventSummary(sit.RecentEvents); events != "" {
		fmt.Fprintf(&sb, "\n## Recent events\n%s\n", events)
	}

	fmt.Fprintf(&sb, "\nMake one %s decision as %s, in character, following the response format exactly.", decisionType, emp.Name)

	return sb.String()
}

func roleContext(role entity.Role, topology entity.Topology) string {
	hierarchical := topology == entity.TopologyHierarchical
	switch role {
	case entity.RoleCEO:
		if hierarchical {
			return "As the CEO you hold final authority: set strategic direction, manage the leadership team, own overall performance."
		}
		return "As a coordinator in a flat organization you facilitate collaboration and support autonomous decisions."
	case entity.RoleManager:
		if hierarchical {
			return "As a middle manager you execute strategy, run your team, coordinate across departments and report upward."
		}
		return "As a facilitator you support peers and keep cross-team work moving."
	default:
		if hierarchical {
			return "As a frontline worker you execute assigned tasks and raise suggestions within your scope; important calls go up the chain."
		}
		return "As an autonomous peer you own your decisions and participate in group votes on collaborative matters."
	}
}

func topologyDescription(t entity.Topology) string {
	if t == entity.TopologyHierarchical {
		return "traditional hierarchy, authority concentrated at the top"
	}
	return "flat collective, decisions made by peer vote"
}

func historySummary(decisions []entity.Decision) string {
	if len(decisions) == 0 {
		return "No recent decisions."
	}
	start := 0
	if len(decisions) > historyDepth {
		start = len(decisions) - historyDepth
	}
	var sb strings.Builder
	for i, d := range decisions[start:] {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, d.Status, d.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func eventSummary(events []entity.Event) string {
	if len(events) == 0 {
		return ""
	}
	start := 0
	if len(events) > historyDepth {
		start = len(events) - historyDepth
	}
	var sb strings.Builder
	for _, e := range events[start:] {
		fmt.Fprintf(&sb, "- %s\n", e.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func defaultIfEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
