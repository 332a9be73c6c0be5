package scheduler

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/corpsim/config"
	"github.com/vadiminshakov/corpsim/internal/entity"
)

var firstNames = []string{
	"Ava", "Noah", "Mia", "Liam", "Zoe", "Ethan", "Ruth", "Omar", "Lena", "Kai",
	"Ivy", "Jonas", "Nora", "Felix", "Dana", "Marco", "Priya", "Sven", "Tara", "Hugo",
}

var lastNames = []string{
	"Reyes", "Okafor", "Lindgren", "Tanaka", "Moreau", "Kovacs", "Silva", "Haddad",
	"Novak", "Fischer", "Ortega", "Larsen", "Mbeki", "Petrov", "Quinn", "Weiss",
}

var personalities = []string{
	"analytical and careful",
	"bold and ambitious",
	"collaborative and patient",
	"pragmatic and direct",
	"creative and restless",
	"methodical and calm",
	"skeptical and thorough",
	"optimistic and fast-moving",
}

var decisionStyles = []string{
	"data-driven",
	"intuition-first",
	"consensus-seeking",
	"risk-averse",
	"opportunistic",
	"long-term oriented",
}

// buildCompany assembles a company and its generated roster. Hierarchical
// companies get one CEO, three managers and workers for the rest; collective
// companies are all peers. Seed employee overrides from config are applied
// positionally.
func buildCompany(seed int64, name string, topology entity.Topology, size int, funds decimal.Decimal, overrides []config.SeedEmployee, now time.Time) (entity.Company, []entity.Employee) {
	company := entity.Company{
		ID:        uuid.NewString(),
		Name:      name,
		Topology:  topology,
		Funds:     funds,
		Size:      size,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	rng := rngFor(seed, "roster", name)
	roster := make([]entity.Employee, 0, size)
	for i := 0; i < size; i++ {
		emp := entity.Employee{
			ID:            uuid.NewString(),
			CompanyID:     company.ID,
			Name:          pickName(rng),
			Role:          entity.RoleForSlot(topology, i),
			Status:        entity.StatusIdle,
			Personality:   personalities[rng.Intn(len(personalities))],
			DecisionStyle: decisionStyles[rng.Intn(len(decisionStyles))],
			Level:         1,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if i < len(overrides) {
			applyOverride(&emp, overrides[i])
		}
		roster = append(roster, emp)
	}
	return company, roster
}

func applyOverride(emp *entity.Employee, o config.SeedEmployee) {
	if o.Name != "" {
		emp.Name = o.Name
	}
	if o.Role != "" && entity.ValidRole(o.Role) {
		emp.Role = entity.Role(o.Role)
	}
	if o.Personality != "" {
		emp.Personality = o.Personality
	}
	if o.DecisionStyle != "" {
		emp.DecisionStyle = o.DecisionStyle
	}
	if o.Level > 0 {
		emp.Level = o.Level
	}
}

func pickName(rng *rand.Rand) string {
	return fmt.Sprintf("%s %s", firstNames[rng.Intn(len(firstNames))], lastNames[rng.Intn(len(lastNames))])
}
