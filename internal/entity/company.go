package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topology is the organizational shape of a company. It determines how
// decisions made by employees are routed: up a management chain or to a vote.
type Topology string

const (
	TopologyHierarchical Topology = "hierarchical"
	TopologyCollective   Topology = "collective"
)

// ValidTopology reports whether s names a known topology.
func ValidTopology(s string) bool {
	switch Topology(s) {
	case TopologyHierarchical, TopologyCollective:
		return true
	}
	return false
}

// Company is a competing organization staffed by AI-driven employees.
// Funds never go negative: every deduction clamps at zero and the clamped
// remainder is reported as a shortfall for the caller to record.
type Company struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Topology  Topology        `json:"topology"`
	Funds     decimal.Decimal `json:"funds"`
	Size      int             `json:"size"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ApplyFunds adjusts funds by delta and returns the shortfall, i.e. the part
// of a deduction that could not be covered. Shortfall is zero on credits.
func (c *Company) ApplyFunds(delta decimal.Decimal) decimal.Decimal {
	next := c.Funds.Add(delta)
	if next.Sign() < 0 {
		shortfall := next.Neg()
		c.Funds = decimal.Zero
		return shortfall
	}
	c.Funds = next
	return decimal.Zero
}
