package scheduler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

func TestFundingAmountBoundsAndDeterminism(t *testing.T) {
	base := decimal.NewFromInt(1000)

	for round := int64(1); round <= 50; round++ {
		amount := fundingAmount(42, round, "Acme", base, 10)
		// base * 10 / 10 = 1000, variance 0.8..1.2
		assert.True(t, amount.GreaterThanOrEqual(decimal.NewFromInt(800)), "round %d: %s", round, amount)
		assert.True(t, amount.LessThanOrEqual(decimal.NewFromInt(1200)), "round %d: %s", round, amount)
	}

	a := fundingAmount(42, 3, "Acme", base, 10)
	b := fundingAmount(42, 3, "Acme", base, 10)
	assert.True(t, a.Equal(b))

	c := fundingAmount(43, 3, "Acme", base, 10)
	d := fundingAmount(42, 4, "Acme", base, 10)
	assert.False(t, a.Equal(c) && a.Equal(d), "seed and round must matter")
}

func TestPressurePenalty(t *testing.T) {
	assert.Equal(t, "1000", pressurePenalty(decimal.NewFromInt(500)).String(), "floor applies to small funds")
	assert.Equal(t, "1000", pressurePenalty(decimal.NewFromInt(3000)).String(), "30% of 3000 is below the floor")
	assert.Equal(t, "3000", pressurePenalty(decimal.NewFromInt(10000)).String(), "30% above the floor wins")
}

func TestDecisionCostCharge(t *testing.T) {
	base := decimal.RequireFromString("1.00")

	charge := func(s entity.DecisionStatus) string {
		return decisionCostCharge(entity.Decision{Status: s, AI: entity.Attribution{Cost: base}}).StringFixed(2)
	}

	assert.Equal(t, "0.80", charge(entity.DecisionApproved))
	assert.Equal(t, "1.50", charge(entity.DecisionRejected))
	assert.Equal(t, "1.50", charge(entity.DecisionTied))
	assert.Equal(t, "1.50", charge(entity.DecisionCancelled))
	assert.Equal(t, "1.00", charge(entity.DecisionInProgress))
}

func TestSimulatedVoteDeterministic(t *testing.T) {
	v1 := simulatedVote(1, 5, "d1", "e1", 2, 2)
	v2 := simulatedVote(1, 5, "d1", "e1", 2, 2)
	assert.Equal(t, v1, v2)

	// Over many voters the split must contain both sides; approval sits
	// between the clamps so neither outcome can vanish.
	seen := map[entity.Vote]int{}
	for i := 0; i < 200; i++ {
		seen[simulatedVote(1, 5, "d1", string(rune('a'+i%26))+string(rune('0'+i/26)), 3, 3)]++
	}
	assert.Positive(t, seen[entity.VoteFor])
	assert.Positive(t, seen[entity.VoteAgainst])
}

func TestRollMarketEventImpactWithinCatalogueRange(t *testing.T) {
	hits := 0
	for round := int64(1); round <= 200; round++ {
		ev, impact, ok := rollMarketEvent(9, round, "Acme")
		if !ok {
			continue
		}
		hits++
		assert.True(t, impact.GreaterThanOrEqual(ev.minImpact), "%s: %s", ev.name, impact)
		assert.True(t, impact.LessThanOrEqual(ev.maxImpact), "%s: %s", ev.name, impact)
	}
	assert.Greater(t, hits, 20, "roughly 30%% of rounds should produce an event")
	assert.Less(t, hits, 120)
}

func TestWeakestOfBreaksTiesByName(t *testing.T) {
	funds := decimal.NewFromInt(5000)
	zen := &entity.Company{ID: "00-first-by-id", Name: "Zenith", Funds: funds}
	ant := &entity.Company{ID: "zz-last-by-id", Name: "Antler", Funds: funds}

	assert.Equal(t, "Antler", weakestOf([]*entity.Company{zen, ant}).Name)
	assert.Equal(t, "Antler", weakestOf([]*entity.Company{ant, zen}).Name, "order of appearance must not matter")

	poor := &entity.Company{ID: "p", Name: "Zzz Corp", Funds: decimal.NewFromInt(100)}
	assert.Equal(t, "Zzz Corp", weakestOf([]*entity.Company{zen, ant, poor}).Name, "lower funds beat any name")
}

func TestRoleForSlot(t *testing.T) {
	assert.Equal(t, entity.RoleCEO, entity.RoleForSlot(entity.TopologyHierarchical, 0))
	assert.Equal(t, entity.RoleManager, entity.RoleForSlot(entity.TopologyHierarchical, 3))
	assert.Equal(t, entity.RoleWorker, entity.RoleForSlot(entity.TopologyHierarchical, 4))
	assert.Equal(t, entity.RoleWorker, entity.RoleForSlot(entity.TopologyCollective, 0))
}
