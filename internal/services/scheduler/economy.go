package scheduler

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

const (
	marketEventChance = 0.30

	// Resolved decisions feed back into the books: sound calls discount
	// their AI spend, bad ones amplify it.
	approvedCostFactor = "0.8"
	rejectedCostFactor = "1.5"
)

var (
	minPressurePenalty   = decimal.NewFromInt(1000)
	pressurePenaltyShare = decimal.RequireFromString("0.3")
)

// fundingAmount is the per-round income of a company: base rate scaled by
// team size with a seeded variance of 0.8 to 1.2. Keyed by company name so
// a fresh game with the same seed replays the same economy.
func fundingAmount(seed, round int64, companyName string, baseRate decimal.Decimal, size int) decimal.Decimal {
	rng := rngFor(seed, "funding", round, companyName)
	variance := 0.8 + rng.Float64()*0.4
	return baseRate.
		Mul(decimal.NewFromInt(int64(size))).
		Div(decimal.NewFromInt(10)).
		Mul(decimal.NewFromFloat(variance)).
		Round(2)
}

// marketEvent is one entry of the random event catalogue. Impact is drawn
// uniformly between min and max.
type marketEvent struct {
	name      string
	severity  entity.Severity
	minImpact decimal.Decimal
	maxImpact decimal.Decimal
}

var marketEvents = []marketEvent{
	{"major client signed", entity.SeverityInfo, decimal.NewFromInt(800), decimal.NewFromInt(2500)},
	{"viral marketing campaign", entity.SeverityInfo, decimal.NewFromInt(1000), decimal.NewFromInt(3000)},
	{"government innovation grant", entity.SeverityInfo, decimal.NewFromInt(1500), decimal.NewFromInt(2500)},
	{"supplier discount negotiated", entity.SeverityInfo, decimal.NewFromInt(300), decimal.NewFromInt(900)},
	{"equipment failure", entity.SeverityWarning, decimal.NewFromInt(-1500), decimal.NewFromInt(-300)},
	{"key client churned", entity.SeverityWarning, decimal.NewFromInt(-2000), decimal.NewFromInt(-600)},
	{"regulatory fine", entity.SeverityWarning, decimal.NewFromInt(-2500), decimal.NewFromInt(-800)},
	{"data breach cleanup", entity.SeverityCritical, decimal.NewFromInt(-4000), decimal.NewFromInt(-1000)},
}

// rollMarketEvent decides whether a market event hits the company this round
// and returns it with its drawn impact. ok is false when nothing happens.
func rollMarketEvent(seed, round int64, companyName string) (marketEvent, decimal.Decimal, bool) {
	rng := rngFor(seed, "market", round, companyName)
	if rng.Float64() >= marketEventChance {
		return marketEvent{}, decimal.Zero, false
	}
	ev := marketEvents[rng.Intn(len(marketEvents))]
	span := ev.maxImpact.Sub(ev.minImpact)
	impact := ev.minImpact.Add(span.Mul(decimal.NewFromFloat(rng.Float64()))).Round(2)
	return ev, impact, true
}

// operatingCost is the per-round headcount burn.
func operatingCost(perHead decimal.Decimal, size int) decimal.Decimal {
	return perHead.Mul(decimal.NewFromInt(int64(size)))
}

// decisionCostCharge weighs a decision's AI spend by its outcome: approved
// work comes at a discount, wasted work at a premium. Unresolved decisions
// are charged at face value.
func decisionCostCharge(d entity.Decision) decimal.Decimal {
	switch d.Status {
	case entity.DecisionApproved:
		return d.AI.Cost.Mul(decimal.RequireFromString(approvedCostFactor))
	case entity.DecisionRejected, entity.DecisionTied, entity.DecisionCancelled:
		return d.AI.Cost.Mul(decimal.RequireFromString(rejectedCostFactor))
	default:
		return d.AI.Cost
	}
}

// weakestOf picks the company under competitive pressure: lowest funds,
// ties broken by name so identical configs replay identically across fresh
// runs with regenerated IDs.
func weakestOf(active []*entity.Company) *entity.Company {
	weakest := active[0]
	for _, c := range active[1:] {
		if c.Funds.LessThan(weakest.Funds) || (c.Funds.Equal(weakest.Funds) && c.Name < weakest.Name) {
			weakest = c
		}
	}
	return weakest
}

// pressurePenalty is the competitive squeeze on the weakest active company:
// at least the fixed minimum, or 30% of its funds if that is more.
func pressurePenalty(funds decimal.Decimal) decimal.Decimal {
	share := funds.Mul(pressurePenaltyShare).Round(2)
	if share.GreaterThan(minPressurePenalty) {
		return share
	}
	return minPressurePenalty
}

// simulatedVote draws a ballot for one voter: base 0.6 approval, shifted by
// how important and urgent the proposal reads, clamped to 0.3..0.8. A tenth
// of voters abstain.
func simulatedVote(seed, round int64, decisionID, voterID string, importance, urgency int) entity.Vote {
	p := 0.6 + 0.05*float64(importance-2) + 0.03*float64(urgency-2)
	if p < 0.3 {
		p = 0.3
	}
	if p > 0.8 {
		p = 0.8
	}

	rng := rngFor(seed, "vote", round, decisionID, voterID)
	r := rng.Float64()
	switch {
	case r < p:
		return entity.VoteFor
	case r < p+0.1:
		return entity.VoteAbstain
	default:
		return entity.VoteAgainst
	}
}
