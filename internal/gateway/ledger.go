package gateway

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ProviderStats aggregates call accounting for one provider.
type ProviderStats struct {
	Calls    int             `json:"calls"`
	Failures int             `json:"failures"`
	Cost     decimal.Decimal `json:"cost"`
}

// LedgerSnapshot is a point-in-time copy of the ledger, safe to hand to
// readers.
type LedgerSnapshot struct {
	TotalCalls    int                      `json:"total_calls"`
	TotalFailures int                      `json:"total_failures"`
	TotalCost     decimal.Decimal          `json:"total_cost"`
	Providers     map[string]ProviderStats `json:"providers"`
}

// CostLedger is the process-wide account of AI spend. It is the single owner
// of these counters; all writers go through Record under one mutex.
type CostLedger struct {
	mu            sync.Mutex
	totalCalls    int
	totalFailures int
	totalCost     decimal.Decimal
	perProvider   map[string]ProviderStats
}

// NewCostLedger creates an empty ledger.
func NewCostLedger() *CostLedger {
	return &CostLedger{
		totalCost:   decimal.Zero,
		perProvider: make(map[string]ProviderStats),
	}
}

// Record accounts one attempt. Failed attempts normally cost zero; a non-zero
// cost on failure means the provider reported partial billing.
func (l *CostLedger) Record(provider string, cost decimal.Decimal, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalCalls++
	l.totalCost = l.totalCost.Add(cost)

	stats := l.perProvider[provider]
	stats.Calls++
	stats.Cost = stats.Cost.Add(cost)
	if !success {
		l.totalFailures++
		stats.Failures++
	}
	l.perProvider[provider] = stats
}

// Snapshot returns a copy of the current totals.
func (l *CostLedger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	providers := make(map[string]ProviderStats, len(l.perProvider))
	for name, stats := range l.perProvider {
		providers[name] = stats
	}
	return LedgerSnapshot{
		TotalCalls:    l.totalCalls,
		TotalFailures: l.totalFailures,
		TotalCost:     l.totalCost,
		Providers:     providers,
	}
}

// Reset zeroes the ledger. Used only by simulation reset.
func (l *CostLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalCalls = 0
	l.totalFailures = 0
	l.totalCost = decimal.Zero
	l.perProvider = make(map[string]ProviderStats)
}
