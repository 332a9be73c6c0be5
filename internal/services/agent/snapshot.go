package agent

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/services/promptbuilder"
)

const snapshotHistoryLimit = 10

// HistorySource provides recent company activity for snapshots.
type HistorySource interface {
	RecentDecisions(ctx context.Context, companyID string, limit int) ([]entity.Decision, error)
	RecentEvents(ctx context.Context, companyID string, limit int) ([]entity.Event, error)
}

// SituationBuilder assembles the per-company situation all of a company's
// agents reason over in a round. Within a round every agent of a company
// sees the same snapshot, so snapshots are cached keyed by company and
// round.
type SituationBuilder struct {
	src   HistorySource
	cache *lru.Cache[string, promptbuilder.Situation]
}

// NewSituationBuilder creates a builder with an LRU snapshot cache of the
// given size.
func NewSituationBuilder(src HistorySource, cacheSize int) (*SituationBuilder, error) {
	cache, err := lru.New[string, promptbuilder.Situation](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create snapshot cache")
	}
	return &SituationBuilder{src: src, cache: cache}, nil
}

// Snapshot returns the situation for company at round, building it once per
// (company, round) pair.
func (b *SituationBuilder) Snapshot(ctx context.Context, company entity.Company, round int64) (promptbuilder.Situation, error) {
	key := fmt.Sprintf("%s:%d", company.ID, round)
	if sit, ok := b.cache.Get(key); ok {
		return sit, nil
	}

	decisions, err := b.src.RecentDecisions(ctx, company.ID, snapshotHistoryLimit)
	if err != nil {
		return promptbuilder.Situation{}, errors.Wrap(err, "load recent decisions")
	}
	events, err := b.src.RecentEvents(ctx, company.ID, snapshotHistoryLimit)
	if err != nil {
		return promptbuilder.Situation{}, errors.Wrap(err, "load recent events")
	}

	sit := promptbuilder.Situation{
		Company:         company,
		Round:           round,
		RecentDecisions: decisions,
		RecentEvents:    events,
	}
	b.cache.Add(key, sit)
	return sit, nil
}

// Invalidate drops cached snapshots for a company, used when the company
// record mutates mid-round.
func (b *SituationBuilder) Invalidate(companyID string, round int64) {
	b.cache.Remove(fmt.Sprintf("%s:%d", companyID, round))
}
