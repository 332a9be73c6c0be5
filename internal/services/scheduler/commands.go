package scheduler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/storage"
)

// CreateCompany admits a new competitor mid-game with a generated roster.
func (e *Engine) CreateCompany(ctx context.Context, name string, topology entity.Topology, size int, funds decimal.Decimal) (entity.Company, error) {
	if name == "" {
		return entity.Company{}, entity.Validationf("company name is required")
	}
	if !entity.ValidTopology(string(topology)) {
		return entity.Company{}, entity.Validationf("invalid topology %q", topology)
	}
	if size < 1 {
		return entity.Company{}, entity.Validationf("company size must be positive")
	}
	if topology == entity.TopologyHierarchical && size < 4 {
		return entity.Company{}, entity.Validationf("hierarchical companies need at least 4 employees")
	}
	if funds.Sign() <= 0 {
		return entity.Company{}, entity.Validationf("initial funds must be positive")
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	now := time.Now().UTC()
	company, roster := buildCompany(e.seed, name, topology, size, funds, nil, now)

	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		if err := tx.CreateCompany(ctx, company); err != nil {
			return err
		}
		for _, emp := range roster {
			if err := tx.CreateEmployee(ctx, emp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return entity.Company{}, err
	}

	e.emit(e.newEvent(EventCompanyCreated, entity.SeverityInfo, company.ID, "",
		"company founded: "+company.Name, map[string]any{
			"topology": string(company.Topology),
			"size":     company.Size,
			"funds":    company.Funds.String(),
		}))
	e.notifyDataChanged("companies", "employees")
	return company, nil
}

// DeleteCompany retires a company: its open decisions are cancelled and the
// record is soft-deleted so history stays queryable.
func (e *Engine) DeleteCompany(ctx context.Context, id string) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	company, err := e.store.GetCompany(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var evs []entity.Event
	err = e.store.WithTx(ctx, func(tx *storage.Store) error {
		for _, status := range []entity.DecisionStatus{entity.DecisionPending, entity.DecisionInProgress} {
			open, err := tx.ListDecisions(ctx, storage.DecisionFilter{CompanyID: id, Status: status})
			if err != nil {
				return err
			}
			for _, d := range open {
				cancelEvs, err := e.life.Cancel(&d, "company deleted")
				if err != nil {
					continue
				}
				if err := tx.UpdateDecision(ctx, d); err != nil {
					return err
				}
				evs = append(evs, cancelEvs...)
			}
		}
		return tx.SoftDeleteCompany(ctx, id, now)
	})
	if err != nil {
		return err
	}

	evs = append(evs, e.newEvent(EventCompanyDeleted, entity.SeverityWarning, id, "",
		"company deleted: "+company.Name, nil))
	e.emit(evs...)
	e.notifyDataChanged("companies", "decisions")
	return nil
}

// CastVote records an external ballot on an open collaborative decision.
// Duplicate votes lose to the first writer and come back as a
// ConcurrencyConflict with the conflict logged as an event.
func (e *Engine) CastVote(ctx context.Context, decisionID, voterID string, vote entity.Vote) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return err
	}

	evs, voteErr := e.life.CastVote(&d, voterID, vote)
	if voteErr != nil {
		// A lost race is still an auditable fact; a validation failure is
		// not.
		e.emit(evs...)
		return voteErr
	}

	now := time.Now().UTC()
	err = e.store.WithTx(ctx, func(tx *storage.Store) error {
		if err := tx.UpdateDecision(ctx, d); err != nil {
			return err
		}
		if d.Status.Terminal() {
			return creditResolutionTx(ctx, tx, d, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.emit(evs...)
	e.notifyDataChanged("decisions")
	return nil
}

// CancelDecision terminates a non-terminal decision on operator request.
func (e *Engine) CancelDecision(ctx context.Context, decisionID, reason string) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	d, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return err
	}

	evs, err := e.life.Cancel(&d, reason)
	if err != nil {
		return err
	}
	if err := e.store.UpdateDecision(ctx, d); err != nil {
		return err
	}

	e.emit(evs...)
	e.notifyDataChanged("decisions")
	return nil
}

// HistorySource adapts the store and the event log into the situation
// builder's view of recent company activity.
type HistorySource struct {
	store *storage.Store
	log   *storage.EventLog
}

// NewHistorySource bundles the two history backends.
func NewHistorySource(store *storage.Store, log *storage.EventLog) *HistorySource {
	return &HistorySource{store: store, log: log}
}

func (h *HistorySource) RecentDecisions(ctx context.Context, companyID string, limit int) ([]entity.Decision, error) {
	return h.store.RecentDecisions(ctx, companyID, limit)
}

func (h *HistorySource) RecentEvents(_ context.Context, companyID string, limit int) ([]entity.Event, error) {
	return h.log.RecentEvents(companyID, limit)
}
