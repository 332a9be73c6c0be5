package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/storage"
)

// runRound executes one full round: funding, decisions, resolution, market
// events, bookkeeping. Each phase commits its staged mutations in a single
// transaction; a failed phase aborts the round and leaves earlier phases
// committed.
func (e *Engine) runRound(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.state != entity.SimRunning {
		state := e.state
		e.mu.Unlock()
		return &entity.SchedulerStateError{Op: "run round", State: state}
	}
	e.round++
	round, seed := e.round, e.seed
	e.mu.Unlock()

	e.logger.Info("round starting", zap.Int64("round", round))

	phases := []struct {
		name entity.RoundPhase
		run  func(context.Context, int64, int64) error
	}{
		{entity.PhaseFunding, e.phaseFunding},
		{entity.PhaseDecisions, e.phaseDecisions},
		{entity.PhaseResolution, e.phaseResolution},
		{entity.PhaseMarketEvents, e.phaseMarketEvents},
		{entity.PhaseBookkeeping, e.phaseBookkeeping},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := phase.run(ctx, round, seed); err != nil {
			return errors.Wrapf(err, "round %d phase %s", round, phase.name)
		}
	}
	return nil
}

// phaseFunding credits every active company its seeded round income.
func (e *Engine) phaseFunding(ctx context.Context, round, seed int64) error {
	now := time.Now().UTC()
	var evs []entity.Event
	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		companies, err := tx.ListCompanies(ctx)
		if err != nil {
			return err
		}
		for _, c := range companies {
			if !c.IsActive {
				continue
			}
			amount := fundingAmount(seed, round, c.Name, e.cfg.BaseFundingRate, c.Size)
			c.ApplyFunds(amount)
			c.UpdatedAt = now
			if err := tx.UpdateCompany(ctx, c); err != nil {
				return err
			}
			evs = append(evs, e.newEvent(EventFundingReceived, entity.SeverityInfo, c.ID, "",
				"funding received: $"+moneyPayload(amount), map[string]any{
					"amount": moneyPayload(amount),
					"round":  round,
				}))
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(evs...)
	e.notifyDataChanged("companies")
	return nil
}

// phaseDecisions lets every active employee reason once. Rosters are marked
// thinking while their AI calls are in flight; the calls run outside any
// transaction with bounded concurrency, and the resulting drafts are
// admitted to the state machine and committed in one transaction, ordered by
// employee ID so reruns with the same seed produce the same records.
func (e *Engine) phaseDecisions(ctx context.Context, round, seed int64) error {
	companies, err := e.store.ListCompanies(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]entity.Company, len(companies))
	for _, c := range companies {
		if c.IsActive {
			byID[c.ID] = c
		}
	}

	rosters, err := e.markThinking(ctx, companies)
	if err != nil {
		return err
	}
	e.notifyDataChanged("employees")

	var (
		draftMu sync.Mutex
		drafts  []entity.Draft
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentCalls)

	for _, c := range companies {
		if !c.IsActive {
			continue
		}

		sit, err := e.sits.Snapshot(ctx, c, round)
		if err != nil {
			return err
		}

		for _, emp := range rosters[c.ID] {
			if !emp.IsActive {
				continue
			}
			emp := emp
			decisionType := e.decisionTypeFor(seed, round, c, emp)
			g.Go(func() error {
				draft := e.agents.Decide(gctx, emp, sit, decisionType)
				draftMu.Lock()
				drafts = append(drafts, draft)
				draftMu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// Stop arrived mid-phase: drafts are discarded, nothing persists.
		return err
	}

	sort.Slice(drafts, func(i, j int) bool { return drafts[i].EmployeeID < drafts[j].EmployeeID })

	now := time.Now().UTC()
	var evs []entity.Event
	err = e.store.WithTx(ctx, func(tx *storage.Store) error {
		load := make(map[string]map[string]int)
		for _, draft := range drafts {
			if draft.Failed {
				evs = append(evs, e.newEvent(EventAgentFailed, entity.SeverityWarning, draft.CompanyID, draft.EmployeeID,
					"decision call failed: "+draft.FailReason, map[string]any{"reason": draft.FailReason}))
				emp, err := tx.GetEmployee(ctx, draft.EmployeeID)
				if err != nil {
					return err
				}
				emp.Status = entity.StatusIdle
				emp.UpdatedAt = now
				if err := tx.UpdateEmployee(ctx, emp); err != nil {
					return err
				}
				continue
			}

			company := byID[draft.CompanyID]
			roster := rosters[draft.CompanyID]
			if load[draft.CompanyID] == nil {
				load[draft.CompanyID] = make(map[string]int)
			}

			outcome := e.life.Open(company, roster, draft, round, load[draft.CompanyID])
			if err := tx.InsertDecision(ctx, *outcome.Decision); err != nil {
				return err
			}
			evs = append(evs, outcome.Events...)

			emp, err := tx.GetEmployee(ctx, draft.EmployeeID)
			if err != nil {
				return err
			}
			emp.DecisionsMade++
			emp.Status = entity.StatusActive
			creditIfResolved(&emp, *outcome.Decision)
			emp.UpdatedAt = now
			if err := tx.UpdateEmployee(ctx, emp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(evs...)
	e.notifyDataChanged("decisions", "employees")
	return nil
}

// markThinking flips every active employee of every active company to the
// thinking status in one transaction and returns the rosters as stored.
func (e *Engine) markThinking(ctx context.Context, companies []entity.Company) (map[string][]entity.Employee, error) {
	now := time.Now().UTC()
	rosters := make(map[string][]entity.Employee, len(companies))
	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		for _, c := range companies {
			if !c.IsActive {
				continue
			}
			roster, err := tx.ListEmployees(ctx, c.ID)
			if err != nil {
				return err
			}
			for i := range roster {
				if !roster[i].IsActive {
					continue
				}
				roster[i].Status = entity.StatusThinking
				roster[i].UpdatedAt = now
				if err := tx.UpdateEmployee(ctx, roster[i]); err != nil {
					return err
				}
			}
			rosters[c.ID] = roster
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rosters, nil
}

// phaseResolution advances open ballots: voters who have not voted on
// ballots from earlier rounds cast simulated ballots, and overdue ballots
// close with whatever arrived. Ballots opened this round wait one round so
// external voters get a window.
func (e *Engine) phaseResolution(ctx context.Context, round, seed int64) error {
	now := time.Now().UTC()
	var evs []entity.Event
	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		ballots, err := tx.OpenBallots(ctx)
		if err != nil {
			return err
		}
		for _, d := range ballots {
			var devs []entity.Event
			if d.Round < round {
				for _, voterID := range d.Eligible {
					if _, voted := d.Ballots[voterID]; voted {
						continue
					}
					vote := simulatedVote(seed, round, d.ID, voterID, d.Importance, d.Urgency)
					cast, err := e.life.CastVote(&d, voterID, vote)
					if err != nil {
						return err
					}
					devs = append(devs, cast...)
					if d.Status.Terminal() {
						break
					}
				}
			}
			if !d.Status.Terminal() {
				devs = append(devs, e.life.CloseDue(&d, round)...)
			}
			if len(devs) == 0 {
				continue
			}
			if err := tx.UpdateDecision(ctx, d); err != nil {
				return err
			}
			if d.Status.Terminal() {
				if err := creditResolutionTx(ctx, tx, d, now); err != nil {
					return err
				}
			}
			evs = append(evs, devs...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(evs...)
	if len(evs) > 0 {
		e.notifyDataChanged("decisions", "employees")
	}
	return nil
}

// phaseMarketEvents rolls the external world's dice against each company.
func (e *Engine) phaseMarketEvents(ctx context.Context, round, seed int64) error {
	now := time.Now().UTC()
	var evs []entity.Event
	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		companies, err := tx.ListCompanies(ctx)
		if err != nil {
			return err
		}
		for _, c := range companies {
			if !c.IsActive {
				continue
			}
			ev, impact, ok := rollMarketEvent(seed, round, c.Name)
			if !ok {
				continue
			}
			c.ApplyFunds(impact)
			c.UpdatedAt = now
			if err := tx.UpdateCompany(ctx, c); err != nil {
				return err
			}
			evs = append(evs, e.newEvent(EventMarketEvent, ev.severity, c.ID, "",
				ev.name, map[string]any{
					"impact": moneyPayload(impact),
					"round":  round,
				}))
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(evs...)
	if len(evs) > 0 {
		e.notifyDataChanged("companies")
	}
	return nil
}

// phaseBookkeeping settles the round's bills: operating costs, outcome-
// weighted AI spend, competitive pressure on the weakest company, bankruptcy
// and the end-of-game check.
func (e *Engine) phaseBookkeeping(ctx context.Context, round, seed int64) error {
	now := time.Now().UTC()
	var (
		evs      []entity.Event
		gameOver bool
	)
	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		companies, err := tx.ListCompanies(ctx)
		if err != nil {
			return err
		}

		var active []*entity.Company
		for i := range companies {
			if companies[i].IsActive {
				active = append(active, &companies[i])
			}
		}

		for _, c := range active {
			operating := operatingCost(e.cfg.OperatingCostPerHead, c.Size)

			roundDecisions, err := tx.ListDecisions(ctx, storage.DecisionFilter{CompanyID: c.ID, Round: round})
			if err != nil {
				return err
			}
			aiCharge := decimal.Zero
			for _, d := range roundDecisions {
				aiCharge = aiCharge.Add(decisionCostCharge(d))
			}
			aiCharge = aiCharge.Round(2)

			total := operating.Add(aiCharge)
			c.ApplyFunds(total.Neg())
			evs = append(evs, e.newEvent(EventBookkeeping, entity.SeverityInfo, c.ID, "",
				"round costs settled: $"+moneyPayload(total), map[string]any{
					"operating_cost": moneyPayload(operating),
					"ai_cost":        moneyPayload(aiCharge),
					"round":          round,
				}))
		}

		// The weakest company feels the market's squeeze, but only while
		// there is a competition to lose.
		if len(active) >= 2 {
			weakest := weakestOf(active)
			penalty := pressurePenalty(weakest.Funds)
			weakest.ApplyFunds(penalty.Neg())
			evs = append(evs, e.newEvent(EventCompetitivePressure, entity.SeverityWarning, weakest.ID, "",
				"competitive pressure: $"+moneyPayload(penalty), map[string]any{
					"penalty": moneyPayload(penalty),
				}))
		}

		survivors := 0
		for _, c := range active {
			if c.Funds.IsZero() {
				c.IsActive = false
				evs = append(evs, e.newEvent(EventCompanyBankrupt, entity.SeverityCritical, c.ID, "",
					"company bankrupt: "+c.Name, map[string]any{"round": round}))
			} else {
				survivors++
			}
		}

		for _, c := range active {
			c.UpdatedAt = now
			if err := tx.UpdateCompany(ctx, *c); err != nil {
				return err
			}
		}

		if len(active) > 0 && survivors <= 1 {
			gameOver = true
			payload := map[string]any{"round": round}
			desc := "game over: everyone is bankrupt"
			for _, c := range active {
				if c.IsActive {
					payload["winner"] = c.ID
					desc = "game over: " + c.Name + " wins"
				}
			}
			evs = append(evs, e.newEvent(EventGameEnded, entity.SeverityCritical, "", "", desc, payload))
		}

		evs = append(evs, e.newEvent(EventRoundCompleted, entity.SeverityInfo, "", "",
			"round completed", map[string]any{"round": round}))

		e.mu.Lock()
		if gameOver {
			e.state = entity.SimStopped
		}
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return tx.SaveSimState(ctx, snap)
	})
	if err != nil {
		return err
	}
	e.emit(evs...)
	e.notifyDataChanged("companies")
	if gameOver {
		// The loop drains on its next tick; stop it without waiting here
		// since this may run on the loop goroutine itself.
		e.mu.Lock()
		cancel := e.loopCancel
		e.loopCancel, e.loopDone = nil, nil
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	return nil
}

// decisionTypeFor picks what kind of call an employee makes this round. In
// hierarchical companies the role decides; collectives put a large share of
// proposals to the group.
func (e *Engine) decisionTypeFor(seed, round int64, c entity.Company, emp entity.Employee) entity.DecisionType {
	rng := rngFor(seed, "dtype", round, emp.ID)

	if rng.Float64() < 0.05 {
		return entity.DecisionEmergency
	}
	if c.Topology == entity.TopologyCollective {
		if rng.Float64() < 0.4 {
			return entity.DecisionCollaborative
		}
		if rng.Float64() < 0.5 {
			return entity.DecisionTactical
		}
		return entity.DecisionOperational
	}
	switch emp.Role {
	case entity.RoleCEO:
		return entity.DecisionStrategic
	case entity.RoleManager:
		return entity.DecisionOperational
	default:
		return entity.DecisionTactical
	}
}

// creditIfResolved updates the initiator's counters when a decision reached
// a terminal state.
func creditIfResolved(emp *entity.Employee, d entity.Decision) {
	if !d.Status.Terminal() {
		return
	}
	if d.Status == entity.DecisionApproved {
		emp.DecisionsApproved++
		emp.Experience += 15
	} else {
		emp.Experience += 10
	}
	emp.Level = 1 + emp.Experience/100
}

// creditResolutionTx applies resolution credit for a decision that closed
// after its creation round.
func creditResolutionTx(ctx context.Context, tx *storage.Store, d entity.Decision, now time.Time) error {
	emp, err := tx.GetEmployee(ctx, d.EmployeeID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	creditIfResolved(&emp, d)
	emp.UpdatedAt = now
	return tx.UpdateEmployee(ctx, emp)
}
