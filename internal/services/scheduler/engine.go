// Package scheduler owns the simulation clock. It advances rounds through
// five fixed phases, keeps the persisted scheduler state in sync with the
// store, and serializes external commands (votes, company changes, controls)
// against running rounds.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/corpsim/config"
	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/events"
	"github.com/vadiminshakov/corpsim/internal/gateway"
	"github.com/vadiminshakov/corpsim/internal/services/agent"
	"github.com/vadiminshakov/corpsim/internal/services/lifecycle"
	"github.com/vadiminshakov/corpsim/internal/storage"
)

// Event types emitted by the scheduler itself.
const (
	EventCompanyCreated      = "company_created"
	EventCompanyDeleted      = "company_deleted"
	EventCompanyBankrupt     = "company_bankrupt"
	EventFundingReceived     = "funding_received"
	EventAgentFailed         = "agent_failed"
	EventMarketEvent         = "market_event"
	EventBookkeeping         = "bookkeeping"
	EventCompetitivePressure = "competitive_pressure"
	EventRoundCompleted      = "round_completed"
	EventGameEnded           = "game_ended"
	EventGameReset           = "game_reset"
	EventDataChanged         = "data_changed"
)

// Engine runs the simulation.
type Engine struct {
	logger   *zap.Logger
	cfg      config.Config
	store    *storage.Store
	eventLog *storage.EventLog
	bus      *events.Broadcaster
	agents   *agent.Agent
	sits     *agent.SituationBuilder
	life     *lifecycle.Manager
	ledger   *gateway.CostLedger

	// mu guards the state fields; runMu serializes whole rounds against
	// external commands so a round never races a vote or a roster change.
	mu    sync.Mutex
	runMu sync.Mutex
	state entity.SimState
	mode  entity.SimMode
	round int64
	seed  int64

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates the engine, restoring persisted scheduler state when present
// and seeding configured companies into an empty store. A previously running
// simulation comes back paused; the operator resumes it explicitly.
func New(ctx context.Context, logger *zap.Logger, cfg config.Config, store *storage.Store,
	eventLog *storage.EventLog, bus *events.Broadcaster, agents *agent.Agent,
	sits *agent.SituationBuilder, life *lifecycle.Manager, ledger *gateway.CostLedger) (*Engine, error) {

	e := &Engine{
		logger:   logger,
		cfg:      cfg,
		store:    store,
		eventLog: eventLog,
		bus:      bus,
		agents:   agents,
		sits:     sits,
		life:     life,
		ledger:   ledger,
		state:    entity.SimInitializing,
		mode:     cfg.Mode,
		seed:     cfg.Seed,
	}

	snap, err := store.LoadSimState(ctx)
	switch {
	case err == nil:
		e.state = snap.State
		e.mode = snap.Mode
		e.round = snap.Round
		e.seed = snap.Seed
		if e.state == entity.SimRunning {
			e.state = entity.SimPaused
		}
	case errors.Is(err, storage.ErrNotFound):
		if err := e.bootstrap(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return e, nil
}

// bootstrap creates the configured seed companies in an empty store.
func (e *Engine) bootstrap(ctx context.Context) error {
	now := time.Now().UTC()
	var evs []entity.Event
	err := e.store.WithTx(ctx, func(tx *storage.Store) error {
		for _, seed := range e.cfg.Companies {
			company, roster := buildCompany(e.seed, seed.Name, entity.Topology(seed.Topology), seed.Size, seed.Funds, seed.Employees, now)
			if err := tx.CreateCompany(ctx, company); err != nil {
				return err
			}
			for _, emp := range roster {
				if err := tx.CreateEmployee(ctx, emp); err != nil {
					return err
				}
			}
			evs = append(evs, e.newEvent(EventCompanyCreated, entity.SeverityInfo, company.ID, "",
				"company founded: "+company.Name, map[string]any{
					"topology": string(company.Topology),
					"size":     company.Size,
					"funds":    company.Funds.String(),
				}))
		}
		e.mu.Lock()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return tx.SaveSimState(ctx, snap)
	})
	if err != nil {
		return errors.Wrap(err, "bootstrap companies")
	}
	e.emit(evs...)
	return nil
}

// Start moves the simulation from initializing or stopped into running and,
// in auto mode, starts the round loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case entity.SimRunning:
		e.mu.Unlock()
		return &entity.SchedulerStateError{Op: "start", State: entity.SimRunning}
	case entity.SimPaused:
		e.mu.Unlock()
		return &entity.SchedulerStateError{Op: "start", State: entity.SimPaused}
	}
	e.state = entity.SimRunning
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.store.SaveSimState(ctx, snap); err != nil {
		return err
	}
	e.startLoop()
	e.logger.Info("simulation started", zap.String("mode", string(snap.Mode)))
	return nil
}

// Pause suspends round execution. Pausing a paused simulation is a no-op.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case entity.SimPaused:
		e.mu.Unlock()
		return nil
	case entity.SimRunning:
	default:
		state := e.state
		e.mu.Unlock()
		return &entity.SchedulerStateError{Op: "pause", State: state}
	}
	e.state = entity.SimPaused
	snap := e.snapshotLocked()
	e.mu.Unlock()

	return e.store.SaveSimState(ctx, snap)
}

// Resume continues a paused simulation.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case entity.SimRunning:
		e.mu.Unlock()
		return nil
	case entity.SimPaused:
	default:
		state := e.state
		e.mu.Unlock()
		return &entity.SchedulerStateError{Op: "resume", State: state}
	}
	e.state = entity.SimRunning
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.store.SaveSimState(ctx, snap); err != nil {
		return err
	}
	e.startLoop()
	return nil
}

// Stop terminates the simulation. The round loop is cancelled, which
// discards any drafts still in flight; they never reach the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state == entity.SimStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = entity.SimStopped
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.stopLoop()
	return e.store.SaveSimState(ctx, snap)
}

// SetMode switches between auto and manual rounds. Rejected while a round is
// mid-phase; the caller retries after the round completes.
func (e *Engine) SetMode(ctx context.Context, mode entity.SimMode) error {
	if !entity.ValidMode(string(mode)) {
		return entity.Validationf("invalid mode %q", mode)
	}
	if !e.runMu.TryLock() {
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		return &entity.SchedulerStateError{Op: "change mode", State: state}
	}
	defer e.runMu.Unlock()

	e.mu.Lock()
	e.mode = mode
	snap := e.snapshotLocked()
	e.mu.Unlock()

	return e.store.SaveSimState(ctx, snap)
}

// ExecuteRound runs exactly one round. Only legal in manual mode while
// running.
func (e *Engine) ExecuteRound(ctx context.Context) error {
	e.mu.Lock()
	state, mode := e.state, e.mode
	e.mu.Unlock()

	if state != entity.SimRunning {
		return &entity.SchedulerStateError{Op: "execute round", State: state}
	}
	if mode != entity.ModeManual {
		return entity.Validationf("manual round execution requires manual mode")
	}
	return e.runRound(ctx)
}

// Reset wipes the world and rebuilds it from configuration. The reset event
// is logged before any destruction so the audit trail records that the data
// after it belongs to a new game.
func (e *Engine) Reset(ctx context.Context) error {
	// Drain the loop before taking runMu: the loop goroutine takes runMu
	// for every round, so stopping it while holding the mutex can wait on
	// a round that is itself waiting on us.
	e.stopLoop()

	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	finalRound := e.round
	e.mu.Unlock()

	e.emit(e.newEvent(EventGameReset, entity.SeverityWarning, "", "",
		"simulation reset, all state destroyed", map[string]any{"final_round": finalRound}))

	if err := e.store.ResetAll(ctx); err != nil {
		return err
	}
	e.ledger.Reset()

	e.mu.Lock()
	e.state = entity.SimInitializing
	e.mode = e.cfg.Mode
	e.round = 0
	e.seed = e.cfg.Seed
	e.mu.Unlock()

	return e.bootstrap(ctx)
}

// Close stops the round loop without touching persisted state.
func (e *Engine) Close() {
	e.stopLoop()
}

// Status is a point-in-time view of the scheduler plus the AI cost ledger.
type Status struct {
	State           entity.SimState        `json:"state"`
	Mode            entity.SimMode         `json:"mode"`
	Round           int64                  `json:"round"`
	Seed            int64                  `json:"seed"`
	ActiveCompanies int                    `json:"active_companies"`
	AI              gateway.LedgerSnapshot `json:"ai"`
}

// Status reports the current simulation status.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	e.mu.Lock()
	s := Status{State: e.state, Mode: e.mode, Round: e.round, Seed: e.seed}
	e.mu.Unlock()

	companies, err := e.store.ListCompanies(ctx)
	if err != nil {
		return Status{}, err
	}
	for _, c := range companies {
		if c.IsActive {
			s.ActiveCompanies++
		}
	}
	s.AI = e.ledger.Snapshot()
	return s, nil
}

func (e *Engine) startLoop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loopDone != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.loopCancel = cancel
	e.loopDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.cfg.RoundInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.mu.Lock()
				due := e.state == entity.SimRunning && e.mode == entity.ModeAuto
				e.mu.Unlock()
				if !due {
					continue
				}
				if err := e.runRound(ctx); err != nil && ctx.Err() == nil {
					e.logger.Error("round failed", zap.Error(err))
				}
			}
		}
	}()
}

func (e *Engine) stopLoop() {
	e.mu.Lock()
	cancel, done := e.loopCancel, e.loopDone
	e.loopCancel, e.loopDone = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// snapshotLocked builds the persisted state row; e.mu must be held.
func (e *Engine) snapshotLocked() storage.SimSnapshot {
	return storage.SimSnapshot{
		State:     e.state,
		Mode:      e.mode,
		Round:     e.round,
		Seed:      e.seed,
		UpdatedAt: time.Now().UTC(),
	}
}

// emit appends events to the durable log and fans them out. Log append
// failures are logged but never fail the round: the in-memory state is
// already committed.
func (e *Engine) emit(evs ...entity.Event) {
	for _, ev := range evs {
		idx, err := e.eventLog.Append(ev)
		if err != nil {
			e.logger.Error("event log append failed", zap.String("type", ev.Type), zap.Error(err))
			continue
		}
		e.bus.Publish(events.ChannelGameEvents, entity.EventRecord{Index: idx, Event: ev})
	}
}

// notifyDataChanged tells live subscribers which entity collections changed.
// These notifications are ephemeral and skip the durable log.
func (e *Engine) notifyDataChanged(entities ...string) {
	e.bus.Publish(events.ChannelDataChanged, entity.EventRecord{Event: entity.Event{
		ID:          uuid.NewString(),
		Type:        EventDataChanged,
		Severity:    entity.SeverityInfo,
		Description: "data changed",
		Payload:     map[string]any{"entities": entities},
		Timestamp:   time.Now().UTC(),
	}})
}

func (e *Engine) newEvent(eventType string, severity entity.Severity, companyID, employeeID, description string, payload map[string]any) entity.Event {
	return entity.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Severity:    severity,
		CompanyID:   companyID,
		EmployeeID:  employeeID,
		Description: description,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
}

// moneyPayload formats a decimal for event payloads.
func moneyPayload(d decimal.Decimal) string { return d.StringFixed(2) }
