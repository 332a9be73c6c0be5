// Package lifecycle runs decisions through their state machine: a draft
// becomes a pending decision, travels an escalation chain or an open ballot,
// and lands in exactly one terminal status. Every transition emits events for
// the audit log; terminal records are never touched again.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/services/topology"
)

// Event types emitted by lifecycle transitions.
const (
	EventDecisionCreated   = "decision_created"
	EventDecisionEscalated = "decision_escalated"
	EventDecisionResolved  = "decision_resolved"
	EventDecisionCancelled = "decision_cancelled"
	EventVoteOpened        = "vote_opened"
	EventVoteCast          = "vote_cast"
	EventVoteConflict      = "vote_conflict"
	EventVoteClosed        = "vote_closed"
)

// maxEscalationHops bounds chain walking; the chain is worker, manager, CEO.
const maxEscalationHops = 3

// Manager drives decision state transitions.
type Manager struct {
	topo                 *topology.Engine
	votingDeadlineRounds int64
	now                  func() time.Time
	newID                func() string
}

// Option configures the Manager.
type Option func(*Manager)

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides ID generation for tests.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// New creates a Manager. votingDeadlineRounds is how many rounds an open
// ballot waits before it is force-closed with whatever votes arrived.
func New(topo *topology.Engine, votingDeadlineRounds int64, opts ...Option) *Manager {
	m := &Manager{
		topo:                 topo,
		votingDeadlineRounds: votingDeadlineRounds,
		now:                  time.Now,
		newID:                uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Outcome is a decision after routing plus the events the transitions
// produced, in order.
type Outcome struct {
	Decision *entity.Decision
	Events   []entity.Event
}

// Open admits a successful draft into the state machine and routes it to its
// conclusion or to an open ballot. Escalation chains resolve synchronously:
// each hop is recorded and the final authority approves. load counts
// escalations already assigned per employee this round and is updated in
// place.
func (m *Manager) Open(company entity.Company, roster []entity.Employee, draft entity.Draft, round int64, load map[string]int) Outcome {
	d := &entity.Decision{
		ID:         m.newID(),
		CompanyID:  draft.CompanyID,
		EmployeeID: draft.EmployeeID,
		Type:       draft.Type,
		Content:    draft.Proposal.Content,
		Reasoning:  draft.Proposal.Reasoning,
		Importance: draft.Proposal.Importance,
		Urgency:    draft.Proposal.Urgency,
		Status:     entity.DecisionPending,
		Round:      round,
		AI:         draft.AI,
		CreatedAt:  m.now(),
	}

	events := []entity.Event{m.event(EventDecisionCreated, entity.SeverityInfo, d, d.EmployeeID,
		"decision proposed: "+d.Content, map[string]any{
			"decision_type": string(d.Type),
			"importance":    d.Importance,
			"urgency":       d.Urgency,
		})}

	routing := m.topo.Route(company, roster, *d, load)
	switch routing.Kind {
	case topology.ActionOpenVote:
		events = append(events, m.openBallot(d, routing.Eligible, round)...)
	case topology.ActionEscalate:
		events = append(events, m.runEscalationChain(d, roster, routing.Target, load)...)
	default:
		events = append(events, m.resolve(d, entity.DecisionApproved, d.EmployeeID)...)
	}

	return Outcome{Decision: d, Events: events}
}

// runEscalationChain carries the decision up the hierarchy hop by hop until
// an authority keeps it. The holder of the last hop approves.
func (m *Manager) runEscalationChain(d *entity.Decision, roster []entity.Employee, first *entity.Employee, load map[string]int) []entity.Event {
	d.Status = entity.DecisionInProgress

	var events []entity.Event
	from := d.EmployeeID
	current := first
	for hop := 0; hop < maxEscalationHops; hop++ {
		load[current.ID]++
		events = append(events, m.event(EventDecisionEscalated, entity.SeverityInfo, d, current.ID,
			"decision escalated to "+current.Name, map[string]any{
				"from": from,
				"to":   current.ID,
				"role": string(current.Role),
			}))

		next := m.topo.RouteAt(roster, *d, *current, load)
		if next.Kind != topology.ActionEscalate {
			break
		}
		from = current.ID
		current = next.Target
	}

	events = append(events, m.resolve(d, entity.DecisionApproved, current.ID)...)
	return events
}

// openBallot snapshots the eligible voter set and opens the decision for
// voting with a deadline measured in rounds.
func (m *Manager) openBallot(d *entity.Decision, eligible []entity.Employee, round int64) []entity.Event {
	d.Status = entity.DecisionInProgress
	d.EligibleVoters = len(eligible)
	d.Eligible = make([]string, 0, len(eligible))
	for _, emp := range eligible {
		d.Eligible = append(d.Eligible, emp.ID)
	}
	d.Ballots = make(map[string]entity.Vote)
	d.VoteDeadlineRound = round + m.votingDeadlineRounds

	if len(eligible) == 0 {
		// Nobody to ask; close immediately as no_votes.
		return m.closeBallot(d, "no eligible voters")
	}

	return []entity.Event{m.event(EventVoteOpened, entity.SeverityInfo, d, d.EmployeeID,
		"vote opened: "+d.Content, map[string]any{
			"eligible_voters": d.EligibleVoters,
			"deadline_round":  d.VoteDeadlineRound,
		})}
}

// CastVote records one ballot. The first vote per employee wins; a duplicate
// is a ConcurrencyConflict and the losing write is surfaced as a warning
// event rather than a mutation. The ballot closes as soon as everyone
// eligible has voted.
func (m *Manager) CastVote(d *entity.Decision, voterID string, v entity.Vote) ([]entity.Event, error) {
	if d.Status.Terminal() {
		return nil, entity.Validationf("decision %s is already resolved (%s)", d.ID, d.Status)
	}
	if d.Status != entity.DecisionInProgress || d.EligibleVoters == 0 {
		return nil, entity.Validationf("decision %s is not open for voting", d.ID)
	}
	if !d.EligibleToVote(voterID) {
		return nil, entity.Validationf("employee %s is not eligible to vote on decision %s", voterID, d.ID)
	}

	if !d.AddVote(voterID, v) {
		conflict := m.event(EventVoteConflict, entity.SeverityWarning, d, voterID,
			"duplicate vote refused", map[string]any{"kept": string(d.Ballots[voterID])})
		return []entity.Event{conflict}, &entity.ConcurrencyConflict{
			Msg: "employee " + voterID + " already voted on decision " + d.ID,
		}
	}

	events := []entity.Event{m.event(EventVoteCast, entity.SeverityInfo, d, voterID,
		"vote cast", map[string]any{"vote": string(v)})}

	if len(d.Ballots) == d.EligibleVoters {
		events = append(events, m.closeBallot(d, "all votes in")...)
	}
	return events, nil
}

// CloseDue force-closes an open ballot whose deadline round has arrived.
// Returns nil when the decision is not an overdue open ballot.
func (m *Manager) CloseDue(d *entity.Decision, round int64) []entity.Event {
	if d.Status != entity.DecisionInProgress || d.EligibleVoters == 0 {
		return nil
	}
	if round < d.VoteDeadlineRound {
		return nil
	}
	return m.closeBallot(d, "deadline reached")
}

// Cancel terminates a non-terminal decision from outside the normal flow.
func (m *Manager) Cancel(d *entity.Decision, reason string) ([]entity.Event, error) {
	if d.Status.Terminal() {
		return nil, entity.Validationf("decision %s is already resolved (%s)", d.ID, d.Status)
	}
	now := m.now()
	d.Status = entity.DecisionCancelled
	d.ResolvedAt = &now
	return []entity.Event{m.event(EventDecisionCancelled, entity.SeverityWarning, d, d.EmployeeID,
		"decision cancelled: "+reason, map[string]any{"reason": reason})}, nil
}

// closeBallot derives the terminal status from the tally. A ballot nobody
// voted on is cancelled, a split tally stays tied.
func (m *Manager) closeBallot(d *entity.Decision, reason string) []entity.Event {
	var status entity.DecisionStatus
	switch d.VoteResult() {
	case "approved":
		status = entity.DecisionApproved
	case "rejected":
		status = entity.DecisionRejected
	case "tied":
		status = entity.DecisionTied
	default:
		status = entity.DecisionCancelled
	}

	now := m.now()
	d.Status = status
	d.ResolvedAt = &now

	return []entity.Event{m.event(EventVoteClosed, entity.SeverityInfo, d, "",
		"vote closed: "+string(status), map[string]any{
			"reason":        reason,
			"result":        string(status),
			"votes_for":     d.VotesFor,
			"votes_against": d.VotesAgainst,
			"abstentions":   d.Abstentions,
		})}
}

// resolve sets a terminal status reached without a ballot.
func (m *Manager) resolve(d *entity.Decision, status entity.DecisionStatus, resolverID string) []entity.Event {
	now := m.now()
	d.Status = status
	d.ResolvedAt = &now
	return []entity.Event{m.event(EventDecisionResolved, entity.SeverityInfo, d, resolverID,
		"decision "+string(status)+": "+d.Content, map[string]any{
			"result":   string(status),
			"resolver": resolverID,
		})}
}

func (m *Manager) event(eventType string, severity entity.Severity, d *entity.Decision, employeeID, description string, payload map[string]any) entity.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["decision_id"] = d.ID
	return entity.Event{
		ID:          m.newID(),
		Type:        eventType,
		Severity:    severity,
		CompanyID:   d.CompanyID,
		EmployeeID:  employeeID,
		Description: description,
		Payload:     payload,
		Timestamp:   m.now(),
	}
}
