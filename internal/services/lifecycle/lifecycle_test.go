package lifecycle

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/services/topology"
)

func newTestManager(deadline int64) *Manager {
	n := 0
	return New(topology.New(3), deadline,
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%03d", n) }),
	)
}

func draftFrom(companyID, employeeID string, dt entity.DecisionType, importance int) entity.Draft {
	return entity.Draft{
		CompanyID:  companyID,
		EmployeeID: employeeID,
		Type:       dt,
		Proposal:   &entity.Proposal{Content: "ship the beta", Importance: importance, Urgency: 2},
	}
}

func hierarchicalRoster() []entity.Employee {
	return []entity.Employee{
		{ID: "emp-ceo", Name: "Vera", Role: entity.RoleCEO, IsActive: true},
		{ID: "emp-mgr-a", Name: "Omar", Role: entity.RoleManager, IsActive: true},
		{ID: "emp-mgr-b", Name: "Lin", Role: entity.RoleManager, IsActive: true},
		{ID: "emp-wrk-1", Name: "Kai", Role: entity.RoleWorker, IsActive: true},
	}
}

func eventTypes(events []entity.Event) []string {
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestOpen_WorkerChainEscalatesAndResolves(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyHierarchical}
	load := map[string]int{}

	// Importance 3 travels worker -> manager -> CEO.
	out := m.Open(company, hierarchicalRoster(), draftFrom("c1", "emp-wrk-1", entity.DecisionStrategic, 3), 1, load)

	assert.Equal(t, entity.DecisionApproved, out.Decision.Status)
	require.NotNil(t, out.Decision.ResolvedAt)
	assert.Equal(t, []string{
		EventDecisionCreated,
		EventDecisionEscalated, // to manager
		EventDecisionEscalated, // to CEO
		EventDecisionResolved,
	}, eventTypes(out.Events))
	assert.Equal(t, "emp-ceo", out.Events[3].Payload["resolver"])
	assert.Equal(t, 1, load["emp-mgr-a"])
	assert.Equal(t, 1, load["emp-ceo"])
}

func TestOpen_LowImportanceStopsAtManager(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyHierarchical}

	out := m.Open(company, hierarchicalRoster(), draftFrom("c1", "emp-wrk-1", entity.DecisionOperational, 1), 1, map[string]int{})

	assert.Equal(t, entity.DecisionApproved, out.Decision.Status)
	assert.Equal(t, []string{
		EventDecisionCreated,
		EventDecisionEscalated,
		EventDecisionResolved,
	}, eventTypes(out.Events))
	assert.Equal(t, "emp-mgr-a", out.Events[2].Payload["resolver"])
}

func TestOpen_CollectiveCollaborativeOpensBallot(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-c", Role: entity.RoleWorker, IsActive: true},
	}

	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 5, map[string]int{})

	d := out.Decision
	assert.Equal(t, entity.DecisionInProgress, d.Status)
	assert.Equal(t, 2, d.EligibleVoters)
	assert.Equal(t, []string{"peer-b", "peer-c"}, d.Eligible)
	assert.Equal(t, int64(7), d.VoteDeadlineRound)
	assert.Equal(t, []string{EventDecisionCreated, EventVoteOpened}, eventTypes(out.Events))
}

func TestCastVote_ClosesWhenAllVoted(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-c", Role: entity.RoleWorker, IsActive: true},
	}
	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 1, map[string]int{})
	d := out.Decision

	events, err := m.CastVote(d, "peer-b", entity.VoteFor)
	require.NoError(t, err)
	assert.Equal(t, []string{EventVoteCast}, eventTypes(events))
	assert.Equal(t, entity.DecisionInProgress, d.Status)

	events, err = m.CastVote(d, "peer-c", entity.VoteFor)
	require.NoError(t, err)
	assert.Equal(t, []string{EventVoteCast, EventVoteClosed}, eventTypes(events))
	assert.Equal(t, entity.DecisionApproved, d.Status)
	assert.Equal(t, 2, d.VotesFor)
}

func TestCastVote_DuplicateIsConflictFirstWriterWins(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-c", Role: entity.RoleWorker, IsActive: true},
	}
	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 1, map[string]int{})
	d := out.Decision

	_, err := m.CastVote(d, "peer-b", entity.VoteFor)
	require.NoError(t, err)

	events, err := m.CastVote(d, "peer-b", entity.VoteAgainst)
	var conflict *entity.ConcurrencyConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{EventVoteConflict}, eventTypes(events))
	assert.Equal(t, entity.VoteFor, d.Ballots["peer-b"], "first writer's ballot stands")
	assert.Equal(t, 1, d.VotesFor)
	assert.Equal(t, 0, d.VotesAgainst)
}

func TestCastVote_Validation(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
	}
	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 1, map[string]int{})
	d := out.Decision

	var verr *entity.ValidationError

	// Initiator is not in the eligible set.
	_, err := m.CastVote(d, "peer-a", entity.VoteFor)
	require.ErrorAs(t, err, &verr)

	// Stranger either.
	_, err = m.CastVote(d, "ghost", entity.VoteFor)
	require.ErrorAs(t, err, &verr)

	// Terminal decision refuses votes.
	_, err = m.CastVote(d, "peer-b", entity.VoteFor) // closes: 1/1 eligible
	require.NoError(t, err)
	require.True(t, d.Status.Terminal())
	_, err = m.CastVote(d, "peer-b", entity.VoteAgainst)
	require.ErrorAs(t, err, &verr)
}

func TestCloseDue_DeadlineCancelsWithoutVotes(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
	}
	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 1, map[string]int{})
	d := out.Decision

	assert.Nil(t, m.CloseDue(d, 2), "not due yet")

	events := m.CloseDue(d, 3)
	require.Len(t, events, 1)
	assert.Equal(t, EventVoteClosed, events[0].Type)
	assert.Equal(t, entity.DecisionCancelled, d.Status, "ballot with no votes is cancelled")
}

func TestCloseDue_DeadlineTalliesPartialVotes(t *testing.T) {
	m := newTestManager(1)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-c", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-d", Role: entity.RoleWorker, IsActive: true},
	}
	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 1, map[string]int{})
	d := out.Decision

	_, err := m.CastVote(d, "peer-b", entity.VoteAgainst)
	require.NoError(t, err)

	m.CloseDue(d, 2)
	assert.Equal(t, entity.DecisionRejected, d.Status)
}

func TestOpen_TieStaysTied(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-c", Role: entity.RoleWorker, IsActive: true},
	}
	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 1, map[string]int{})
	d := out.Decision

	_, err := m.CastVote(d, "peer-b", entity.VoteFor)
	require.NoError(t, err)
	_, err = m.CastVote(d, "peer-c", entity.VoteAgainst)
	require.NoError(t, err)

	assert.Equal(t, entity.DecisionTied, d.Status)
}

func TestCancel(t *testing.T) {
	m := newTestManager(2)
	company := entity.Company{ID: "c1", Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
	}
	out := m.Open(company, roster, draftFrom("c1", "peer-a", entity.DecisionCollaborative, 2), 1, map[string]int{})
	d := out.Decision

	events, err := m.Cancel(d, "operator request")
	require.NoError(t, err)
	assert.Equal(t, []string{EventDecisionCancelled}, eventTypes(events))
	assert.Equal(t, entity.DecisionCancelled, d.Status)

	_, err = m.Cancel(d, "again")
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
}
