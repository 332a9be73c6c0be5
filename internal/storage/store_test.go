package storage

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func testCompany(id string) entity.Company {
	now := time.Now().UTC().Truncate(time.Second)
	return entity.Company{
		ID:        id,
		Name:      "Acme " + id,
		Topology:  entity.TopologyHierarchical,
		Funds:     decimal.RequireFromString("10000.50"),
		Size:      5,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCompanyRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCompany("c1")
	require.NoError(t, s.CreateCompany(ctx, c))

	got, err := s.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, entity.TopologyHierarchical, got.Topology)
	assert.True(t, got.Funds.Equal(decimal.RequireFromString("10000.50")), "funds survive exactly, got %s", got.Funds)

	got.Funds = decimal.RequireFromString("9999.99")
	require.NoError(t, s.UpdateCompany(ctx, got))

	again, err := s.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "9999.99", again.Funds.String())
}

func TestSoftDeleteCompanyHidesIt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCompany(ctx, testCompany("c1")))
	require.NoError(t, s.SoftDeleteCompany(ctx, "c1", time.Now()))

	_, err := s.GetCompany(ctx, "c1")
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = s.SoftDeleteCompany(ctx, "c1", time.Now())
	assert.True(t, errors.Is(err, ErrNotFound), "second delete finds nothing")
}

func TestSoftDeleteCompanyDeactivatesStaff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCompany(ctx, testCompany("c1")))
	seedEmployee(t, s, "e1", "c1")
	seedEmployee(t, s, "e2", "c1")

	require.NoError(t, s.SoftDeleteCompany(ctx, "c1", time.Now()))

	roster, err := s.ListEmployees(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	for _, emp := range roster {
		assert.False(t, emp.IsActive, "%s still active after company delete", emp.ID)
	}
}

func TestEmployeeRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCompany(ctx, testCompany("c1")))

	now := time.Now().UTC().Truncate(time.Second)
	e := entity.Employee{
		ID: "e1", CompanyID: "c1", Name: "Ada", Role: entity.RoleManager,
		Status: entity.StatusIdle, Personality: "curious", DecisionStyle: "bold",
		Level: 2, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateEmployee(ctx, e))

	roster, err := s.ListEmployees(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, entity.RoleManager, roster[0].Role)
	assert.Equal(t, "curious", roster[0].Personality)

	e.DecisionsMade = 3
	e.DecisionsApproved = 2
	e.Experience = 30
	require.NoError(t, s.UpdateEmployee(ctx, e))

	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.DecisionsMade)
	assert.Equal(t, 30, got.Experience)
}

func seedEmployee(t *testing.T, s *Store, id, companyID string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.CreateEmployee(context.Background(), entity.Employee{
		ID: id, CompanyID: companyID, Name: "Emp " + id, Role: entity.RoleWorker,
		Status: entity.StatusIdle, Level: 1, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestDecisionRoundtripWithBallots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCompany(ctx, testCompany("c1")))
	seedEmployee(t, s, "e1", "c1")

	now := time.Now().UTC().Truncate(time.Second)
	d := entity.Decision{
		ID: "d1", CompanyID: "c1", EmployeeID: "e1",
		Type: entity.DecisionCollaborative, Content: "adopt remote fridays",
		Importance: 2, Urgency: 1, Status: entity.DecisionInProgress, Round: 4,
		AI:             entity.Attribution{Provider: "sim", Model: "sim-1", Cost: decimal.RequireFromString("0.0042")},
		EligibleVoters: 2, Eligible: []string{"e2", "e3"},
		Ballots:           map[string]entity.Vote{"e2": entity.VoteFor},
		VotesFor:          1,
		VoteDeadlineRound: 6,
		CreatedAt:         now,
	}
	require.NoError(t, s.InsertDecision(ctx, d))

	got, err := s.GetDecision(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionInProgress, got.Status)
	assert.Equal(t, []string{"e2", "e3"}, got.Eligible)
	assert.Equal(t, entity.VoteFor, got.Ballots["e2"])
	assert.Equal(t, int64(6), got.VoteDeadlineRound)
	assert.Equal(t, "0.0042", got.AI.Cost.String())

	resolved := now.Add(time.Minute)
	got.Status = entity.DecisionApproved
	got.ResolvedAt = &resolved
	require.NoError(t, s.UpdateDecision(ctx, got))

	final, err := s.GetDecision(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionApproved, final.Status)
	require.NotNil(t, final.ResolvedAt)
}

func TestListDecisionsFilterAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCompany(ctx, testCompany("c1")))
	require.NoError(t, s.CreateCompany(ctx, testCompany("c2")))
	seedEmployee(t, s, "e1", "c1")

	base := time.Now().UTC().Truncate(time.Second)
	for i, spec := range []struct {
		id, company string
		status      entity.DecisionStatus
	}{
		{"d1", "c1", entity.DecisionApproved},
		{"d2", "c1", entity.DecisionRejected},
		{"d3", "c1", entity.DecisionApproved},
		{"d4", "c2", entity.DecisionApproved},
	} {
		d := entity.Decision{
			ID: spec.id, CompanyID: spec.company, EmployeeID: "e1",
			Type: entity.DecisionOperational, Content: "x", Importance: 1, Urgency: 1,
			Status: spec.status, AI: entity.Attribution{Cost: decimal.Zero},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.InsertDecision(ctx, d))
	}

	approved, err := s.ListDecisions(ctx, DecisionFilter{CompanyID: "c1", Status: entity.DecisionApproved})
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.Equal(t, "d3", approved[0].ID, "newest first")

	page, err := s.ListDecisions(ctx, DecisionFilter{CompanyID: "c1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d2", page[0].ID)
	assert.Equal(t, "d1", page[1].ID)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Store) error {
		if err := tx.CreateCompany(ctx, testCompany("c1")); err != nil {
			return err
		}
		return errors.New("phase failed")
	})
	require.Error(t, err)

	list, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "rolled back insert must not be visible")
}

func TestSimStateRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadSimState(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	snap := SimSnapshot{
		State: entity.SimRunning, Mode: entity.ModeAuto, Round: 12, Seed: 42,
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveSimState(ctx, snap))

	got, err := s.LoadSimState(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.SimRunning, got.State)
	assert.Equal(t, int64(12), got.Round)

	snap.State = entity.SimPaused
	snap.Round = 13
	require.NoError(t, s.SaveSimState(ctx, snap))

	got, err = s.LoadSimState(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.SimPaused, got.State)
	assert.Equal(t, int64(13), got.Round)
}

func TestResetAllWipesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCompany(ctx, testCompany("c1")))
	require.NoError(t, s.SaveSimState(ctx, SimSnapshot{State: entity.SimRunning, Mode: entity.ModeAuto, UpdatedAt: time.Now()}))

	require.NoError(t, s.ResetAll(ctx))

	list, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = s.LoadSimState(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))
}
