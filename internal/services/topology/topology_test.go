package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

func hierarchicalRoster() []entity.Employee {
	return []entity.Employee{
		{ID: "emp-ceo", Role: entity.RoleCEO, IsActive: true},
		{ID: "emp-mgr-a", Role: entity.RoleManager, IsActive: true},
		{ID: "emp-mgr-b", Role: entity.RoleManager, IsActive: true},
		{ID: "emp-mgr-c", Role: entity.RoleManager, IsActive: true},
		{ID: "emp-wrk-1", Role: entity.RoleWorker, IsActive: true},
		{ID: "emp-wrk-2", Role: entity.RoleWorker, IsActive: true},
	}
}

func TestRoute_WorkerEscalatesToLeastLoadedManager(t *testing.T) {
	eng := New(3)
	company := entity.Company{Topology: entity.TopologyHierarchical}
	roster := hierarchicalRoster()
	d := entity.Decision{EmployeeID: "emp-wrk-1", Type: entity.DecisionOperational, Importance: 2}

	r := eng.Route(company, roster, d, map[string]int{"emp-mgr-a": 2, "emp-mgr-b": 1, "emp-mgr-c": 2})
	require.Equal(t, ActionEscalate, r.Kind)
	assert.Equal(t, "emp-mgr-b", r.Target.ID)
}

func TestRoute_ManagerTieBreaksOnSmallestID(t *testing.T) {
	eng := New(3)
	company := entity.Company{Topology: entity.TopologyHierarchical}
	roster := hierarchicalRoster()
	d := entity.Decision{EmployeeID: "emp-wrk-2", Type: entity.DecisionTactical, Importance: 1}

	r := eng.Route(company, roster, d, map[string]int{})
	require.Equal(t, ActionEscalate, r.Kind)
	assert.Equal(t, "emp-mgr-a", r.Target.ID, "equal load resolves to smallest ID")

	// Same inputs, same answer.
	again := eng.Route(company, roster, d, map[string]int{})
	assert.Equal(t, r.Target.ID, again.Target.ID)
}

func TestRouteAt_ManagerEscalatesHighImportanceToCEO(t *testing.T) {
	eng := New(3)
	roster := hierarchicalRoster()
	manager := roster[1]

	high := entity.Decision{EmployeeID: manager.ID, Importance: 3}
	r := eng.RouteAt(roster, high, manager, nil)
	require.Equal(t, ActionEscalate, r.Kind)
	assert.Equal(t, "emp-ceo", r.Target.ID)

	low := entity.Decision{EmployeeID: manager.ID, Importance: 2}
	r = eng.RouteAt(roster, low, manager, nil)
	assert.Equal(t, ActionSelfResolve, r.Kind)
}

func TestRouteAt_CEOSelfResolves(t *testing.T) {
	eng := New(3)
	roster := hierarchicalRoster()
	ceo := roster[0]

	r := eng.RouteAt(roster, entity.Decision{EmployeeID: ceo.ID, Importance: 3}, ceo, nil)
	assert.Equal(t, ActionSelfResolve, r.Kind)
}

func TestRoute_WorkerWithNoManagersGoesToCEO(t *testing.T) {
	eng := New(3)
	company := entity.Company{Topology: entity.TopologyHierarchical}
	roster := []entity.Employee{
		{ID: "emp-ceo", Role: entity.RoleCEO, IsActive: true},
		{ID: "emp-wrk-1", Role: entity.RoleWorker, IsActive: true},
	}
	d := entity.Decision{EmployeeID: "emp-wrk-1", Importance: 1}

	r := eng.Route(company, roster, d, nil)
	require.Equal(t, ActionEscalate, r.Kind)
	assert.Equal(t, "emp-ceo", r.Target.ID)
}

func TestRoute_CollectiveCollaborativeOpensVote(t *testing.T) {
	eng := New(3)
	company := entity.Company{Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-c", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-d", Role: entity.RoleWorker, IsActive: false},
	}
	d := entity.Decision{EmployeeID: "peer-a", Type: entity.DecisionCollaborative}

	r := eng.Route(company, roster, d, nil)
	require.Equal(t, ActionOpenVote, r.Kind)
	require.Len(t, r.Eligible, 2, "initiator and inactive peers are excluded")
	assert.Equal(t, "peer-b", r.Eligible[0].ID)
	assert.Equal(t, "peer-c", r.Eligible[1].ID)
}

func TestRoute_CollectiveNonCollaborativeIsAutonomous(t *testing.T) {
	eng := New(3)
	company := entity.Company{Topology: entity.TopologyCollective}
	roster := []entity.Employee{
		{ID: "peer-a", Role: entity.RoleWorker, IsActive: true},
		{ID: "peer-b", Role: entity.RoleWorker, IsActive: true},
	}
	d := entity.Decision{EmployeeID: "peer-a", Type: entity.DecisionOperational}

	r := eng.Route(company, roster, d, nil)
	assert.Equal(t, ActionSelfResolve, r.Kind)
}

func TestRoute_InactiveManagersSkipped(t *testing.T) {
	eng := New(3)
	company := entity.Company{Topology: entity.TopologyHierarchical}
	roster := hierarchicalRoster()
	roster[1].IsActive = false // emp-mgr-a out

	d := entity.Decision{EmployeeID: "emp-wrk-1", Importance: 1}
	r := eng.Route(company, roster, d, nil)
	require.Equal(t, ActionEscalate, r.Kind)
	assert.Equal(t, "emp-mgr-b", r.Target.ID)
}
