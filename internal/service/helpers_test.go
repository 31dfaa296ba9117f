package service

import (
	"context"
	"testing"
	"time"

	"maintenance-service/internal/cache"
	"maintenance-service/internal/model"
	"maintenance-service/internal/repository"

	"github.com/stretchr/testify/require"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// testEnv wires the engines against the in-memory store with a frozen clock
type testEnv struct {
	store      *repository.MemoryStore
	scopes     *ScopeResolver
	scheduling *SchedulingEngine
	execution  *ExecutionEngine
	contracts  *ContractService
	analytics  *AnalyticsAggregator
	now        time.Time
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()

	scopes := NewScopeResolver(store, time.Minute)
	scopes.now = fixedNow(now)

	scheduling := NewSchedulingEngine(store, scopes, 24)
	scheduling.now = fixedNow(now)

	execution := NewExecutionEngine(store, scopes)
	execution.now = fixedNow(now)

	contracts := NewContractService(store, scopes, scheduling, 10000)
	contracts.now = fixedNow(now)

	analytics := NewAnalyticsAggregator(store, scopes, cache.NewMemory(), time.Minute)
	analytics.now = fixedNow(now)

	return &testEnv{
		store:      store,
		scopes:     scopes,
		scheduling: scheduling,
		execution:  execution,
		contracts:  contracts,
		analytics:  analytics,
		now:        now,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func adminActor(tenantID uint) model.Actor {
	return model.Actor{UserID: 1, TenantID: tenantID, Role: model.RoleTenantAdmin}
}

func (e *testEnv) seedBranch(t *testing.T, tenantID uint, name string) *model.Branch {
	t.Helper()
	branch := &model.Branch{TenantID: tenantID, Name: name, Active: true}
	require.NoError(t, e.store.Branches().Create(context.Background(), branch))
	return branch
}

func (e *testEnv) assignUser(t *testing.T, tenantID, userID, branchID uint, role model.Role) {
	t.Helper()
	require.NoError(t, e.store.Branches().AssignUser(context.Background(), &model.UserBranch{
		UserID:   userID,
		BranchID: branchID,
		TenantID: tenantID,
		Role:     role,
	}))
}

// seedContract inserts a contract directly, bypassing the service layer
func (e *testEnv) seedContract(t *testing.T, contract *model.MaintenanceContract) *model.MaintenanceContract {
	t.Helper()
	if contract.Status == "" {
		contract.Status = model.ContractActive
	}
	if contract.Priority == "" {
		contract.Priority = model.PriorityMedium
	}
	if contract.CustomerName == "" {
		contract.CustomerName = "Acme Facilities"
	}
	require.NoError(t, e.store.Contracts().Create(context.Background(), contract))
	return contract
}

// seedVisit inserts a visit directly, bypassing the scheduling engine
func (e *testEnv) seedVisit(t *testing.T, visit *model.MaintenanceVisit) *model.MaintenanceVisit {
	t.Helper()
	if visit.Status == "" {
		visit.Status = model.VisitScheduled
	}
	if visit.Priority == "" {
		visit.Priority = model.PriorityMedium
	}
	require.NoError(t, e.store.Visits().Create(context.Background(), visit))
	return visit
}
