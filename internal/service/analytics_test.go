package service

import (
	"context"
	"testing"
	"time"

	"maintenance-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedVisitWithStatus(t *testing.T, env *testEnv, branchID, contractID uint, date time.Time, status model.VisitStatus) *model.MaintenanceVisit {
	t.Helper()
	return env.seedVisit(t, &model.MaintenanceVisit{
		TenantID:      1,
		BranchID:      branchID,
		ContractID:    contractID,
		ScheduledDate: date,
		Status:        status,
	})
}

func TestContractHealthBuckets(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	// Expired contract, regardless of completion rate.
	pastEnd := day(2024, time.February, 1)
	expired := env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2023, time.June, 1),
		EndDate:   &pastEnd,
		Status:    model.ContractCompleted,
	})
	seedVisitWithStatus(t, env, branch.ID, expired.ID, day(2024, time.January, 1), model.VisitCompleted)

	// End date within 7 days: critical.
	soonEnd := day(2024, time.March, 14)
	critical := env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
		EndDate:   &soonEnd,
	})

	// 1 of 4 visits completed: poor.
	poor := env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: branch.ID,
		Frequency: model.FrequencyWeekly,
		StartDate: day(2024, time.January, 1),
	})
	seedVisitWithStatus(t, env, branch.ID, poor.ID, day(2024, time.January, 1), model.VisitCompleted)
	seedVisitWithStatus(t, env, branch.ID, poor.ID, day(2024, time.January, 8), model.VisitMissed)
	seedVisitWithStatus(t, env, branch.ID, poor.ID, day(2024, time.January, 15), model.VisitMissed)
	seedVisitWithStatus(t, env, branch.ID, poor.ID, day(2024, time.January, 22), model.VisitMissed)

	// Zero visits counts as a perfect completion rate.
	healthy := env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.March, 1),
	})

	report, err := env.analytics.ContractHealthReport(context.Background(), actor)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Buckets[HealthExpired])
	assert.Equal(t, 1, report.Buckets[HealthCritical])
	assert.Equal(t, 1, report.Buckets[HealthPoor])
	assert.Equal(t, 1, report.Buckets[HealthHealthy])

	byID := map[uint]ContractHealth{}
	for _, c := range report.Contracts {
		byID[c.ContractID] = c
	}
	assert.Equal(t, HealthExpired, byID[expired.ID].Bucket)
	assert.Equal(t, HealthCritical, byID[critical.ID].Bucket)
	assert.Equal(t, HealthPoor, byID[poor.ID].Bucket)
	assert.InDelta(t, 0.25, byID[poor.ID].CompletionRate, 1e-9)
	assert.Equal(t, HealthHealthy, byID[healthy.ID].Bucket)
	assert.InDelta(t, 1.0, byID[healthy.ID].CompletionRate, 1e-9)
}

func TestSLAReport(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	// Completed on the scheduled day: on time, 30m response, 90m duration.
	onTimeStart := day(2024, time.March, 1).Add(30 * time.Minute)
	onTimeEnd := onTimeStart.Add(90 * time.Minute)
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate:   day(2024, time.March, 1),
		Status:          model.VisitCompleted,
		ActualStartTime: &onTimeStart,
		ActualEndTime:   &onTimeEnd,
	})

	// Completed two days late: not on time.
	lateStart := day(2024, time.March, 4).Add(10 * time.Hour)
	lateEnd := lateStart.Add(30 * time.Minute)
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate:   day(2024, time.March, 2),
		Status:          model.VisitCompleted,
		ActualStartTime: &lateStart,
		ActualEndTime:   &lateEnd,
	})

	// Still scheduled before today: overdue.
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 5),
	})

	report, err := env.analytics.SLAReport(context.Background(), actor, day(2024, time.March, 1), day(2024, time.March, 10))
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalVisits)
	assert.Equal(t, 2, report.CompletedVisits)
	assert.Equal(t, 1, report.OverdueVisits)
	assert.InDelta(t, 0.5, report.OnTimeRate, 1e-9)
	// (30m + 58h) / 2 and (90m + 30m) / 2.
	assert.InDelta(t, (30.0+58*60)/2, report.AvgResponseMinutes, 1e-6)
	assert.InDelta(t, 60.0, report.AvgDurationMinutes, 1e-6)
}

func TestTechnicianReport(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	techA := uint(50)
	techB := uint(51)
	rating4 := 4
	rating5 := 5

	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate:        day(2024, time.March, 1),
		Status:               model.VisitCompleted,
		AssignedTechnicianID: &techA,
		CustomerRating:       &rating4,
		TotalCost:            120,
	})
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate:        day(2024, time.March, 2),
		Status:               model.VisitCompleted,
		AssignedTechnicianID: &techA,
		CustomerRating:       &rating5,
		TotalCost:            80,
	})
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate:        day(2024, time.March, 3),
		Status:               model.VisitFailed,
		AssignedTechnicianID: &techA,
	})
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 8,
		ScheduledDate:        day(2024, time.March, 4),
		Status:               model.VisitScheduled,
		AssignedTechnicianID: &techB,
	})
	// Unassigned visits stay out of the rollup.
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 8,
		ScheduledDate: day(2024, time.March, 5),
	})

	report, err := env.analytics.TechnicianReport(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, report, 2)

	a := report[0]
	assert.Equal(t, techA, a.TechnicianID)
	assert.Equal(t, 3, a.TotalVisits)
	assert.Equal(t, 2, a.CompletedVisits)
	assert.InDelta(t, 2.0/3.0, a.CompletionRate, 1e-9)
	assert.InDelta(t, 4.5, a.AvgRating, 1e-9)
	assert.InDelta(t, 200.0, a.TotalRevenue, 1e-9)

	b := report[1]
	assert.Equal(t, techB, b.TechnicianID)
	assert.Equal(t, 1, b.TotalVisits)
	assert.Equal(t, 0, b.CompletedVisits)
	assert.Zero(t, b.AvgRating)
}

func TestAnalyticsCaching(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
	})

	ctx := context.Background()
	first, err := env.analytics.ContractHealthReport(ctx, actor)
	require.NoError(t, err)
	require.Len(t, first.Contracts, 1)

	// A contract added after the first report stays invisible while the
	// cached entry is fresh.
	env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.February, 1),
	})

	second, err := env.analytics.ContractHealthReport(ctx, actor)
	require.NoError(t, err)
	assert.Len(t, second.Contracts, 1)
}

func TestAnalyticsScopeSeparatesCacheEntries(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	mine := env.seedBranch(t, 1, "Mine")
	other := env.seedBranch(t, 1, "Other")

	env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: mine.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
	})
	env.seedContract(t, &model.MaintenanceContract{
		TenantID: 1, BranchID: other.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
	})

	manager := model.Actor{UserID: 9, TenantID: 1, Role: model.RoleManager}
	env.assignUser(t, 1, manager.UserID, mine.ID, model.RoleManager)

	ctx := context.Background()
	adminReport, err := env.analytics.ContractHealthReport(ctx, adminActor(1))
	require.NoError(t, err)
	assert.Len(t, adminReport.Contracts, 2)

	// The branch-scoped report must not be served from the admin's cache
	// entry.
	managerReport, err := env.analytics.ContractHealthReport(ctx, manager)
	require.NoError(t, err)
	assert.Len(t, managerReport.Contracts, 1)
}
