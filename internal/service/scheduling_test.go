package service

import (
	"context"
	"testing"
	"time"

	"maintenance-service/internal/apperr"
	"maintenance-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMonthlyVisits(t *testing.T) {
	env := newTestEnv(t, day(2024, time.January, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	end := day(2024, time.April, 1)
	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:  1,
		BranchID:  branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
		EndDate:   &end,
	})

	summary, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	require.NoError(t, err)
	// Jan 1, Feb 1, Mar 1 and the inclusive Apr 1 boundary.
	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, 0, summary.Skipped)

	visits, err := env.store.Visits().ListByContract(context.Background(), contract.ID)
	require.NoError(t, err)
	require.Len(t, visits, 4)
	for _, v := range visits {
		assert.Equal(t, model.VisitScheduled, v.Status)
		assert.Equal(t, contract.TenantID, v.TenantID)
		assert.Equal(t, contract.BranchID, v.BranchID)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	env := newTestEnv(t, day(2024, time.January, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	end := day(2024, time.April, 1)
	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:  1,
		BranchID:  branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
		EndDate:   &end,
	})

	first, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Created)

	second, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 4, second.Skipped)

	visits, err := env.store.Visits().ListByContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Len(t, visits, 4)
}

func TestGenerateOpenEndedStopsAtHorizon(t *testing.T) {
	env := newTestEnv(t, day(2024, time.January, 1))
	env.scheduling.horizonMonths = 1
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:  1,
		BranchID:  branch.ID,
		Frequency: model.FrequencyDaily,
		StartDate: day(2024, time.January, 1),
	})

	summary, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	require.NoError(t, err)
	// Jan 1 through the inclusive Feb 1 horizon boundary.
	assert.Equal(t, 32, summary.Created)
}

func TestGenerateOnceContract(t *testing.T) {
	env := newTestEnv(t, day(2024, time.January, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:  1,
		BranchID:  branch.ID,
		Frequency: model.FrequencyOnce,
		StartDate: day(2024, time.March, 10),
	})

	summary, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)

	summary, err = env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.Skipped)
}

func TestGenerateRejectsInactiveContract(t *testing.T) {
	env := newTestEnv(t, day(2024, time.January, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:  1,
		BranchID:  branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
		Status:    model.ContractPaused,
	})

	_, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindContractInactive))
}

func TestGenerateRejectsBadCustomFrequencyBeforeAnyWrite(t *testing.T) {
	env := newTestEnv(t, day(2024, time.January, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:       1,
		BranchID:       branch.ID,
		Frequency:      model.FrequencyCustom,
		FrequencyValue: 0,
		FrequencyUnit:  model.UnitDays,
		StartDate:      day(2024, time.January, 1),
	})

	_, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	visits, err := env.store.Visits().ListByContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Empty(t, visits)
}

func TestRescheduleVisit(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	visit := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID:      1,
		BranchID:      branch.ID,
		ContractID:    42,
		ScheduledDate: day(2024, time.March, 5),
	})

	updated, err := env.scheduling.RescheduleVisit(context.Background(), actor, visit.ID, day(2024, time.March, 12), "09:30")
	require.NoError(t, err)

	assert.Equal(t, model.VisitRescheduled, updated.Status)
	assert.Equal(t, day(2024, time.March, 12), updated.ScheduledDate)
	assert.Equal(t, "09:30", updated.ScheduledTime)
	require.NotNil(t, updated.PreviousDate)
	assert.Equal(t, day(2024, time.March, 5), *updated.PreviousDate)
	assert.NotNil(t, updated.RescheduledAt)
}

func TestRescheduleVisitFromMissed(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	visit := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID:      1,
		BranchID:      branch.ID,
		ContractID:    42,
		ScheduledDate: day(2024, time.February, 20),
		Status:        model.VisitMissed,
	})

	updated, err := env.scheduling.RescheduleVisit(context.Background(), actor, visit.ID, day(2024, time.March, 8), "")
	require.NoError(t, err)
	assert.Equal(t, model.VisitRescheduled, updated.Status)
}

func TestRescheduleVisitRejectsTerminalStates(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	for _, status := range []model.VisitStatus{model.VisitCompleted, model.VisitCancelled, model.VisitInProgress} {
		visit := env.seedVisit(t, &model.MaintenanceVisit{
			TenantID:      1,
			BranchID:      branch.ID,
			ContractID:    42,
			ScheduledDate: day(2024, time.March, 5),
			Status:        status,
		})
		_, err := env.scheduling.RescheduleVisit(context.Background(), actor, visit.ID, day(2024, time.March, 12), "")
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidStateTransition), string(status))
	}
}

func TestCancelFutureVisits(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:  1,
		BranchID:  branch.ID,
		Frequency: model.FrequencyWeekly,
		StartDate: day(2024, time.January, 1),
	})

	past := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: contract.ID,
		ScheduledDate: day(2024, time.March, 1),
	})
	today := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: contract.ID,
		ScheduledDate: day(2024, time.March, 10),
	})
	future := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: contract.ID,
		ScheduledDate: day(2024, time.March, 20),
	})
	futureDone := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: contract.ID,
		ScheduledDate: day(2024, time.March, 25),
		Status:        model.VisitCompleted,
	})

	count, err := env.scheduling.CancelFutureVisits(context.Background(), actor, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	scope := model.AccessScope{Unrestricted: true}
	check := func(id uint, want model.VisitStatus) {
		v, err := env.store.Visits().FindByID(context.Background(), 1, id, scope)
		require.NoError(t, err)
		assert.Equal(t, want, v.Status)
	}
	check(past.ID, model.VisitScheduled)
	check(today.ID, model.VisitScheduled)
	check(future.ID, model.VisitCancelled)
	check(futureDone.ID, model.VisitCompleted)
}

func TestMarkOverdueVisitsAsMissed(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	branch := env.seedBranch(t, 1, "Downtown")

	stale := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 7),
	})
	// Yesterday is within the one-day grace window.
	yesterday := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 9),
	})
	inProgress := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 1),
		Status:        model.VisitInProgress,
	})

	count, err := env.scheduling.MarkOverdueVisitsAsMissed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	scope := model.AccessScope{Unrestricted: true}
	v, err := env.store.Visits().FindByID(context.Background(), 1, stale.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, model.VisitMissed, v.Status)
	assert.NotNil(t, v.MissedAt)

	v, err = env.store.Visits().FindByID(context.Background(), 1, yesterday.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, model.VisitScheduled, v.Status)

	v, err = env.store.Visits().FindByID(context.Background(), 1, inProgress.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, model.VisitInProgress, v.Status)

	// Second sweep changes nothing.
	count, err = env.scheduling.MarkOverdueVisitsAsMissed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestUpcomingVisitsScopeFiltering(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	mine := env.seedBranch(t, 1, "Mine")
	other := env.seedBranch(t, 1, "Other")

	tech := model.Actor{UserID: 9, TenantID: 1, Role: model.RoleTechnician}
	env.assignUser(t, 1, tech.UserID, mine.ID, model.RoleTechnician)

	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: mine.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 12),
	})
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: other.ID, ContractID: 8,
		ScheduledDate: day(2024, time.March, 12),
	})
	// Outside the window.
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: mine.ID, ContractID: 7,
		ScheduledDate: day(2024, time.April, 20),
	})

	visits, err := env.scheduling.UpcomingVisits(context.Background(), tech, 7)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, mine.ID, visits[0].BranchID)

	admin := adminActor(1)
	visits, err = env.scheduling.UpcomingVisits(context.Background(), admin, 7)
	require.NoError(t, err)
	assert.Len(t, visits, 2)
}

func TestOverdueVisits(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	branch := env.seedBranch(t, 1, "Downtown")
	actor := adminActor(1)

	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 5),
	})
	env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: branch.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 10),
	})

	visits, err := env.scheduling.OverdueVisits(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, day(2024, time.March, 5), visits[0].ScheduledDate)
}

func TestGetVisitOutOfScopeIsNotFound(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	mine := env.seedBranch(t, 1, "Mine")
	other := env.seedBranch(t, 1, "Other")

	tech := model.Actor{UserID: 9, TenantID: 1, Role: model.RoleTechnician}
	env.assignUser(t, 1, tech.UserID, mine.ID, model.RoleTechnician)

	visit := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: other.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 12),
	})

	_, err := env.scheduling.GetVisit(context.Background(), tech, visit.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestGenerateRejectsExpiredContract(t *testing.T) {
	env := newTestEnv(t, day(2024, time.June, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	end := day(2024, time.April, 1)
	contract := env.seedContract(t, &model.MaintenanceContract{
		TenantID:  1,
		BranchID:  branch.ID,
		Frequency: model.FrequencyMonthly,
		StartDate: day(2024, time.January, 1),
		EndDate:   &end,
	})

	_, err := env.scheduling.GenerateScheduledVisits(context.Background(), actor, contract.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindContractExpired))

	visits, err := env.store.Visits().ListByContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Empty(t, visits)
}

func TestMarkOverdueVisitsAsMissedScopedToTenant(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 10))
	mine := env.seedBranch(t, 1, "Mine")
	theirs := env.seedBranch(t, 2, "Theirs")

	ours := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 1, BranchID: mine.ID, ContractID: 7,
		ScheduledDate: day(2024, time.March, 5),
	})
	foreign := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID: 2, BranchID: theirs.ID, ContractID: 8,
		ScheduledDate: day(2024, time.March, 5),
	})

	// A tenant-triggered sweep only touches that tenant's visits.
	count, err := env.scheduling.MarkOverdueVisitsAsMissed(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	scope := model.AccessScope{Unrestricted: true}
	v, err := env.store.Visits().FindByID(context.Background(), 1, ours.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, model.VisitMissed, v.Status)

	v, err = env.store.Visits().FindByID(context.Background(), 2, foreign.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, model.VisitScheduled, v.Status)

	// The global sweep picks up the rest.
	count, err = env.scheduling.MarkOverdueVisitsAsMissed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	v, err = env.store.Visits().FindByID(context.Background(), 2, foreign.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, model.VisitMissed, v.Status)
}

func TestRescheduleVisitStaleReaderLoses(t *testing.T) {
	env := newTestEnv(t, day(2024, time.March, 1))
	actor := adminActor(1)
	branch := env.seedBranch(t, 1, "Downtown")

	visit := env.seedVisit(t, &model.MaintenanceVisit{
		TenantID:      1,
		BranchID:      branch.ID,
		ContractID:    42,
		ScheduledDate: day(2024, time.March, 5),
	})
	staleCopy := *visit

	// Another dispatcher cancels the visit first.
	_, err := env.execution.UpdateVisitStatus(context.Background(), actor, visit.ID, model.VisitCancelled)
	require.NoError(t, err)

	racer := NewSchedulingEngine(&staleReadStore{Store: env.store, stale: staleCopy}, env.scopes, 24)
	racer.now = fixedNow(env.now)

	_, err = racer.RescheduleVisit(context.Background(), actor, visit.ID, day(2024, time.March, 12), "")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidStateTransition))

	v, err := env.store.Visits().FindByID(context.Background(), 1, visit.ID, model.AccessScope{Unrestricted: true})
	require.NoError(t, err)
	assert.Equal(t, model.VisitCancelled, v.Status)
	assert.Nil(t, v.PreviousDate)
}
