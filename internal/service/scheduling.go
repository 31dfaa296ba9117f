package service

import (
	"context"
	"errors"
	"time"

	"maintenance-service/internal/apperr"
	"maintenance-service/internal/model"
	"maintenance-service/internal/repository"
	"maintenance-service/pkg/logger"
	"maintenance-service/prometheus"

	"go.uber.org/zap"
)

// maxGenerationIterations is a hard guard against runaway expansion on top
// of the date horizon.
const maxGenerationIterations = 10000

// GenerationSummary reports the outcome of one visit generation run
type GenerationSummary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SchedulingEngine expands contract frequencies into visit calendars and
// owns the schedule-level visit operations: reschedule, bulk cancel,
// upcoming/overdue queries and missed-visit sweeping.
type SchedulingEngine struct {
	store         repository.Store
	scopes        *ScopeResolver
	horizonMonths int
	now           func() time.Time
}

// NewSchedulingEngine creates a scheduling engine. horizonMonths caps
// generation for open-ended contracts.
func NewSchedulingEngine(store repository.Store, scopes *ScopeResolver, horizonMonths int) *SchedulingEngine {
	if horizonMonths <= 0 {
		horizonMonths = 24
	}
	return &SchedulingEngine{
		store:         store,
		scopes:        scopes,
		horizonMonths: horizonMonths,
		now:           time.Now,
	}
}

// GenerateScheduledVisits expands the contract's frequency into scheduled
// visits up to its end date, or up to the generation horizon when the
// contract is open-ended. Re-invoking is safe: dates that already carry a
// scheduled visit are skipped, never duplicated.
func (e *SchedulingEngine) GenerateScheduledVisits(ctx context.Context, actor model.Actor, contractID uint) (GenerationSummary, error) {
	var summary GenerationSummary

	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return summary, err
	}

	contract, err := e.store.Contracts().FindByID(ctx, actor.TenantID, contractID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return summary, apperr.NotFound("contract")
		}
		return summary, err
	}
	if contract.Status != model.ContractActive {
		return summary, apperr.ContractInactive(string(contract.Status))
	}
	// A contract past its end date has no future calendar to expand; it
	// needs a renewal (or the expiry sweep) first.
	if contract.ExpiredAt(e.now()) {
		return summary, apperr.ContractExpired(contract.EndDate.Format("2006-01-02"))
	}
	// Validation happens before any row is touched; a bad custom frequency
	// blocks the whole run.
	if err := contract.Validate(); err != nil {
		return summary, err
	}

	err = e.store.Atomically(ctx, func(s repository.Store) error {
		var genErr error
		summary, genErr = e.generateForContract(ctx, s, contract, contract.StartDate)
		return genErr
	})
	if err != nil {
		return GenerationSummary{}, err
	}

	prometheus.RecordGeneration(summary.Created, summary.Skipped)
	logger.FromContext(ctx).Info("Visit generation finished",
		zap.Uint("contract_id", contract.ID),
		zap.Int("created", summary.Created),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// generateForContract walks the contract's calendar inside the caller's
// transaction. Dates before from are stepped over without touching rows, so
// renewal keeps the recurrence aligned to start_date while only creating
// future visits. Shared with contract creation and renewal.
func (e *SchedulingEngine) generateForContract(ctx context.Context, s repository.Store, contract *model.MaintenanceContract, from time.Time) (GenerationSummary, error) {
	var summary GenerationSummary

	cursor := model.DateOnly(contract.StartDate)
	floor := model.DateOnly(from)

	if contract.Frequency == model.FrequencyOnce {
		if cursor.Before(floor) {
			return summary, nil
		}
		created, err := e.createVisitIfAbsent(ctx, s, contract, cursor)
		if err != nil {
			return summary, err
		}
		if created {
			summary.Created++
		} else {
			summary.Skipped++
		}
		return summary, nil
	}

	// Cap by end_date, or by the horizon when the contract is open-ended;
	// the boundary date itself is inclusive.
	limit := model.DateOnly(e.now()).AddDate(0, e.horizonMonths, 0)
	if contract.EndDate != nil {
		limit = model.DateOnly(*contract.EndDate)
	}

	for i := 0; !cursor.After(limit) && i < maxGenerationIterations; i++ {
		if !cursor.Before(floor) {
			created, err := e.createVisitIfAbsent(ctx, s, contract, cursor)
			if err != nil {
				return summary, err
			}
			if created {
				summary.Created++
			} else {
				summary.Skipped++
			}
		}

		next, ok, err := contract.NextVisitDate(cursor)
		if err != nil {
			return summary, err
		}
		if !ok || !next.After(cursor) {
			break
		}
		cursor = next
	}
	return summary, nil
}

func (e *SchedulingEngine) createVisitIfAbsent(ctx context.Context, s repository.Store, contract *model.MaintenanceContract, day time.Time) (bool, error) {
	exists, err := s.Visits().ExistsOn(ctx, contract.ID, day, true)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	visit := &model.MaintenanceVisit{
		TenantID:      contract.TenantID,
		BranchID:      contract.BranchID,
		ContractID:    contract.ID,
		ScheduledDate: day,
		Priority:      contract.Priority,
		Status:        model.VisitScheduled,
	}
	if contract.TechnicianID != nil {
		visit.AssignedTechnicianID = contract.TechnicianID
	}
	if err := s.Visits().Create(ctx, visit); err != nil {
		return false, err
	}
	return true, nil
}

// GetVisit returns a single visit visible under the actor's scope
func (e *SchedulingEngine) GetVisit(ctx context.Context, actor model.Actor, visitID uint) (*model.MaintenanceVisit, error) {
	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	visit, err := e.store.Visits().FindByID(ctx, actor.TenantID, visitID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("visit")
		}
		return nil, err
	}
	return visit, nil
}

// RescheduleVisit moves a visit to a new date. The prior date is preserved
// and the visit enters the rescheduled status, which is visible in
// transition history and metrics.
func (e *SchedulingEngine) RescheduleVisit(ctx context.Context, actor model.Actor, visitID uint, newDate time.Time, newTime string) (*model.MaintenanceVisit, error) {
	if newDate.IsZero() {
		return nil, apperr.Validationf("new scheduled_date is required")
	}

	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}

	var visit *model.MaintenanceVisit
	var priorDate time.Time
	err = e.store.Atomically(ctx, func(s repository.Store) error {
		visit, err = s.Visits().FindByID(ctx, actor.TenantID, visitID, scope)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("visit")
			}
			return err
		}

		// A visit may be (re)rescheduled from any state that can legally
		// enter the rescheduled status, and from rescheduled itself.
		switch visit.Status {
		case model.VisitScheduled, model.VisitRescheduled, model.VisitFailed, model.VisitNoAccess, model.VisitMissed:
		default:
			return apperr.InvalidStateTransition(string(visit.Status), string(model.VisitRescheduled))
		}

		priorStatus := visit.Status
		priorDate = visit.ScheduledDate
		now := e.now()
		visit.PreviousDate = &priorDate
		visit.ScheduledDate = model.DateOnly(newDate)
		if newTime != "" {
			visit.ScheduledTime = newTime
		}
		visit.Status = model.VisitRescheduled
		visit.RescheduledAt = &now

		// Guarded write: a transition that races this reschedule wins or
		// loses cleanly, never both.
		updateErr := s.Visits().UpdateIfStatus(ctx, visit, priorStatus)
		if errors.Is(updateErr, repository.ErrStatusConflict) {
			return apperr.InvalidStateTransition(string(priorStatus), string(model.VisitRescheduled))
		}
		return updateErr
	})
	if err != nil {
		return nil, err
	}

	prometheus.RecordVisitTransition(string(model.VisitRescheduled))
	logger.FromContext(ctx).Info("Visit rescheduled",
		zap.Uint("visit_id", visit.ID),
		zap.Time("previous_date", priorDate),
		zap.Time("new_date", visit.ScheduledDate))
	return visit, nil
}

// CancelFutureVisits bulk-cancels the contract's scheduled visits dated
// after today. Past and overdue visits are untouched.
func (e *SchedulingEngine) CancelFutureVisits(ctx context.Context, actor model.Actor, contractID uint) (int64, error) {
	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return 0, err
	}
	if _, err := e.store.Contracts().FindByID(ctx, actor.TenantID, contractID, scope); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, apperr.NotFound("contract")
		}
		return 0, err
	}

	var count int64
	now := e.now()
	err = e.store.Atomically(ctx, func(s repository.Store) error {
		var cancelErr error
		count, cancelErr = s.Visits().CancelFutureScheduled(ctx, contractID, now, now)
		return cancelErr
	})
	if err != nil {
		return 0, err
	}

	logger.FromContext(ctx).Info("Future visits cancelled",
		zap.Uint("contract_id", contractID),
		zap.Int64("count", count))
	return count, nil
}

// UpcomingVisits lists scheduled/rescheduled visits within the next N days,
// filtered by the actor's access scope.
func (e *SchedulingEngine) UpcomingVisits(ctx context.Context, actor model.Actor, days int) ([]model.MaintenanceVisit, error) {
	if days <= 0 {
		days = 7
	}
	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	from := model.DateOnly(e.now())
	to := from.AddDate(0, 0, days)
	return e.store.Visits().ListUpcoming(ctx, actor.TenantID, scope, from, to)
}

// OverdueVisits lists still-scheduled visits dated before today, filtered by
// the actor's access scope.
func (e *SchedulingEngine) OverdueVisits(ctx context.Context, actor model.Actor) ([]model.MaintenanceVisit, error) {
	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	return e.store.Visits().ListOverdue(ctx, actor.TenantID, scope, e.now())
}

// MarkOverdueVisitsAsMissed flags scheduled visits more than one day in the
// past as missed. Idempotent: a second run changes zero rows. Admin-triggered
// runs pass their own tenant; the background ticker passes zero to sweep all
// tenants.
func (e *SchedulingEngine) MarkOverdueVisitsAsMissed(ctx context.Context, tenantID uint) (int64, error) {
	cutoff := model.DateOnly(e.now()).AddDate(0, 0, -1)
	count, err := e.store.Visits().MarkMissedBefore(ctx, tenantID, cutoff, e.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		prometheus.RecordVisitsMissed(count)
		logger.FromContext(ctx).Info("Overdue visits marked as missed", zap.Int64("count", count))
	}
	return count, nil
}
