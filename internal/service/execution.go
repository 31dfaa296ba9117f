package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maintenance-service/internal/apperr"
	"maintenance-service/internal/model"
	"maintenance-service/internal/repository"
	"maintenance-service/pkg/logger"
	"maintenance-service/prometheus"

	"go.uber.org/zap"
)

// ExecutionEngine drives a single visit through its lifecycle and records
// parts consumption against inventory. Completing a visit on an active
// contract schedules the next one, which is how recurring contracts
// self-perpetuate without a separate generation pass.
type ExecutionEngine struct {
	store  repository.Store
	scopes *ScopeResolver
	now    func() time.Time
}

// NewExecutionEngine creates an execution engine
func NewExecutionEngine(store repository.Store, scopes *ScopeResolver) *ExecutionEngine {
	return &ExecutionEngine{store: store, scopes: scopes, now: time.Now}
}

// PartUsage describes one part consumed during a visit
type PartUsage struct {
	ProductID uint     `json:"product_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// CompleteVisitInput carries the completion payload
type CompleteVisitInput struct {
	Status           string      `json:"status,omitempty"` // defaults to completed
	Notes            string      `json:"notes,omitempty"`
	CustomerFeedback string      `json:"customer_feedback,omitempty"`
	CustomerRating   *int        `json:"customer_rating,omitempty"`
	Photos           []string    `json:"photos,omitempty"`
	Parts            []PartUsage `json:"parts,omitempty"`
}

// CompletionResult is the outcome of a visit completion
type CompletionResult struct {
	Visit            *model.MaintenanceVisit `json:"visit"`
	NextVisitCreated bool                    `json:"next_visit_created"`
}

func findVisit(ctx context.Context, s repository.Store, actor model.Actor, scope model.AccessScope, visitID uint) (*model.MaintenanceVisit, error) {
	visit, err := s.Visits().FindByID(ctx, actor.TenantID, visitID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("visit")
		}
		return nil, err
	}
	return visit, nil
}

// transitionTo applies a guarded status write: it fails with
// InvalidStateTransition when another writer moved the visit off prior in
// the meantime, so a transition can never be applied twice.
func transitionTo(ctx context.Context, s repository.Store, visit *model.MaintenanceVisit, prior model.VisitStatus) error {
	err := s.Visits().UpdateIfStatus(ctx, visit, prior)
	if errors.Is(err, repository.ErrStatusConflict) {
		return apperr.InvalidStateTransition(string(prior), string(visit.Status))
	}
	return err
}

// StartVisit transitions a visit to in_progress and assigns the technician.
// The technician must hold a technician assignment on the visit's branch;
// this check is explicit and distinct from the caller's own access scope.
func (e *ExecutionEngine) StartVisit(ctx context.Context, actor model.Actor, visitID, technicianID uint) (*model.MaintenanceVisit, error) {
	if technicianID == 0 {
		return nil, apperr.Validationf("technician_id is required")
	}

	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}

	var visit *model.MaintenanceVisit
	err = e.store.Atomically(ctx, func(s repository.Store) error {
		visit, err = findVisit(ctx, s, actor, scope, visitID)
		if err != nil {
			return err
		}
		if !visit.Status.CanTransitionTo(model.VisitInProgress) {
			return apperr.InvalidStateTransition(string(visit.Status), string(model.VisitInProgress))
		}

		assignment, err := s.Branches().Assignment(ctx, technicianID, visit.BranchID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.AccessDenied("user %d is not assigned to branch %d", technicianID, visit.BranchID)
			}
			return err
		}
		if assignment.Role != model.RoleTechnician {
			return apperr.AccessDenied("user %d is not a technician on branch %d", technicianID, visit.BranchID)
		}

		prior := visit.Status
		now := e.now()
		visit.Status = model.VisitInProgress
		visit.AssignedTechnicianID = &technicianID
		visit.ActualStartTime = &now
		startedBy := actor.UserID
		visit.StartedBy = &startedBy
		return transitionTo(ctx, s, visit, prior)
	})
	if err != nil {
		return nil, err
	}

	prometheus.RecordVisitTransition(string(model.VisitInProgress))
	logger.FromContext(ctx).Info("Visit started",
		zap.Uint("visit_id", visit.ID),
		zap.Uint("technician_id", technicianID),
		zap.Uint("started_by", actor.UserID))
	return visit, nil
}

// CompleteVisit finishes an in_progress visit: it consumes the listed parts
// (all stock pre-checked before the first decrement), recomputes the visit
// total, applies the result status and, when the owning contract is still
// active, schedules the next visit. Everything commits in one transaction.
func (e *ExecutionEngine) CompleteVisit(ctx context.Context, actor model.Actor, visitID uint, in CompleteVisitInput) (*CompletionResult, error) {
	result := model.VisitCompleted
	if in.Status != "" {
		status, ok := model.ParseVisitStatus(in.Status)
		if !ok || (status != model.VisitCompleted && status != model.VisitFailed && status != model.VisitNoAccess) {
			return nil, apperr.Validationf("result status must be completed, failed or no_access")
		}
		result = status
	}
	if in.CustomerRating != nil && (*in.CustomerRating < 1 || *in.CustomerRating > 5) {
		return nil, apperr.Validationf("customer_rating must be between 1 and 5")
	}
	for _, part := range in.Parts {
		if part.Quantity <= 0 {
			return nil, apperr.Validationf("part quantity must be positive")
		}
	}

	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	nextCreated := false

	var visit *model.MaintenanceVisit
	err = e.store.Atomically(ctx, func(s repository.Store) error {
		visit, err = findVisit(ctx, s, actor, scope, visitID)
		if err != nil {
			return err
		}
		if !visit.Status.CanTransitionTo(result) {
			return apperr.InvalidStateTransition(string(visit.Status), string(result))
		}

		// Claim the transition before touching stock: of two concurrent
		// completions the loser fails here and writes nothing.
		prior := visit.Status
		now := e.now()
		visit.Status = result
		visit.ActualEndTime = &now
		visit.CompletionNotes = in.Notes
		visit.CustomerFeedback = in.CustomerFeedback
		visit.CustomerRating = in.CustomerRating
		if len(in.Photos) > 0 {
			visit.Photos = in.Photos
		}
		if err := transitionTo(ctx, s, visit, prior); err != nil {
			return err
		}

		// Pre-check every part against current stock before decrementing
		// anything: a shortfall must leave stock and visit untouched.
		type plannedItem struct {
			product  *model.Product
			quantity int
			unitCost float64
			notes    string
		}
		planned := make([]plannedItem, 0, len(in.Parts))
		for _, part := range in.Parts {
			product, err := s.Products().FindByID(ctx, actor.TenantID, part.ProductID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperr.NotFound("product")
				}
				return err
			}
			if product.Stock < part.Quantity {
				return apperr.InsufficientStock(product.Name, product.Stock, part.Quantity)
			}
			unitCost := product.Price
			if part.UnitPrice != nil {
				unitCost = *part.UnitPrice
			}
			planned = append(planned, plannedItem{
				product:  product,
				quantity: part.Quantity,
				unitCost: unitCost,
				notes:    part.Notes,
			})
		}

		var total float64
		for _, item := range planned {
			visitItem := &model.MaintenanceVisitItem{
				VisitID:   visit.ID,
				ProductID: item.product.ID,
				Quantity:  item.quantity,
				UnitCost:  item.unitCost,
				Total:     float64(item.quantity) * item.unitCost,
				Notes:     item.notes,
			}
			if err := s.Visits().AddItem(ctx, visitItem); err != nil {
				return err
			}
			movement := &model.StockMovement{
				TenantID:  actor.TenantID,
				ProductID: item.product.ID,
				VisitID:   &visit.ID,
				Quantity:  -item.quantity,
				Reason:    model.MovementConsumption,
				Note:      fmt.Sprintf("visit %d parts consumption", visit.ID),
			}
			if err := s.Products().Move(ctx, movement); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					// Backstop for a concurrent consumer between the
					// pre-check and the conditional decrement.
					return apperr.InsufficientStock(item.product.Name, item.product.Stock, item.quantity)
				}
				return err
			}
			prometheus.RecordStockMovement(model.MovementConsumption)
			total += visitItem.Total
		}

		visit.TotalCost = total
		if err := s.Visits().Update(ctx, visit); err != nil {
			return err
		}

		if result == model.VisitCompleted {
			var nextErr error
			nextCreated, nextErr = e.scheduleNextVisit(ctx, s, visit, log)
			if nextErr != nil {
				return nextErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prometheus.RecordVisitTransition(string(result))
	log.Info("Visit completed",
		zap.Uint("visit_id", visit.ID),
		zap.String("result", string(result)),
		zap.Float64("total_cost", visit.TotalCost),
		zap.Int("parts", len(in.Parts)),
		zap.Bool("next_visit_created", nextCreated))
	return &CompletionResult{Visit: visit, NextVisitCreated: nextCreated}, nil
}

// scheduleNextVisit creates the follow-up visit after a completion. This is
// an internal continuation: an inactive or ended contract makes it a silent
// no-op rather than an error.
func (e *ExecutionEngine) scheduleNextVisit(ctx context.Context, s repository.Store, visit *model.MaintenanceVisit, log *zap.Logger) (bool, error) {
	// The contract shares the visit's tenant and branch, so tenant scoping
	// alone is sufficient here.
	contract, err := s.Contracts().FindByID(ctx, visit.TenantID, visit.ContractID, model.AccessScope{Unrestricted: true})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("Owning contract not found for completed visit", zap.Uint("visit_id", visit.ID))
			return false, nil
		}
		return false, err
	}
	if contract.Status != model.ContractActive {
		log.Info("Skipping next-visit scheduling on inactive contract",
			zap.Uint("contract_id", contract.ID),
			zap.String("status", string(contract.Status)))
		return false, nil
	}

	from := visit.ScheduledDate
	if visit.ActualEndTime != nil {
		from = *visit.ActualEndTime
	}
	next, ok, err := contract.NextVisitDate(model.DateOnly(from))
	if err != nil {
		// A misconfigured frequency must not roll back the completion; the
		// gap surfaces through the overdue/analytics views.
		log.Warn("Cannot compute next visit date", zap.Uint("contract_id", contract.ID), zap.Error(err))
		return false, nil
	}
	if !ok {
		return false, nil
	}
	if contract.EndDate != nil && next.After(model.DateOnly(*contract.EndDate)) {
		return false, nil
	}

	exists, err := s.Visits().ExistsOn(ctx, contract.ID, next, false)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	nextVisit := &model.MaintenanceVisit{
		TenantID:      contract.TenantID,
		BranchID:      contract.BranchID,
		ContractID:    contract.ID,
		ScheduledDate: model.DateOnly(next),
		Priority:      visit.Priority,
		Status:        model.VisitScheduled,
	}
	if visit.AssignedTechnicianID != nil {
		nextVisit.AssignedTechnicianID = visit.AssignedTechnicianID
	}
	if err := s.Visits().Create(ctx, nextVisit); err != nil {
		return false, err
	}
	log.Info("Next visit scheduled",
		zap.Uint("contract_id", contract.ID),
		zap.Time("scheduled_date", nextVisit.ScheduledDate))
	return true, nil
}

// UpdateVisitStatus is the generic transition entry point used for cancel,
// fail and similar moves. It re-validates against the transition table
// regardless of caller and stamps the timestamp matching the target state.
func (e *ExecutionEngine) UpdateVisitStatus(ctx context.Context, actor model.Actor, visitID uint, target model.VisitStatus) (*model.MaintenanceVisit, error) {
	if _, ok := model.ParseVisitStatus(string(target)); !ok {
		return nil, apperr.Validationf("unknown visit status %q", target)
	}

	scope, err := e.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}

	var visit *model.MaintenanceVisit
	err = e.store.Atomically(ctx, func(s repository.Store) error {
		visit, err = findVisit(ctx, s, actor, scope, visitID)
		if err != nil {
			return err
		}
		if !visit.Status.CanTransitionTo(target) {
			return apperr.InvalidStateTransition(string(visit.Status), string(target))
		}

		prior := visit.Status
		now := e.now()
		visit.Status = target
		switch target {
		case model.VisitInProgress:
			visit.ActualStartTime = &now
			startedBy := actor.UserID
			visit.StartedBy = &startedBy
		case model.VisitCompleted, model.VisitFailed, model.VisitNoAccess:
			visit.ActualEndTime = &now
		case model.VisitCancelled:
			visit.CancelledAt = &now
		case model.VisitMissed:
			visit.MissedAt = &now
		case model.VisitRescheduled:
			visit.RescheduledAt = &now
		}
		return transitionTo(ctx, s, visit, prior)
	})
	if err != nil {
		return nil, err
	}

	prometheus.RecordVisitTransition(string(target))
	logger.FromContext(ctx).Info("Visit status updated",
		zap.Uint("visit_id", visit.ID),
		zap.String("status", string(target)))
	return visit, nil
}
