package service

import (
	"context"
	"errors"
	"time"

	"maintenance-service/internal/apperr"
	"maintenance-service/internal/model"
	"maintenance-service/internal/repository"
	"maintenance-service/pkg/logger"

	"go.uber.org/zap"
)

// ContractService owns maintenance contract lifecycle: creation (from a
// sale or directly), renewal, status changes and expiry handling.
type ContractService struct {
	store        repository.Store
	scopes       *ScopeResolver
	scheduler    *SchedulingEngine
	premiumValue float64
	now          func() time.Time
}

// NewContractService creates a contract service. Contracts valued at or
// above premiumValue get their priority escalated one level.
func NewContractService(store repository.Store, scopes *ScopeResolver, scheduler *SchedulingEngine, premiumValue float64) *ContractService {
	return &ContractService{
		store:        store,
		scopes:       scopes,
		scheduler:    scheduler,
		premiumValue: premiumValue,
		now:          time.Now,
	}
}

// ContractItemInput is one maintenance-product line item
type ContractItemInput struct {
	ProductID uint    `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitCost  float64 `json:"unit_cost"`
}

// CreateContractInput carries the contract creation payload
type CreateContractInput struct {
	BranchID       uint                `json:"branch_id"`
	SaleID         *uint               `json:"sale_id,omitempty"`
	CustomerID     *uint               `json:"customer_id,omitempty"`
	CustomerName   string              `json:"customer_name"`
	CustomerPhone  string              `json:"customer_phone,omitempty"`
	CustomerEmail  string              `json:"customer_email,omitempty"`
	ProductID      *uint               `json:"product_id,omitempty"`
	TechnicianID   *uint               `json:"technician_id,omitempty"`
	Frequency      string              `json:"frequency"`
	FrequencyValue int                 `json:"frequency_value,omitempty"`
	FrequencyUnit  string              `json:"frequency_unit,omitempty"`
	StartDate      time.Time           `json:"start_date"`
	EndDate        *time.Time          `json:"end_date,omitempty"`
	ContractValue  *float64            `json:"contract_value,omitempty"`
	Priority       string              `json:"priority,omitempty"`
	Items          []ContractItemInput `json:"items,omitempty"`
	GenerateVisits bool                `json:"generate_visits,omitempty"`
}

// CreateResult is the outcome of a contract creation
type CreateResult struct {
	Contract *model.MaintenanceContract `json:"contract"`
	Visits   GenerationSummary          `json:"visits"`
}

// Create validates and persists a contract, resolving the customer snapshot
// and optionally generating its visit calendar in the same transaction.
func (c *ContractService) Create(ctx context.Context, actor model.Actor, in CreateContractInput) (*CreateResult, error) {
	if in.BranchID == 0 {
		return nil, apperr.Validationf("branch_id is required")
	}
	allowed, err := c.scopes.CanAccessBranch(ctx, actor, in.BranchID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.AccessDenied("no access to branch %d", in.BranchID)
	}

	frequency, ok := model.ParseFrequency(in.Frequency)
	if !ok {
		return nil, apperr.Validationf("unknown frequency %q", in.Frequency)
	}

	priority := model.PriorityMedium
	if in.Priority != "" {
		priority, ok = model.ParsePriority(in.Priority)
		if !ok {
			return nil, apperr.Validationf("unknown priority %q", in.Priority)
		}
	}
	// Premium contracts escalate visit priority.
	if in.ContractValue != nil && c.premiumValue > 0 && *in.ContractValue >= c.premiumValue {
		priority = priority.Escalate()
	}

	contract := &model.MaintenanceContract{
		TenantID:       actor.TenantID,
		BranchID:       in.BranchID,
		SaleID:         in.SaleID,
		CustomerID:     in.CustomerID,
		CustomerName:   in.CustomerName,
		CustomerPhone:  in.CustomerPhone,
		CustomerEmail:  in.CustomerEmail,
		ProductID:      in.ProductID,
		TechnicianID:   in.TechnicianID,
		Frequency:      frequency,
		FrequencyValue: in.FrequencyValue,
		FrequencyUnit:  model.FrequencyUnit(in.FrequencyUnit),
		StartDate:      model.DateOnly(in.StartDate),
		ContractValue:  in.ContractValue,
		Priority:       priority,
		Status:         model.ContractActive,
	}
	if in.EndDate != nil {
		end := model.DateOnly(*in.EndDate)
		contract.EndDate = &end
	}
	for _, item := range in.Items {
		contract.Items = append(contract.Items, model.ContractItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
			Total:     float64(item.Quantity) * item.UnitCost,
		})
	}
	if err := contract.Validate(); err != nil {
		return nil, err
	}

	var summary GenerationSummary
	err = c.store.Atomically(ctx, func(s repository.Store) error {
		if err := c.resolveCustomer(ctx, s, actor, contract); err != nil {
			return err
		}
		if err := s.Contracts().Create(ctx, contract); err != nil {
			return err
		}
		if in.GenerateVisits {
			var genErr error
			summary, genErr = c.scheduler.generateForContract(ctx, s, contract, contract.StartDate)
			return genErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Contract created",
		zap.Uint("contract_id", contract.ID),
		zap.Uint("branch_id", contract.BranchID),
		zap.String("frequency", string(contract.Frequency)),
		zap.String("priority", string(contract.Priority)),
		zap.Int("visits_created", summary.Created))
	return &CreateResult{Contract: contract, Visits: summary}, nil
}

// resolveCustomer fills the contract's customer snapshot. A given
// customer_id is looked up in the directory; otherwise a directory entry is
// created from the snapshot fields.
func (c *ContractService) resolveCustomer(ctx context.Context, s repository.Store, actor model.Actor, contract *model.MaintenanceContract) error {
	if contract.CustomerID != nil {
		customer, err := s.Customers().FindByID(ctx, actor.TenantID, *contract.CustomerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("customer")
			}
			return err
		}
		if contract.CustomerName == "" {
			contract.CustomerName = customer.Name
		}
		if contract.CustomerPhone == "" {
			contract.CustomerPhone = customer.Phone
		}
		if contract.CustomerEmail == "" {
			contract.CustomerEmail = customer.Email
		}
		return nil
	}
	if contract.CustomerName == "" {
		return apperr.Validationf("customer_name is required when customer_id is not given")
	}
	customer := &model.Customer{
		TenantID: actor.TenantID,
		Name:     contract.CustomerName,
		Phone:    contract.CustomerPhone,
		Email:    contract.CustomerEmail,
	}
	if err := s.Customers().Create(ctx, customer); err != nil {
		return err
	}
	contract.CustomerID = &customer.ID
	return nil
}

// Get returns a contract with its visit history, scoped to the actor
func (c *ContractService) Get(ctx context.Context, actor model.Actor, contractID uint) (*model.MaintenanceContract, []model.MaintenanceVisit, error) {
	scope, err := c.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, nil, err
	}
	contract, err := c.store.Contracts().FindByID(ctx, actor.TenantID, contractID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.NotFound("contract")
		}
		return nil, nil, err
	}
	visits, err := c.store.Visits().ListByContract(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	return contract, visits, nil
}

// List returns the actor's visible contracts, optionally filtered by status
func (c *ContractService) List(ctx context.Context, actor model.Actor, status string) ([]model.MaintenanceContract, error) {
	var contractStatus model.ContractStatus
	if status != "" {
		parsed, ok := model.ParseContractStatus(status)
		if !ok {
			return nil, apperr.Validationf("unknown contract status %q", status)
		}
		contractStatus = parsed
	}
	scope, err := c.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	return c.store.Contracts().List(ctx, actor.TenantID, scope, contractStatus)
}

// contractStatusTransitions guards contract lifecycle moves. Renewal is the
// only way back out of completed.
var contractStatusTransitions = map[model.ContractStatus][]model.ContractStatus{
	model.ContractActive:    {model.ContractPaused, model.ContractCompleted, model.ContractCancelled},
	model.ContractPaused:    {model.ContractActive, model.ContractCancelled},
	model.ContractCompleted: {},
	model.ContractCancelled: {},
}

// UpdateStatus transitions a contract between lifecycle states. Moving to a
// terminal state cancels the contract's future scheduled visits in the same
// transaction.
func (c *ContractService) UpdateStatus(ctx context.Context, actor model.Actor, contractID uint, status string) (*model.MaintenanceContract, error) {
	target, ok := model.ParseContractStatus(status)
	if !ok {
		return nil, apperr.Validationf("unknown contract status %q", status)
	}

	scope, err := c.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	contract, err := c.store.Contracts().FindByID(ctx, actor.TenantID, contractID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("contract")
		}
		return nil, err
	}

	allowed := false
	for _, next := range contractStatusTransitions[contract.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperr.InvalidStateTransition(string(contract.Status), string(target))
	}

	now := c.now()
	err = c.store.Atomically(ctx, func(s repository.Store) error {
		contract.Status = target
		if err := s.Contracts().Update(ctx, contract); err != nil {
			return err
		}
		if target == model.ContractCancelled || target == model.ContractCompleted {
			if _, err := s.Visits().CancelFutureScheduled(ctx, contract.ID, now, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Contract status updated",
		zap.Uint("contract_id", contract.ID),
		zap.String("status", string(target)))
	return contract, nil
}

// Renew extends a contract to a new end date, reactivates it and optionally
// regenerates its visit calendar.
func (c *ContractService) Renew(ctx context.Context, actor model.Actor, contractID uint, newEndDate time.Time, regenerate bool) (*CreateResult, error) {
	if newEndDate.IsZero() {
		return nil, apperr.Validationf("new end_date is required")
	}

	scope, err := c.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	contract, err := c.store.Contracts().FindByID(ctx, actor.TenantID, contractID, scope)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("contract")
		}
		return nil, err
	}
	if contract.Status == model.ContractCancelled {
		return nil, apperr.ContractInactive(string(contract.Status))
	}

	end := model.DateOnly(newEndDate)
	if end.Before(model.DateOnly(contract.StartDate)) {
		return nil, apperr.Validationf("end_date must not be before start_date")
	}
	if contract.EndDate != nil && !end.After(model.DateOnly(*contract.EndDate)) {
		return nil, apperr.Validationf("renewal end_date must extend the contract")
	}

	now := c.now()
	var summary GenerationSummary
	err = c.store.Atomically(ctx, func(s repository.Store) error {
		contract.EndDate = &end
		contract.Status = model.ContractActive
		if err := s.Contracts().Update(ctx, contract); err != nil {
			return err
		}
		if regenerate {
			// Only future dates are (re)created; the recurrence stays
			// aligned to the original start_date.
			var genErr error
			summary, genErr = c.scheduler.generateForContract(ctx, s, contract, now)
			return genErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Contract renewed",
		zap.Uint("contract_id", contract.ID),
		zap.Time("end_date", end),
		zap.Int("visits_created", summary.Created))
	return &CreateResult{Contract: contract, Visits: summary}, nil
}

// ExpireOverdue completes active contracts whose end date has passed.
// Idempotent batch job, run alongside the missed-visit sweeper.
func (c *ContractService) ExpireOverdue(ctx context.Context) (int64, error) {
	now := c.now()
	count, err := c.store.Contracts().CompleteExpiredBefore(ctx, model.DateOnly(now), now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.FromContext(ctx).Info("Expired contracts completed", zap.Int64("count", count))
	}
	return count, nil
}
