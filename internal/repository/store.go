// Package repository defines the scoped data-access contracts the engines
// run on, plus their GORM and in-memory implementations. Every read takes
// the tenant id and access scope as explicit parameters; there is no
// implicit global query mutation.
package repository

import (
	"context"
	"errors"
	"time"

	"maintenance-service/internal/model"
)

// ErrNotFound is returned when a row does not exist or is filtered out by
// the caller's access scope.
var ErrNotFound = errors.New("record not found")

// ErrInsufficientStock is returned when a stock movement would drive a
// product's stock below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrStatusConflict is returned by UpdateIfStatus when the stored visit no
// longer carries the expected status, i.e. a concurrent transition won.
var ErrStatusConflict = errors.New("visit status conflict")

// Store bundles the repositories and the transaction runner. Atomically
// executes fn against a Store bound to a single database transaction: either
// all writes commit together, or none do.
type Store interface {
	Branches() BranchRepository
	Customers() CustomerRepository
	Products() ProductRepository
	Contracts() ContractRepository
	Visits() VisitRepository
	Atomically(ctx context.Context, fn func(Store) error) error
}

// BranchRepository accesses branches and user-branch assignments
type BranchRepository interface {
	Create(ctx context.Context, branch *model.Branch) error
	BelongsToTenant(ctx context.Context, branchID, tenantID uint) (bool, error)
	BranchIDsForUser(ctx context.Context, tenantID, userID uint) ([]uint, error)
	Assignment(ctx context.Context, userID, branchID uint) (*model.UserBranch, error)
	AssignUser(ctx context.Context, assignment *model.UserBranch) error
	UnassignUser(ctx context.Context, userID, branchID uint) error
}

// CustomerRepository accesses the customer directory
type CustomerRepository interface {
	FindByID(ctx context.Context, tenantID, id uint) (*model.Customer, error)
	Create(ctx context.Context, customer *model.Customer) error
}

// ProductRepository accesses products and applies stock movements
type ProductRepository interface {
	FindByID(ctx context.Context, tenantID, id uint) (*model.Product, error)
	// Move records a stock movement event and applies its signed quantity to
	// the product's stock in one statement pair. A negative quantity that
	// would drive stock below zero fails with ErrInsufficientStock and
	// applies nothing.
	Move(ctx context.Context, movement *model.StockMovement) error
}

// ContractRepository accesses maintenance contracts
type ContractRepository interface {
	Create(ctx context.Context, contract *model.MaintenanceContract) error
	FindByID(ctx context.Context, tenantID, id uint, scope model.AccessScope) (*model.MaintenanceContract, error)
	Update(ctx context.Context, contract *model.MaintenanceContract) error
	List(ctx context.Context, tenantID uint, scope model.AccessScope, status model.ContractStatus) ([]model.MaintenanceContract, error)
	// CompleteExpiredBefore transitions active contracts whose end date lies
	// before cutoff to completed, returning the number of rows changed.
	CompleteExpiredBefore(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)
}

// VisitRepository accesses maintenance visits and their items
type VisitRepository interface {
	Create(ctx context.Context, visit *model.MaintenanceVisit) error
	FindByID(ctx context.Context, tenantID, id uint, scope model.AccessScope) (*model.MaintenanceVisit, error)
	Update(ctx context.Context, visit *model.MaintenanceVisit) error
	// UpdateIfStatus persists the visit only while its stored status still
	// equals expected, failing with ErrStatusConflict otherwise. State
	// transitions go through this so two concurrent writers cannot both
	// apply the same transition.
	UpdateIfStatus(ctx context.Context, visit *model.MaintenanceVisit, expected model.VisitStatus) error
	AddItem(ctx context.Context, item *model.MaintenanceVisitItem) error
	ListByContract(ctx context.Context, contractID uint) ([]model.MaintenanceVisit, error)
	// ExistsOn reports whether the contract already has a visit on the given
	// calendar day. With scheduledOnly, only scheduled-status visits count.
	ExistsOn(ctx context.Context, contractID uint, day time.Time, scheduledOnly bool) (bool, error)
	ListUpcoming(ctx context.Context, tenantID uint, scope model.AccessScope, from, to time.Time) ([]model.MaintenanceVisit, error)
	ListOverdue(ctx context.Context, tenantID uint, scope model.AccessScope, today time.Time) ([]model.MaintenanceVisit, error)
	List(ctx context.Context, tenantID uint, scope model.AccessScope, from, to *time.Time) ([]model.MaintenanceVisit, error)
	// CancelFutureScheduled transitions the contract's scheduled visits dated
	// strictly after the given day to cancelled, returning the count.
	CancelFutureScheduled(ctx context.Context, contractID uint, after time.Time, now time.Time) (int64, error)
	// MarkMissedBefore transitions scheduled visits dated before cutoff to
	// missed with a single conditional update, returning the count. Re-runs
	// change zero rows. A zero tenantID sweeps every tenant (background
	// ticker); request-triggered runs pass the caller's tenant.
	MarkMissedBefore(ctx context.Context, tenantID uint, cutoff time.Time, now time.Time) (int64, error)
}
