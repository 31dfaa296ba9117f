package repository

import (
	"context"
	"errors"
	"time"

	"maintenance-service/internal/model"

	"gorm.io/gorm"
)

// NewGormStore returns a Store backed by the given GORM database handle
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) Branches() BranchRepository   { return &gormBranches{db: s.db} }
func (s *gormStore) Customers() CustomerRepository { return &gormCustomers{db: s.db} }
func (s *gormStore) Products() ProductRepository   { return &gormProducts{db: s.db} }
func (s *gormStore) Contracts() ContractRepository { return &gormContracts{db: s.db} }
func (s *gormStore) Visits() VisitRepository       { return &gormVisits{db: s.db} }

func (s *gormStore) Atomically(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// scoped applies tenant and branch filtering to a query. A restricted scope
// with no branches matches nothing (strict deny).
func scoped(q *gorm.DB, tenantID uint, scope model.AccessScope) *gorm.DB {
	q = q.Where("tenant_id = ?", tenantID)
	if scope.Unrestricted {
		return q
	}
	if len(scope.BranchIDs) == 0 {
		return q.Where("1 = 0")
	}
	return q.Where("branch_id IN ?", scope.BranchIDs)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- branches ---

type gormBranches struct {
	db *gorm.DB
}

func (r *gormBranches) Create(ctx context.Context, branch *model.Branch) error {
	return r.db.WithContext(ctx).Create(branch).Error
}

func (r *gormBranches) BelongsToTenant(ctx context.Context, branchID, tenantID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Branch{}).
		Where("id = ? AND tenant_id = ?", branchID, tenantID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormBranches) BranchIDsForUser(ctx context.Context, tenantID, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&model.UserBranch{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Pluck("branch_id", &ids).Error
	return ids, err
}

func (r *gormBranches) Assignment(ctx context.Context, userID, branchID uint) (*model.UserBranch, error) {
	var assignment model.UserBranch
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND branch_id = ?", userID, branchID).
		First(&assignment).Error
	if err != nil {
		return nil, translate(err)
	}
	return &assignment, nil
}

func (r *gormBranches) AssignUser(ctx context.Context, assignment *model.UserBranch) error {
	var existing model.UserBranch
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND branch_id = ?", assignment.UserID, assignment.BranchID).
		First(&existing).Error
	if err == nil {
		existing.Role = assignment.Role
		existing.IsManager = assignment.IsManager
		*assignment = existing
		return r.db.WithContext(ctx).Save(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *gormBranches) UnassignUser(ctx context.Context, userID, branchID uint) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND branch_id = ?", userID, branchID).
		Delete(&model.UserBranch{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- customers ---

type gormCustomers struct {
	db *gorm.DB
}

func (r *gormCustomers) FindByID(ctx context.Context, tenantID, id uint) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&customer).Error
	if err != nil {
		return nil, translate(err)
	}
	return &customer, nil
}

func (r *gormCustomers) Create(ctx context.Context, customer *model.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

// --- products ---

type gormProducts struct {
	db *gorm.DB
}

func (r *gormProducts) FindByID(ctx context.Context, tenantID, id uint) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

func (r *gormProducts) Move(ctx context.Context, movement *model.StockMovement) error {
	q := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ? AND tenant_id = ?", movement.ProductID, movement.TenantID)
	if movement.Quantity < 0 {
		// Conditional decrement closes the race between stock check and
		// consumption under concurrent completions.
		q = q.Where("stock >= ?", -movement.Quantity)
	}
	result := q.UpdateColumn("stock", gorm.Expr("stock + ?", movement.Quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Product{}).
			Where("id = ? AND tenant_id = ?", movement.ProductID, movement.TenantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return r.db.WithContext(ctx).Create(movement).Error
}

// --- contracts ---

type gormContracts struct {
	db *gorm.DB
}

func (r *gormContracts) Create(ctx context.Context, contract *model.MaintenanceContract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *gormContracts) FindByID(ctx context.Context, tenantID, id uint, scope model.AccessScope) (*model.MaintenanceContract, error) {
	var contract model.MaintenanceContract
	err := scoped(r.db.WithContext(ctx), tenantID, scope).
		Preload("Items").
		Where("id = ?", id).
		First(&contract).Error
	if err != nil {
		return nil, translate(err)
	}
	return &contract, nil
}

func (r *gormContracts) Update(ctx context.Context, contract *model.MaintenanceContract) error {
	return r.db.WithContext(ctx).Omit("Items").Save(contract).Error
}

func (r *gormContracts) List(ctx context.Context, tenantID uint, scope model.AccessScope, status model.ContractStatus) ([]model.MaintenanceContract, error) {
	var contracts []model.MaintenanceContract
	q := scoped(r.db.WithContext(ctx), tenantID, scope)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("id").Find(&contracts).Error
	return contracts, err
}

func (r *gormContracts) CompleteExpiredBefore(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.MaintenanceContract{}).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", model.ContractActive, cutoff).
		Updates(map[string]interface{}{"status": model.ContractCompleted, "updated_at": now})
	return result.RowsAffected, result.Error
}

// --- visits ---

type gormVisits struct {
	db *gorm.DB
}

func (r *gormVisits) Create(ctx context.Context, visit *model.MaintenanceVisit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

func (r *gormVisits) FindByID(ctx context.Context, tenantID, id uint, scope model.AccessScope) (*model.MaintenanceVisit, error) {
	var visit model.MaintenanceVisit
	err := scoped(r.db.WithContext(ctx), tenantID, scope).
		Preload("Items").
		Where("id = ?", id).
		First(&visit).Error
	if err != nil {
		return nil, translate(err)
	}
	return &visit, nil
}

func (r *gormVisits) Update(ctx context.Context, visit *model.MaintenanceVisit) error {
	return r.db.WithContext(ctx).Omit("Items").Save(visit).Error
}

func (r *gormVisits) UpdateIfStatus(ctx context.Context, visit *model.MaintenanceVisit, expected model.VisitStatus) error {
	// Conditional write is the linearization point: of two concurrent
	// transitions off the same status, exactly one matches the WHERE clause.
	result := r.db.WithContext(ctx).Model(&model.MaintenanceVisit{}).
		Where("id = ? AND status = ?", visit.ID, expected).
		Select("*").Omit("Items", "CreatedAt", "DeletedAt").
		Updates(visit)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *gormVisits) AddItem(ctx context.Context, item *model.MaintenanceVisitItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *gormVisits) ListByContract(ctx context.Context, contractID uint) ([]model.MaintenanceVisit, error) {
	var visits []model.MaintenanceVisit
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("scheduled_date").
		Find(&visits).Error
	return visits, err
}

func (r *gormVisits) ExistsOn(ctx context.Context, contractID uint, day time.Time, scheduledOnly bool) (bool, error) {
	start := model.DateOnly(day)
	end := start.AddDate(0, 0, 1)
	q := r.db.WithContext(ctx).Model(&model.MaintenanceVisit{}).
		Where("contract_id = ? AND scheduled_date >= ? AND scheduled_date < ?", contractID, start, end)
	if scheduledOnly {
		q = q.Where("status = ?", model.VisitScheduled)
	}
	var count int64
	err := q.Count(&count).Error
	return count > 0, err
}

func (r *gormVisits) ListUpcoming(ctx context.Context, tenantID uint, scope model.AccessScope, from, to time.Time) ([]model.MaintenanceVisit, error) {
	var visits []model.MaintenanceVisit
	err := scoped(r.db.WithContext(ctx), tenantID, scope).
		Where("status IN ?", []model.VisitStatus{model.VisitScheduled, model.VisitRescheduled}).
		Where("scheduled_date >= ? AND scheduled_date <= ?", model.DateOnly(from), model.DateOnly(to)).
		Order("scheduled_date").
		Find(&visits).Error
	return visits, err
}

func (r *gormVisits) ListOverdue(ctx context.Context, tenantID uint, scope model.AccessScope, today time.Time) ([]model.MaintenanceVisit, error) {
	var visits []model.MaintenanceVisit
	err := scoped(r.db.WithContext(ctx), tenantID, scope).
		Where("status = ? AND scheduled_date < ?", model.VisitScheduled, model.DateOnly(today)).
		Order("scheduled_date").
		Find(&visits).Error
	return visits, err
}

func (r *gormVisits) List(ctx context.Context, tenantID uint, scope model.AccessScope, from, to *time.Time) ([]model.MaintenanceVisit, error) {
	var visits []model.MaintenanceVisit
	q := scoped(r.db.WithContext(ctx), tenantID, scope)
	if from != nil {
		q = q.Where("scheduled_date >= ?", model.DateOnly(*from))
	}
	if to != nil {
		q = q.Where("scheduled_date <= ?", model.DateOnly(*to))
	}
	err := q.Order("scheduled_date").Find(&visits).Error
	return visits, err
}

func (r *gormVisits) CancelFutureScheduled(ctx context.Context, contractID uint, after time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.MaintenanceVisit{}).
		Where("contract_id = ? AND status = ? AND scheduled_date > ?", contractID, model.VisitScheduled, model.DateOnly(after)).
		Updates(map[string]interface{}{
			"status":       model.VisitCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

func (r *gormVisits) MarkMissedBefore(ctx context.Context, tenantID uint, cutoff time.Time, now time.Time) (int64, error) {
	// Single conditional update: safe to re-run, and concurrent invocations
	// cannot double count.
	q := r.db.WithContext(ctx).Model(&model.MaintenanceVisit{}).
		Where("status = ? AND scheduled_date < ?", model.VisitScheduled, model.DateOnly(cutoff))
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	result := q.Updates(map[string]interface{}{
			"status":     model.VisitMissed,
			"missed_at":  now,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
