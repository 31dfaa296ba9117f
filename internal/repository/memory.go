package repository

import (
	"context"
	"sync"
	"time"

	"maintenance-service/internal/model"
)

// MemoryStore is an in-memory Store implementation used in tests. Atomically
// snapshots the state and restores it when fn fails, mirroring transactional
// rollback.
type MemoryStore struct {
	mu           sync.Mutex
	nextID       uint
	branches     map[uint]model.Branch
	userBranches map[uint]model.UserBranch
	customers    map[uint]model.Customer
	products     map[uint]model.Product
	movements    []model.StockMovement
	contracts    map[uint]model.MaintenanceContract
	visits       map[uint]model.MaintenanceVisit
	visitItems   []model.MaintenanceVisitItem
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		branches:     map[uint]model.Branch{},
		userBranches: map[uint]model.UserBranch{},
		customers:    map[uint]model.Customer{},
		products:     map[uint]model.Product{},
		contracts:    map[uint]model.MaintenanceContract{},
		visits:       map[uint]model.MaintenanceVisit{},
	}
}

func (m *MemoryStore) Branches() BranchRepository   { return memBranches{m} }
func (m *MemoryStore) Customers() CustomerRepository { return memCustomers{m} }
func (m *MemoryStore) Products() ProductRepository   { return memProducts{m} }
func (m *MemoryStore) Contracts() ContractRepository { return memContracts{m} }
func (m *MemoryStore) Visits() VisitRepository       { return memVisits{m} }

type memSnapshot struct {
	nextID       uint
	branches     map[uint]model.Branch
	userBranches map[uint]model.UserBranch
	customers    map[uint]model.Customer
	products     map[uint]model.Product
	movements    []model.StockMovement
	contracts    map[uint]model.MaintenanceContract
	visits       map[uint]model.MaintenanceVisit
	visitItems   []model.MaintenanceVisitItem
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *MemoryStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memSnapshot{
		nextID:       m.nextID,
		branches:     copyMap(m.branches),
		userBranches: copyMap(m.userBranches),
		customers:    copyMap(m.customers),
		products:     copyMap(m.products),
		movements:    append([]model.StockMovement(nil), m.movements...),
		contracts:    copyMap(m.contracts),
		visits:       copyMap(m.visits),
		visitItems:   append([]model.MaintenanceVisitItem(nil), m.visitItems...),
	}
}

func (m *MemoryStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = s.nextID
	m.branches = s.branches
	m.userBranches = s.userBranches
	m.customers = s.customers
	m.products = s.products
	m.movements = s.movements
	m.contracts = s.contracts
	m.visits = s.visits
	m.visitItems = s.visitItems
}

// Atomically runs fn and rolls the store back if it fails
func (m *MemoryStore) Atomically(ctx context.Context, fn func(Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *MemoryStore) allocID() uint {
	m.nextID++
	return m.nextID
}

// Movements returns the recorded stock movement events (test helper)
func (m *MemoryStore) Movements() []model.StockMovement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.StockMovement(nil), m.movements...)
}

// ItemsForVisit returns the consumed-part items of a visit (test helper)
func (m *MemoryStore) ItemsForVisit(visitID uint) []model.MaintenanceVisitItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []model.MaintenanceVisitItem
	for _, item := range m.visitItems {
		if item.VisitID == visitID {
			items = append(items, item)
		}
	}
	return items
}

// --- branches ---

type memBranches struct{ m *MemoryStore }

func (r memBranches) Create(_ context.Context, branch *model.Branch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if branch.ID == 0 {
		branch.ID = r.m.allocID()
	}
	branch.CreatedAt = time.Now()
	branch.UpdatedAt = branch.CreatedAt
	r.m.branches[branch.ID] = *branch
	return nil
}

func (r memBranches) BelongsToTenant(_ context.Context, branchID, tenantID uint) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	branch, ok := r.m.branches[branchID]
	return ok && branch.TenantID == tenantID, nil
}

func (r memBranches) BranchIDsForUser(_ context.Context, tenantID, userID uint) ([]uint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []uint
	for _, a := range r.m.userBranches {
		if a.TenantID == tenantID && a.UserID == userID {
			ids = append(ids, a.BranchID)
		}
	}
	return ids, nil
}

func (r memBranches) Assignment(_ context.Context, userID, branchID uint) (*model.UserBranch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.userBranches {
		if a.UserID == userID && a.BranchID == branchID {
			assignment := a
			return &assignment, nil
		}
	}
	return nil, ErrNotFound
}

func (r memBranches) AssignUser(_ context.Context, assignment *model.UserBranch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, a := range r.m.userBranches {
		if a.UserID == assignment.UserID && a.BranchID == assignment.BranchID {
			a.Role = assignment.Role
			a.IsManager = assignment.IsManager
			r.m.userBranches[id] = a
			*assignment = a
			return nil
		}
	}
	if assignment.ID == 0 {
		assignment.ID = r.m.allocID()
	}
	r.m.userBranches[assignment.ID] = *assignment
	return nil
}

func (r memBranches) UnassignUser(_ context.Context, userID, branchID uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, a := range r.m.userBranches {
		if a.UserID == userID && a.BranchID == branchID {
			delete(r.m.userBranches, id)
			return nil
		}
	}
	return ErrNotFound
}

// --- customers ---

type memCustomers struct{ m *MemoryStore }

func (r memCustomers) FindByID(_ context.Context, tenantID, id uint) (*model.Customer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	customer, ok := r.m.customers[id]
	if !ok || customer.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := customer
	return &out, nil
}

func (r memCustomers) Create(_ context.Context, customer *model.Customer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if customer.ID == 0 {
		customer.ID = r.m.allocID()
	}
	r.m.customers[customer.ID] = *customer
	return nil
}

// --- products ---

type memProducts struct{ m *MemoryStore }

func (r memProducts) FindByID(_ context.Context, tenantID, id uint) (*model.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[id]
	if !ok || product.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := product
	return &out, nil
}

func (r memProducts) Move(_ context.Context, movement *model.StockMovement) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[movement.ProductID]
	if !ok || product.TenantID != movement.TenantID {
		return ErrNotFound
	}
	if product.Stock+movement.Quantity < 0 {
		return ErrInsufficientStock
	}
	product.Stock += movement.Quantity
	r.m.products[movement.ProductID] = product
	if movement.ID == 0 {
		movement.ID = r.m.allocID()
	}
	movement.CreatedAt = time.Now()
	r.m.movements = append(r.m.movements, *movement)
	return nil
}

// SeedProduct inserts a product directly (test helper)
func (m *MemoryStore) SeedProduct(product model.Product) model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if product.ID == 0 {
		product.ID = m.allocID()
	}
	m.products[product.ID] = product
	return product
}

// --- contracts ---

type memContracts struct{ m *MemoryStore }

func (r memContracts) Create(_ context.Context, contract *model.MaintenanceContract) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if contract.ID == 0 {
		contract.ID = r.m.allocID()
	}
	for i := range contract.Items {
		if contract.Items[i].ID == 0 {
			contract.Items[i].ID = r.m.allocID()
		}
		contract.Items[i].ContractID = contract.ID
	}
	contract.CreatedAt = time.Now()
	contract.UpdatedAt = contract.CreatedAt
	r.m.contracts[contract.ID] = *contract
	return nil
}

func (r memContracts) FindByID(_ context.Context, tenantID, id uint, scope model.AccessScope) (*model.MaintenanceContract, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	contract, ok := r.m.contracts[id]
	if !ok || contract.TenantID != tenantID || !scope.Covers(contract.BranchID) {
		return nil, ErrNotFound
	}
	out := contract
	return &out, nil
}

func (r memContracts) Update(_ context.Context, contract *model.MaintenanceContract) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.contracts[contract.ID]; !ok {
		return ErrNotFound
	}
	contract.UpdatedAt = time.Now()
	r.m.contracts[contract.ID] = *contract
	return nil
}

func (r memContracts) List(_ context.Context, tenantID uint, scope model.AccessScope, status model.ContractStatus) ([]model.MaintenanceContract, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var contracts []model.MaintenanceContract
	for _, c := range r.m.contracts {
		if c.TenantID != tenantID || !scope.Covers(c.BranchID) {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

func (r memContracts) CompleteExpiredBefore(_ context.Context, cutoff time.Time, now time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var count int64
	for id, c := range r.m.contracts {
		if c.Status == model.ContractActive && c.EndDate != nil && c.EndDate.Before(cutoff) {
			c.Status = model.ContractCompleted
			c.UpdatedAt = now
			r.m.contracts[id] = c
			count++
		}
	}
	return count, nil
}

// --- visits ---

type memVisits struct{ m *MemoryStore }

func (r memVisits) Create(_ context.Context, visit *model.MaintenanceVisit) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if visit.ID == 0 {
		visit.ID = r.m.allocID()
	}
	visit.CreatedAt = time.Now()
	visit.UpdatedAt = visit.CreatedAt
	r.m.visits[visit.ID] = *visit
	return nil
}

func (r memVisits) FindByID(_ context.Context, tenantID, id uint, scope model.AccessScope) (*model.MaintenanceVisit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	visit, ok := r.m.visits[id]
	if !ok || visit.TenantID != tenantID || !scope.Covers(visit.BranchID) {
		return nil, ErrNotFound
	}
	out := visit
	return &out, nil
}

func (r memVisits) Update(_ context.Context, visit *model.MaintenanceVisit) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.visits[visit.ID]; !ok {
		return ErrNotFound
	}
	visit.UpdatedAt = time.Now()
	r.m.visits[visit.ID] = *visit
	return nil
}

func (r memVisits) UpdateIfStatus(_ context.Context, visit *model.MaintenanceVisit, expected model.VisitStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	current, ok := r.m.visits[visit.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrStatusConflict
	}
	visit.UpdatedAt = time.Now()
	r.m.visits[visit.ID] = *visit
	return nil
}

func (r memVisits) AddItem(_ context.Context, item *model.MaintenanceVisitItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if item.ID == 0 {
		item.ID = r.m.allocID()
	}
	item.CreatedAt = time.Now()
	r.m.visitItems = append(r.m.visitItems, *item)
	return nil
}

func (r memVisits) ListByContract(_ context.Context, contractID uint) ([]model.MaintenanceVisit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var visits []model.MaintenanceVisit
	for _, v := range r.m.visits {
		if v.ContractID == contractID {
			visits = append(visits, v)
		}
	}
	return visits, nil
}

func (r memVisits) ExistsOn(_ context.Context, contractID uint, day time.Time, scheduledOnly bool) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, v := range r.m.visits {
		if v.ContractID != contractID || !model.SameDay(v.ScheduledDate, day) {
			continue
		}
		if scheduledOnly && v.Status != model.VisitScheduled {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (r memVisits) ListUpcoming(_ context.Context, tenantID uint, scope model.AccessScope, from, to time.Time) ([]model.MaintenanceVisit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var visits []model.MaintenanceVisit
	for _, v := range r.m.visits {
		if v.TenantID != tenantID || !scope.Covers(v.BranchID) {
			continue
		}
		if v.Status != model.VisitScheduled && v.Status != model.VisitRescheduled {
			continue
		}
		day := model.DateOnly(v.ScheduledDate)
		if day.Before(model.DateOnly(from)) || day.After(model.DateOnly(to)) {
			continue
		}
		visits = append(visits, v)
	}
	return visits, nil
}

func (r memVisits) ListOverdue(_ context.Context, tenantID uint, scope model.AccessScope, today time.Time) ([]model.MaintenanceVisit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var visits []model.MaintenanceVisit
	for _, v := range r.m.visits {
		if v.TenantID != tenantID || !scope.Covers(v.BranchID) {
			continue
		}
		if v.Status == model.VisitScheduled && model.DateOnly(v.ScheduledDate).Before(model.DateOnly(today)) {
			visits = append(visits, v)
		}
	}
	return visits, nil
}

func (r memVisits) List(_ context.Context, tenantID uint, scope model.AccessScope, from, to *time.Time) ([]model.MaintenanceVisit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var visits []model.MaintenanceVisit
	for _, v := range r.m.visits {
		if v.TenantID != tenantID || !scope.Covers(v.BranchID) {
			continue
		}
		day := model.DateOnly(v.ScheduledDate)
		if from != nil && day.Before(model.DateOnly(*from)) {
			continue
		}
		if to != nil && day.After(model.DateOnly(*to)) {
			continue
		}
		visits = append(visits, v)
	}
	return visits, nil
}

func (r memVisits) CancelFutureScheduled(_ context.Context, contractID uint, after time.Time, now time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var count int64
	for id, v := range r.m.visits {
		if v.ContractID != contractID || v.Status != model.VisitScheduled {
			continue
		}
		if !model.DateOnly(v.ScheduledDate).After(model.DateOnly(after)) {
			continue
		}
		v.Status = model.VisitCancelled
		cancelled := now
		v.CancelledAt = &cancelled
		v.UpdatedAt = now
		r.m.visits[id] = v
		count++
	}
	return count, nil
}

func (r memVisits) MarkMissedBefore(_ context.Context, tenantID uint, cutoff time.Time, now time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var count int64
	for id, v := range r.m.visits {
		if v.Status != model.VisitScheduled {
			continue
		}
		if tenantID != 0 && v.TenantID != tenantID {
			continue
		}
		if !model.DateOnly(v.ScheduledDate).Before(model.DateOnly(cutoff)) {
			continue
		}
		v.Status = model.VisitMissed
		missed := now
		v.MissedAt = &missed
		v.UpdatedAt = now
		r.m.visits[id] = v
		count++
	}
	return count, nil
}
