package model

import (
	"time"

	"maintenance-service/internal/apperr"

	"gorm.io/gorm"
)

// ContractStatus is the closed set of contract lifecycle states
type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractPaused    ContractStatus = "paused"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
)

// ParseContractStatus maps a raw string to a known ContractStatus
func ParseContractStatus(s string) (ContractStatus, bool) {
	switch ContractStatus(s) {
	case ContractActive, ContractPaused, ContractCompleted, ContractCancelled:
		return ContractStatus(s), true
	}
	return "", false
}

// Frequency is the recurrence of a maintenance contract
type Frequency string

const (
	FrequencyOnce       Frequency = "once"
	FrequencyDaily      Frequency = "daily"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiWeekly   Frequency = "bi_weekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiAnnual Frequency = "semi_annual"
	FrequencyAnnual     Frequency = "annual"
	FrequencyCustom     Frequency = "custom"
)

// ParseFrequency maps a raw string to a known Frequency
func ParseFrequency(s string) (Frequency, bool) {
	switch Frequency(s) {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly,
		FrequencyMonthly, FrequencyQuarterly, FrequencySemiAnnual,
		FrequencyAnnual, FrequencyCustom:
		return Frequency(s), true
	}
	return "", false
}

// FrequencyUnit is the unit of a custom frequency step
type FrequencyUnit string

const (
	UnitDays   FrequencyUnit = "days"
	UnitWeeks  FrequencyUnit = "weeks"
	UnitMonths FrequencyUnit = "months"
	UnitYears  FrequencyUnit = "years"
)

// Priority levels shared by contracts and visits
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps a raw string to a known Priority
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s), true
	}
	return "", false
}

// Escalate returns the next priority level up
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityUrgent
	}
}

// MaintenanceContract represents a recurring service agreement. BranchID is
// assigned at creation and immutable thereafter; every visit generated for
// the contract copies its tenant and branch verbatim.
type MaintenanceContract struct {
	ID       uint  `json:"id" gorm:"primaryKey"`
	TenantID uint  `json:"tenant_id" gorm:"index;not null"`
	BranchID uint  `json:"branch_id" gorm:"index;not null"`
	SaleID   *uint `json:"sale_id,omitempty" gorm:"index"`

	// Customer snapshot, independent of later customer directory edits
	CustomerID    *uint  `json:"customer_id,omitempty" gorm:"index"`
	CustomerName  string `json:"customer_name" gorm:"type:varchar(255);not null"`
	CustomerPhone string `json:"customer_phone" gorm:"type:varchar(50)"`
	CustomerEmail string `json:"customer_email" gorm:"type:varchar(100)"`

	ProductID    *uint `json:"product_id,omitempty" gorm:"index"`
	TechnicianID *uint `json:"technician_id,omitempty" gorm:"index"`

	Frequency      Frequency     `json:"frequency" gorm:"type:varchar(20);not null"`
	FrequencyValue int           `json:"frequency_value,omitempty"`
	FrequencyUnit  FrequencyUnit `json:"frequency_unit,omitempty" gorm:"type:varchar(10)"`

	StartDate time.Time  `json:"start_date" gorm:"not null"`
	EndDate   *time.Time `json:"end_date,omitempty"` // nil = open-ended

	ContractValue *float64       `json:"contract_value,omitempty"`
	Priority      Priority       `json:"priority" gorm:"type:varchar(10);not null;default:'medium'"`
	Status        ContractStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`

	Items []ContractItem `json:"items,omitempty" gorm:"foreignKey:ContractID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// ContractItem is a maintenance-product line item on a contract
type ContractItem struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ContractID uint      `json:"contract_id" gorm:"index;not null"`
	ProductID  uint      `json:"product_id" gorm:"index;not null"`
	Quantity   int       `json:"quantity" gorm:"not null"`
	UnitCost   float64   `json:"unit_cost" gorm:"not null"`
	Total      float64   `json:"total" gorm:"not null"` // quantity * unit cost
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the contract's schedule spec before any write
func (c *MaintenanceContract) Validate() error {
	if c.StartDate.IsZero() {
		return apperr.Validationf("start_date is required")
	}
	if _, ok := ParseFrequency(string(c.Frequency)); !ok {
		return apperr.Validationf("unknown frequency %q", c.Frequency)
	}
	if c.Frequency == FrequencyCustom {
		if c.FrequencyValue <= 0 {
			return apperr.Validationf("custom frequency requires a positive frequency_value")
		}
		switch c.FrequencyUnit {
		case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		default:
			return apperr.Validationf("custom frequency requires frequency_unit of days, weeks, months or years")
		}
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return apperr.Validationf("end_date must not be before start_date")
	}
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			return apperr.Validationf("contract item quantity must be positive")
		}
		if item.UnitCost < 0 {
			return apperr.Validationf("contract item unit_cost must not be negative")
		}
	}
	return nil
}

// NextVisitDate advances from the given date by one frequency step.
// The second return value is false when the contract does not recur (once).
func (c *MaintenanceContract) NextVisitDate(from time.Time) (time.Time, bool, error) {
	switch c.Frequency {
	case FrequencyOnce:
		return time.Time{}, false, nil
	case FrequencyDaily:
		return from.AddDate(0, 0, 1), true, nil
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), true, nil
	case FrequencyBiWeekly:
		return from.AddDate(0, 0, 14), true, nil
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0), true, nil
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0), true, nil
	case FrequencySemiAnnual:
		return from.AddDate(0, 6, 0), true, nil
	case FrequencyAnnual:
		return from.AddDate(1, 0, 0), true, nil
	case FrequencyCustom:
		if c.FrequencyValue <= 0 {
			return time.Time{}, false, apperr.Validationf("custom frequency requires a positive frequency_value")
		}
		switch c.FrequencyUnit {
		case UnitDays:
			return from.AddDate(0, 0, c.FrequencyValue), true, nil
		case UnitWeeks:
			return from.AddDate(0, 0, 7*c.FrequencyValue), true, nil
		case UnitMonths:
			return from.AddDate(0, c.FrequencyValue, 0), true, nil
		case UnitYears:
			return from.AddDate(c.FrequencyValue, 0, 0), true, nil
		default:
			return time.Time{}, false, apperr.Validationf("custom frequency requires frequency_unit of days, weeks, months or years")
		}
	default:
		return time.Time{}, false, apperr.Validationf("unknown frequency %q", c.Frequency)
	}
}

// ExpiredAt reports whether the contract's end date has passed at t
func (c *MaintenanceContract) ExpiredAt(t time.Time) bool {
	return c.EndDate != nil && c.EndDate.Before(DateOnly(t))
}

// DateOnly truncates a time to its calendar day
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two times fall on the same calendar day
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
