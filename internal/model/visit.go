package model

import (
	"time"

	"gorm.io/gorm"
)

// VisitStatus is a state in the visit lifecycle state machine
type VisitStatus string

const (
	VisitScheduled   VisitStatus = "scheduled"
	VisitRescheduled VisitStatus = "rescheduled"
	VisitInProgress  VisitStatus = "in_progress"
	VisitCompleted   VisitStatus = "completed"
	VisitFailed      VisitStatus = "failed"
	VisitNoAccess    VisitStatus = "no_access"
	VisitCancelled   VisitStatus = "cancelled"
	VisitMissed      VisitStatus = "missed"
)

// ParseVisitStatus maps a raw string to a known VisitStatus
func ParseVisitStatus(s string) (VisitStatus, bool) {
	switch VisitStatus(s) {
	case VisitScheduled, VisitRescheduled, VisitInProgress, VisitCompleted,
		VisitFailed, VisitNoAccess, VisitCancelled, VisitMissed:
		return VisitStatus(s), true
	}
	return "", false
}

// visitTransitions is the full transition table. Any (from, to) pair not
// listed here is rejected with an invalid-state-transition error.
var visitTransitions = map[VisitStatus][]VisitStatus{
	VisitScheduled:   {VisitInProgress, VisitRescheduled, VisitCancelled, VisitMissed},
	VisitRescheduled: {VisitInProgress, VisitCancelled, VisitMissed},
	VisitInProgress:  {VisitCompleted, VisitFailed, VisitNoAccess},
	VisitFailed:      {VisitRescheduled},
	VisitNoAccess:    {VisitRescheduled},
	VisitMissed:      {VisitRescheduled},
	VisitCompleted:   {},
	VisitCancelled:   {},
}

// CanTransitionTo reports whether the transition from s to target is permitted
func (s VisitStatus) CanTransitionTo(target VisitStatus) bool {
	for _, allowed := range visitTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are permitted from s
func (s VisitStatus) Terminal() bool {
	return s == VisitCompleted || s == VisitCancelled
}

// MaintenanceVisit is one concrete scheduled/executed maintenance occurrence
// under a contract. TenantID and BranchID are copied from the contract at
// creation time and never independently settable afterwards.
type MaintenanceVisit struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	TenantID   uint `json:"tenant_id" gorm:"index;not null"`
	BranchID   uint `json:"branch_id" gorm:"index;not null"`
	ContractID uint `json:"contract_id" gorm:"index;not null"`

	ScheduledDate time.Time  `json:"scheduled_date" gorm:"not null;index"`
	ScheduledTime string     `json:"scheduled_time,omitempty" gorm:"type:varchar(5)"` // HH:MM
	PreviousDate  *time.Time `json:"previous_date,omitempty"`                         // set on reschedule
	Priority      Priority   `json:"priority" gorm:"type:varchar(10);not null;default:'medium'"`

	Status               VisitStatus `json:"status" gorm:"type:varchar(20);not null;default:'scheduled';index"`
	AssignedTechnicianID *uint       `json:"assigned_technician_id,omitempty" gorm:"index"`
	StartedBy            *uint       `json:"started_by,omitempty"`

	ActualStartTime *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime   *time.Time `json:"actual_end_time,omitempty"`
	RescheduledAt   *time.Time `json:"rescheduled_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	MissedAt        *time.Time `json:"missed_at,omitempty"`

	CompletionNotes  string   `json:"completion_notes,omitempty" gorm:"type:text"`
	CustomerFeedback string   `json:"customer_feedback,omitempty" gorm:"type:text"`
	CustomerRating   *int     `json:"customer_rating,omitempty"` // 1-5
	TotalCost        float64  `json:"total_cost"`                // sum of consumed-part costs
	Photos           []string `json:"photos,omitempty" gorm:"serializer:json"`

	Items []MaintenanceVisitItem `json:"items,omitempty" gorm:"foreignKey:VisitID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// MaintenanceVisitItem is a part consumed during a visit
type MaintenanceVisitItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	VisitID   uint      `json:"visit_id" gorm:"index;not null"`
	ProductID uint      `json:"product_id" gorm:"index;not null"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	UnitCost  float64   `json:"unit_cost" gorm:"not null"`
	Total     float64   `json:"total" gorm:"not null"` // quantity * unit cost
	Notes     string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}
