package model

import (
	"time"

	"gorm.io/gorm"
)

// Product represents the product master data, including the on-hand stock
// consumed by maintenance visits. Stock is only mutated through
// StockMovement commands, never through direct field updates.
type Product struct {
	ID          uint           `json:"id" gorm:"primarykey"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	SKU         string         `json:"sku" gorm:"type:varchar(100);unique;not null"`
	Price       float64        `json:"price" gorm:"not null"`
	Stock       int            `json:"stock" gorm:"default:0"`
	TenantID    uint           `json:"tenant_id" gorm:"index;not null"`
	IsActive    bool           `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Stock movement reasons
const (
	MovementConsumption = "consumption" // parts consumed during a visit
	MovementReversal    = "reversal"    // compensating entry for a removed item
	MovementAdjustment  = "adjustment"  // manual stock correction
)

// StockMovement is an explicit, signed stock mutation event. Visit
// completion records one movement per consumed part inside the same
// transaction as the visit update, so "visit completed" and "stock changed"
// are a single atomic step.
type StockMovement struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	ProductID uint      `json:"product_id" gorm:"index;not null"`
	VisitID   *uint     `json:"visit_id,omitempty" gorm:"index"`
	Quantity  int       `json:"quantity" gorm:"not null"` // negative = stock out
	Reason    string    `json:"reason" gorm:"type:varchar(50);not null"`
	Note      string    `json:"note" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}
