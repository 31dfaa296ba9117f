package model

import (
	"time"

	"gorm.io/gorm"
)

// Customer represents a customer directory entry. Contracts keep a
// denormalized snapshot of these fields, so later customer edits never
// rewrite contract history.
type Customer struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	Phone     string         `json:"phone" gorm:"type:varchar(50)"`
	Email     string         `json:"email" gorm:"type:varchar(100)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
