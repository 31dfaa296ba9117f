package model

import (
	"time"

	"gorm.io/gorm"
)

// Branch represents a location/unit within a tenant. Most operational data
// (contracts, visits, stock movements) is branch-scoped.
type Branch struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Address   string         `json:"address" gorm:"type:text"`
	Phone     string         `json:"phone" gorm:"type:varchar(50)"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// UserBranch represents the association between users and branches.
// The access scope resolver reads these rows for every non-admin caller.
type UserBranch struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	BranchID  uint           `json:"branch_id" gorm:"index;not null"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Role      Role           `json:"role" gorm:"type:varchar(50);not null;default:'staff'"` // Role at this branch: 'manager', 'technician', 'staff'
	IsManager bool           `json:"is_manager" gorm:"default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
