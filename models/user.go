package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRole identifies which side of the marketplace an account acts for.
type UserRole string

const (
	RoleClient UserRole = "client"
	RolePhixer UserRole = "phixer"
	RoleAdmin  UserRole = "admin"
)

// User is the minimal actor record the workflow needs. Registration and
// credential management live in a separate system; this server only reads
// users to resolve identity, role and display names.
type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	FullName  string         `json:"full_name" gorm:"type:varchar(150);not null"`
	Email     string         `json:"email" gorm:"type:varchar(150);uniqueIndex;not null"`
	Role      UserRole       `json:"role" gorm:"type:varchar(20);not null"`
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
