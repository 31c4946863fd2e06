package models

import (
	"time"
)

// MaterialStatus represents the review state of a material recommendation
type MaterialStatus string

const (
	MaterialStatusPending  MaterialStatus = "pending"
	MaterialStatusApproved MaterialStatus = "approved"
	MaterialStatusRejected MaterialStatus = "rejected"
)

// ProcurementMethod says who buys an approved material.
type ProcurementMethod string

const (
	ProcurementPhixer  ProcurementMethod = "phixer"
	ProcurementPhixall ProcurementMethod = "phixall"
)

// MaterialRecommendation is an artisan's mid-job proposal to buy a material.
// ArtisanID is the canonical proposer field; legacy clients that still send
// phixer_id are normalized at the HTTP boundary and never reach this struct
// under the old name. FinalCost is derived at approval time only.
type MaterialRecommendation struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	JobID       uint           `json:"job_id" gorm:"not null;index"`
	Job         Job            `json:"job,omitempty" gorm:"foreignKey:JobID"`
	ArtisanID   uint           `json:"artisan_id" gorm:"not null"`
	ArtisanName string         `json:"artisan_name" gorm:"type:varchar(150)"`
	Status      MaterialStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`

	MaterialName string  `json:"material_name" gorm:"type:varchar(200);not null"`
	Quantity     int     `json:"quantity" gorm:"not null"`
	UnitCost     float64 `json:"unit_cost" gorm:"type:decimal(12,2);not null"`
	TotalCost    float64 `json:"total_cost" gorm:"type:decimal(12,2);not null"`
	Note         string  `json:"note" gorm:"type:text"`
	PhotoURL     string  `json:"photo_url" gorm:"type:text"`

	// Optional proposal-time geolocation, stored as-is, never computed with.
	LocationLat *float64 `json:"location_lat" gorm:"type:decimal(10,8)"`
	LocationLng *float64 `json:"location_lng" gorm:"type:decimal(11,8)"`

	AdminMarkup       *float64           `json:"admin_markup" gorm:"type:decimal(6,2)"`
	ProcurementMethod *ProcurementMethod `json:"procurement_method" gorm:"type:varchar(20)"`
	FinalCost         *float64           `json:"final_cost" gorm:"type:decimal(12,2)"`
	AdminNotes        string             `json:"admin_notes" gorm:"type:text"`
	ResolvedAt        *time.Time         `json:"resolved_at"`
	ResolvedBy        *uint              `json:"resolved_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
