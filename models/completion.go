package models

import (
	"time"
)

// CompletionStatus represents the review state of a completion form
type CompletionStatus string

const (
	CompletionStatusPending  CompletionStatus = "pending"
	CompletionStatusApproved CompletionStatus = "approved"
	CompletionStatusRejected CompletionStatus = "rejected"
)

// JobCompletion is the evidence record an artisan submits when they consider
// a job done. The artisan writes it exactly once; every later mutation is an
// admin resolution. At most one pending completion may exist per job.
type JobCompletion struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(80)"`
	JobID       uint             `json:"job_id" gorm:"not null;index"`
	Job         Job              `json:"job,omitempty" gorm:"foreignKey:JobID"`
	ArtisanID   uint             `json:"artisan_id" gorm:"not null"`
	ArtisanName string           `json:"artisan_name" gorm:"type:varchar(150)"`
	ClientID    uint             `json:"client_id" gorm:"not null"`
	ClientName  string           `json:"client_name" gorm:"type:varchar(150)"`
	Status      CompletionStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`

	WhatWasDone   string            `json:"what_was_done" gorm:"type:text;not null"`
	Images        []CompletionImage `json:"images" gorm:"foreignKey:CompletionID;references:ID"`
	AdditionalTasks []CompletionTask `json:"additional_tasks" gorm:"foreignKey:CompletionID;references:ID"`
	MaterialsUsed string            `json:"materials_used" gorm:"type:text"`
	HoursWorked   string            `json:"hours_worked" gorm:"type:varchar(50)"`
	Notes         string            `json:"notes" gorm:"type:text"`
	SubmittedAt   time.Time         `json:"submitted_at"`

	ApprovedAt  *time.Time `json:"approved_at"`
	ApprovedBy  *uint      `json:"approved_by"`
	FinalAmount *float64   `json:"final_amount" gorm:"type:decimal(12,2)"`

	RejectedAt      *time.Time `json:"rejected_at"`
	RejectedBy      *uint      `json:"rejected_by"`
	RejectionReason string     `json:"rejection_reason" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompletionImage is one uploaded evidence photo. Position preserves the
// submission order, which is also the display order.
type CompletionImage struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	CompletionID string `json:"completion_id" gorm:"type:varchar(80);not null;index"`
	URL          string `json:"url" gorm:"type:text;not null"`
	Position     int    `json:"position" gorm:"not null"`
}

// CompletionTask is an extra task the artisan performed beyond the original
// job description.
type CompletionTask struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	CompletionID string `json:"completion_id" gorm:"type:varchar(80);not null;index"`
	Description  string `json:"description" gorm:"type:varchar(200);not null"`
	Details      string `json:"details" gorm:"type:text"`
}
