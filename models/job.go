package models

import (
	"time"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusRequested         JobStatus = "requested"
	JobStatusAccepted          JobStatus = "accepted"
	JobStatusInProgress        JobStatus = "in-progress"
	JobStatusPendingCompletion JobStatus = "pending-completion"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusCancelled         JobStatus = "cancelled"
)

// Actor identifies who is asking for a status change. The lifecycle manager
// authorizes transitions per actor, not per endpoint.
type Actor string

const (
	ActorClient  Actor = "client"
	ActorArtisan Actor = "artisan"
	ActorAdmin   Actor = "admin"
)

// Job is a unit of requested work. Status is only ever written by the
// lifecycle manager; cancellation is a terminal status, never a row delete.
type Job struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Title           string    `json:"title" gorm:"type:varchar(200);not null"`
	Description     string    `json:"description" gorm:"type:text"`
	ServiceCategory string    `json:"service_category" gorm:"type:varchar(100);not null"`
	Status          JobStatus `json:"status" gorm:"type:varchar(30);not null;default:'requested'"`
	ClientID        uint      `json:"client_id" gorm:"not null"`
	Client          User      `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	ArtisanID       *uint     `json:"artisan_id"`
	Artisan         *User     `json:"artisan,omitempty" gorm:"foreignKey:ArtisanID"`
	Amount          *float64  `json:"amount" gorm:"type:decimal(12,2)"`
	ServiceAddress  string    `json:"service_address" gorm:"type:text;not null"`

	// CompletionFormID points at the completion currently under (or last
	// through) review. Set when the job enters pending-completion.
	CompletionFormID *string `json:"completion_form_id" gorm:"type:varchar(80)"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobCreate is the client-facing payload for opening a service request.
type JobCreate struct {
	Title           string   `json:"title" binding:"required"`
	Description     string   `json:"description"`
	ServiceCategory string   `json:"service_category" binding:"required"`
	ServiceAddress  string   `json:"service_address" binding:"required"`
	Amount          *float64 `json:"amount"`
}
