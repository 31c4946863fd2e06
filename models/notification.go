package models

import (
	"time"
)

// NotificationType enumerates workflow events the dispatcher fans out.
type NotificationType string

const (
	NotificationCompletionSubmitted NotificationType = "completion-submitted"
	NotificationCompletionPending   NotificationType = "completion-pending"
	NotificationCompletionApproved  NotificationType = "completion-approved"
	NotificationCompletionRejected  NotificationType = "completion-rejected"
	NotificationJobCompleted        NotificationType = "job-completed"
	NotificationMaterialPending     NotificationType = "material-pending"
	NotificationMaterialApproved    NotificationType = "material-approved"
	NotificationMaterialRejected    NotificationType = "material-rejected"
)

// Notification is written once by the dispatcher and never mutated except
// for the recipient flipping Read. Rows are never deleted.
type Notification struct {
	ID               uint             `json:"id" gorm:"primaryKey"`
	UserID           uint             `json:"user_id" gorm:"not null;index"`
	Type             NotificationType `json:"type" gorm:"type:varchar(40);not null"`
	Title            string           `json:"title" gorm:"type:varchar(200);not null"`
	Message          string           `json:"message" gorm:"type:text;not null"`
	JobID            uint             `json:"job_id" gorm:"not null"`
	CompletionFormID *string          `json:"completion_form_id" gorm:"type:varchar(80)"`
	Read             bool             `json:"read" gorm:"default:false"`
	CreatedAt        time.Time        `json:"created_at"`
}
