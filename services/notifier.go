package services

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"phixall-server/models"
)

// Notifier fans workflow events out to users. Dispatch is best-effort by
// contract: a notification failure is logged and swallowed, it never fails
// or rolls back the workflow step that triggered it.
type Notifier interface {
	Notify(userID uint, ntype models.NotificationType, title, message string, jobID uint, completionID *string)
	NotifyAdmins(ntype models.NotificationType, title, message string, jobID uint, completionID *string)
}

// Dispatcher persists one notification row per recipient and pushes it to
// connected clients through the realtime hub.
type Dispatcher struct {
	db  *gorm.DB
	pub Publisher
	log *logrus.Entry
}

func NewDispatcher(db *gorm.DB, pub Publisher, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		db:  db,
		pub: pub,
		log: log.WithField("service", "notifier"),
	}
}

func (d *Dispatcher) Notify(userID uint, ntype models.NotificationType, title, message string, jobID uint, completionID *string) {
	notification := models.Notification{
		UserID:           userID,
		Type:             ntype,
		Title:            title,
		Message:          message,
		JobID:            jobID,
		CompletionFormID: completionID,
	}
	if err := d.db.Create(&notification).Error; err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    ntype,
		}).Warn("failed to persist notification")
		return
	}

	d.pub.PushUser(userID, "notification", notification)
}

// NotifyAdmins sends one notification to every active admin account.
func (d *Dispatcher) NotifyAdmins(ntype models.NotificationType, title, message string, jobID uint, completionID *string) {
	var admins []models.User
	err := d.db.Where("role = ? AND is_active = ?", models.RoleAdmin, true).Find(&admins).Error
	if err != nil {
		d.log.WithError(err).Warn("failed to list admins for notification fan-out")
		return
	}
	for _, admin := range admins {
		d.Notify(admin.ID, ntype, title, message, jobID, completionID)
	}
}
