package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"phixall-server/models"
)

// ImageUpload is a captured evidence photo ready to be pushed to the blob
// store.
type ImageUpload struct {
	Name   string
	Reader io.Reader
}

// TaskInput describes an extra task performed beyond the job description.
type TaskInput struct {
	Description string `json:"description"`
	Details     string `json:"details"`
}

// CompletionInput is everything an artisan hands over when submitting a
// completion form.
type CompletionInput struct {
	WhatWasDone     string
	Images          []ImageUpload
	AdditionalTasks []TaskInput
	MaterialsUsed   string
	HoursWorked     string
	Notes           string
}

// CompletionService collects an artisan's completion evidence and flips the
// job into review.
type CompletionService struct {
	db        *gorm.DB
	lifecycle *LifecycleService
	blobs     BlobStore
	notifier  Notifier
	log       *logrus.Entry
}

func NewCompletionService(db *gorm.DB, lifecycle *LifecycleService, blobs BlobStore, notifier Notifier, log *logrus.Logger) *CompletionService {
	return &CompletionService{
		db:        db,
		lifecycle: lifecycle,
		blobs:     blobs,
		notifier:  notifier,
		log:       log.WithField("service", "completion"),
	}
}

// Submit validates the submission, uploads the images, persists the
// completion and moves the job to pending-completion. Image uploads happen
// before any document write: a failed upload aborts the whole submission
// with nothing persisted. Notifications go out only after the state is
// committed and never fail the submission.
func (s *CompletionService) Submit(ctx context.Context, jobID, artisanID uint, in CompletionInput) (*models.JobCompletion, error) {
	whatWasDone := strings.TrimSpace(in.WhatWasDone)
	if whatWasDone == "" {
		return nil, errors.Wrap(ErrValidation, "what_was_done must not be empty")
	}

	var job models.Job
	if err := s.db.WithContext(ctx).Preload("Client").Preload("Artisan").First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "job %d", jobID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load job %d: %v", jobID, err)
	}
	if job.ArtisanID == nil || *job.ArtisanID != artisanID {
		return nil, errors.Wrapf(ErrUnauthorized, "artisan %d is not assigned to job %d", artisanID, jobID)
	}
	if job.Status != models.JobStatusInProgress {
		return nil, errors.Wrapf(ErrInvalidState, "job %d is %s, expected %s", jobID, job.Status, models.JobStatusInProgress)
	}

	var pendingCount int64
	err := s.db.WithContext(ctx).Model(&models.JobCompletion{}).
		Where("job_id = ? AND status = ?", jobID, models.CompletionStatusPending).
		Count(&pendingCount).Error
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "count pending completions: %v", err)
	}
	if pendingCount > 0 {
		return nil, errors.Wrapf(ErrInvalidState, "job %d already has a completion awaiting review", jobID)
	}

	// Uploads run sequentially and first, so a failure leaves no documents
	// behind. URL order is submission order and is significant.
	folder := fmt.Sprintf("jobs/%d/completions", jobID)
	urls := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		url, uploadErr := s.blobs.Upload(ctx, img.Reader, folder, img.Name)
		if uploadErr != nil {
			return nil, errors.Wrapf(ErrUpstream, "image upload %q failed: %v", img.Name, uploadErr)
		}
		urls = append(urls, url)
	}

	now := time.Now()
	completion := &models.JobCompletion{
		ID:            fmt.Sprintf("%d-%s", jobID, uuid.NewString()),
		JobID:         jobID,
		ArtisanID:     artisanID,
		ClientID:      job.ClientID,
		ClientName:    job.Client.FullName,
		Status:        models.CompletionStatusPending,
		WhatWasDone:   whatWasDone,
		MaterialsUsed: in.MaterialsUsed,
		HoursWorked:   in.HoursWorked,
		Notes:         in.Notes,
		SubmittedAt:   now,
	}
	if job.Artisan != nil {
		completion.ArtisanName = job.Artisan.FullName
	}
	for i, url := range urls {
		completion.Images = append(completion.Images, models.CompletionImage{URL: url, Position: i})
	}
	for _, task := range in.AdditionalTasks {
		completion.AdditionalTasks = append(completion.AdditionalTasks, models.CompletionTask{
			Description: task.Description,
			Details:     task.Details,
		})
	}

	// The completion insert and the job flip commit together; if the status
	// guard loses a race the whole transaction rolls back and no pending
	// completion is left behind. The status event goes out only after the
	// commit.
	var flipped *models.Job
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if createErr := tx.Create(completion).Error; createErr != nil {
			return errors.Wrapf(ErrUpstream, "create completion: %v", createErr)
		}
		moved, trErr := s.lifecycle.TransitionIn(ctx, tx, jobID, models.ActorArtisan, models.JobStatusPendingCompletion, map[string]interface{}{
			"completion_form_id": completion.ID,
		})
		if trErr != nil {
			return trErr
		}
		flipped = moved
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.lifecycle.announce(flipped, models.ActorArtisan)

	s.log.WithFields(logrus.Fields{
		"job_id":        jobID,
		"completion_id": completion.ID,
		"images":        len(urls),
	}).Info("completion submitted")

	s.notifier.Notify(artisanID, models.NotificationCompletionSubmitted,
		"Completion submitted",
		"Your completion form was submitted and is awaiting review.",
		jobID, &completion.ID)
	s.notifier.NotifyAdmins(models.NotificationCompletionPending,
		"Completion pending review",
		fmt.Sprintf("Job %d has a completion form waiting for review.", jobID),
		jobID, &completion.ID)

	return completion, nil
}

// Get loads a completion with its images and tasks.
func (s *CompletionService) Get(ctx context.Context, completionID string) (*models.JobCompletion, error) {
	var completion models.JobCompletion
	err := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("AdditionalTasks").
		Where("id = ?", completionID).
		First(&completion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "completion %s", completionID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load completion %s: %v", completionID, err)
	}
	return &completion, nil
}

// List returns completions filtered by status, newest first. An empty status
// returns everything.
func (s *CompletionService) List(ctx context.Context, status models.CompletionStatus) ([]models.JobCompletion, error) {
	var completions []models.JobCompletion
	q := s.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("AdditionalTasks").
		Order("submitted_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&completions).Error; err != nil {
		return nil, errors.Wrapf(ErrUpstream, "list completions: %v", err)
	}
	return completions, nil
}
