package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"phixall-server/models"
)

// jobTransitions is the full transition table: actor -> from -> allowed
// targets. Anything absent here fails with ErrInvalidTransition, never a
// silent clamp. The in-progress -> pending-completion edge belongs to the
// artisan but is only reachable through the completion submission service;
// the HTTP layer exposes no direct write for it.
var jobTransitions = map[models.Actor]map[models.JobStatus][]models.JobStatus{
	models.ActorArtisan: {
		models.JobStatusRequested:  {models.JobStatusAccepted},
		models.JobStatusAccepted:   {models.JobStatusInProgress},
		models.JobStatusInProgress: {models.JobStatusPendingCompletion},
	},
	models.ActorAdmin: {
		models.JobStatusPendingCompletion: {models.JobStatusCompleted, models.JobStatusInProgress},
	},
	models.ActorClient: {
		models.JobStatusRequested: {models.JobStatusCancelled},
	},
}

// LifecycleService owns the job state machine. It is the only component
// that writes jobs.status.
type LifecycleService struct {
	db  *gorm.DB
	pub Publisher
	log *logrus.Entry
}

func NewLifecycleService(db *gorm.DB, pub Publisher, log *logrus.Logger) *LifecycleService {
	return &LifecycleService{
		db:  db,
		pub: pub,
		log: log.WithField("service", "lifecycle"),
	}
}

func transitionAllowed(actor models.Actor, from, to models.JobStatus) bool {
	for _, target := range jobTransitions[actor][from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition moves a job to a new status on behalf of an actor. The write is
// a conditional update guarded on the status the caller observed, so the
// loser of a concurrent race gets ErrInvalidState instead of a lost update.
// extra columns are applied in the same update.
func (s *LifecycleService) Transition(ctx context.Context, jobID uint, actor models.Actor, to models.JobStatus, extra map[string]interface{}) (*models.Job, error) {
	job, err := s.TransitionIn(ctx, s.db, jobID, actor, to, extra)
	if err != nil {
		return nil, err
	}
	s.announce(job, actor)
	return job, nil
}

// TransitionIn is Transition running on the caller's transaction. Only the
// completion submission path uses it, to flip the job atomically with the
// creation of the completion record. It does not publish: the caller must
// call announce after its transaction commits, so a rollback never leaks a
// status event.
func (s *LifecycleService) TransitionIn(ctx context.Context, tx *gorm.DB, jobID uint, actor models.Actor, to models.JobStatus, extra map[string]interface{}) (*models.Job, error) {
	var job models.Job
	if err := tx.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "job %d", jobID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load job %d: %v", jobID, err)
	}

	if !transitionAllowed(actor, job.Status, to) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s may not move job %d from %s to %s", actor, jobID, job.Status, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, job.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, errors.Wrapf(ErrUpstream, "update job %d: %v", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else moved the job between our read and write.
		return nil, errors.Wrapf(ErrInvalidState, "job %d changed concurrently", jobID)
	}

	if err := tx.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return nil, errors.Wrapf(ErrUpstream, "reload job %d: %v", jobID, err)
	}

	return &job, nil
}

// announce logs and publishes a committed transition.
func (s *LifecycleService) announce(job *models.Job, actor models.Actor) {
	s.log.WithFields(logrus.Fields{
		"job_id": job.ID,
		"actor":  actor,
		"status": job.Status,
	}).Info("job transitioned")

	s.pub.PublishJob(job.ID, "job_status", map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// CreateJob opens a new service request for a client.
func (s *LifecycleService) CreateJob(ctx context.Context, clientID uint, req models.JobCreate) (*models.Job, error) {
	job := models.Job{
		Title:           req.Title,
		Description:     req.Description,
		ServiceCategory: req.ServiceCategory,
		ServiceAddress:  req.ServiceAddress,
		Amount:          req.Amount,
		ClientID:        clientID,
		Status:          models.JobStatusRequested,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, errors.Wrapf(ErrUpstream, "create job: %v", err)
	}
	s.log.WithFields(logrus.Fields{"job_id": job.ID, "client_id": clientID}).Info("job created")
	return &job, nil
}

// AcceptJob assigns a requested job to an artisan.
func (s *LifecycleService) AcceptJob(ctx context.Context, jobID, artisanID uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "job %d", jobID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load job %d: %v", jobID, err)
	}
	if job.ArtisanID != nil && *job.ArtisanID != artisanID {
		return nil, errors.Wrapf(ErrInvalidState, "job %d already assigned", jobID)
	}
	return s.Transition(ctx, jobID, models.ActorArtisan, models.JobStatusAccepted, map[string]interface{}{
		"artisan_id": artisanID,
	})
}

// StartJob moves an accepted job into in-progress. Only the assigned artisan
// may start work.
func (s *LifecycleService) StartJob(ctx context.Context, jobID, artisanID uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "job %d", jobID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load job %d: %v", jobID, err)
	}
	if job.ArtisanID == nil || *job.ArtisanID != artisanID {
		return nil, errors.Wrapf(ErrUnauthorized, "artisan %d is not assigned to job %d", artisanID, jobID)
	}
	now := time.Now()
	return s.Transition(ctx, jobID, models.ActorArtisan, models.JobStatusInProgress, map[string]interface{}{
		"started_at": now,
	})
}

// CancelJob lets the owning client cancel a still-unassigned request.
func (s *LifecycleService) CancelJob(ctx context.Context, jobID, clientID uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "job %d", jobID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load job %d: %v", jobID, err)
	}
	if job.ClientID != clientID {
		return nil, errors.Wrapf(ErrUnauthorized, "client %d does not own job %d", clientID, jobID)
	}
	now := time.Now()
	return s.Transition(ctx, jobID, models.ActorClient, models.JobStatusCancelled, map[string]interface{}{
		"cancelled_at": now,
	})
}

// GetJob loads a single job with its parties.
func (s *LifecycleService) GetJob(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Artisan").
		First(&job, jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "job %d", jobID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load job %d: %v", jobID, err)
	}
	return &job, nil
}

// JobsForUser lists jobs the user participates in, newest first.
func (s *LifecycleService) JobsForUser(ctx context.Context, userID uint, role models.UserRole) ([]models.Job, error) {
	var jobs []models.Job
	q := s.db.WithContext(ctx).Order("created_at DESC")
	switch role {
	case models.RolePhixer:
		q = q.Where("artisan_id = ?", userID)
	case models.RoleAdmin:
		// admins see everything
	default:
		q = q.Where("client_id = ?", userID)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, errors.Wrapf(ErrUpstream, "list jobs: %v", err)
	}
	return jobs, nil
}
