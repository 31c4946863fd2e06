package services

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"phixall-server/models"
)

func TestTransitionTableRejectsEverythingNotListed(t *testing.T) {
	db := testDB(t)
	svc := NewLifecycleService(db, NopPublisher{}, testLogger())
	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	ctx := context.Background()

	allStatuses := []models.JobStatus{
		models.JobStatusRequested,
		models.JobStatusAccepted,
		models.JobStatusInProgress,
		models.JobStatusPendingCompletion,
		models.JobStatusCompleted,
		models.JobStatusCancelled,
	}
	allActors := []models.Actor{models.ActorClient, models.ActorArtisan, models.ActorAdmin}

	allowed := map[string]bool{
		"artisan/requested/accepted":             true,
		"artisan/accepted/in-progress":           true,
		"artisan/in-progress/pending-completion": true,
		"admin/pending-completion/completed":     true,
		"admin/pending-completion/in-progress":   true,
		"client/requested/cancelled":             true,
	}

	for _, actor := range allActors {
		for _, from := range allStatuses {
			for _, to := range allStatuses {
				job := seedJob(t, db, client.ID, &artisan.ID, from)
				_, err := svc.Transition(ctx, job.ID, actor, to, nil)
				key := string(actor) + "/" + string(from) + "/" + string(to)
				if allowed[key] {
					if err != nil {
						t.Fatalf("%s: expected success, got %v", key, err)
					}
				} else if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("%s: expected ErrInvalidTransition, got %v", key, err)
				}
			}
		}
	}
}

func TestTransitionUnknownJob(t *testing.T) {
	db := testDB(t)
	svc := NewLifecycleService(db, NopPublisher{}, testLogger())

	_, err := svc.Transition(context.Background(), 9999, models.ActorArtisan, models.JobStatusAccepted, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptJobAssignsArtisan(t *testing.T) {
	db := testDB(t)
	svc := NewLifecycleService(db, NopPublisher{}, testLogger())
	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	job := seedJob(t, db, client.ID, nil, models.JobStatusRequested)

	updated, err := svc.AcceptJob(context.Background(), job.ID, artisan.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Status != models.JobStatusAccepted {
		t.Fatalf("expected accepted, got %s", updated.Status)
	}
	if updated.ArtisanID == nil || *updated.ArtisanID != artisan.ID {
		t.Fatalf("artisan not assigned: %v", updated.ArtisanID)
	}
}

func TestAcceptJobAlreadyAssigned(t *testing.T) {
	db := testDB(t)
	svc := NewLifecycleService(db, NopPublisher{}, testLogger())
	client := seedUser(t, db, models.RoleClient, "Client One")
	first := seedUser(t, db, models.RolePhixer, "Artisan One")
	second := seedUser(t, db, models.RolePhixer, "Artisan Two")
	job := seedJob(t, db, client.ID, &first.ID, models.JobStatusAccepted)

	_, err := svc.AcceptJob(context.Background(), job.ID, second.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestStartJobRequiresAssignedArtisan(t *testing.T) {
	db := testDB(t)
	svc := NewLifecycleService(db, NopPublisher{}, testLogger())
	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	intruder := seedUser(t, db, models.RolePhixer, "Artisan Two")
	job := seedJob(t, db, client.ID, &artisan.ID, models.JobStatusAccepted)

	if _, err := svc.StartJob(context.Background(), job.ID, intruder.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	updated, err := svc.StartJob(context.Background(), job.ID, artisan.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if updated.Status != models.JobStatusInProgress {
		t.Fatalf("expected in-progress, got %s", updated.Status)
	}
	if updated.StartedAt == nil {
		t.Fatal("started_at not set")
	}
}

func TestCancelJobOnlyWhileRequested(t *testing.T) {
	db := testDB(t)
	svc := NewLifecycleService(db, NopPublisher{}, testLogger())
	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")

	requested := seedJob(t, db, client.ID, nil, models.JobStatusRequested)
	cancelled, err := svc.CancelJob(context.Background(), requested.ID, client.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.JobStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancellation not recorded: %s", cancelled.Status)
	}

	accepted := seedJob(t, db, client.ID, &artisan.ID, models.JobStatusAccepted)
	if _, err := svc.CancelJob(context.Background(), accepted.ID, client.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	other := seedUser(t, db, models.RoleClient, "Client Two")
	another := seedJob(t, db, client.ID, nil, models.JobStatusRequested)
	if _, err := svc.CancelJob(context.Background(), another.ID, other.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransitionPublishesStatusEvent(t *testing.T) {
	db := testDB(t)
	pub := &recordingPublisher{}
	svc := NewLifecycleService(db, pub, testLogger())
	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	job := seedJob(t, db, client.ID, &artisan.ID, models.JobStatusRequested)

	if _, err := svc.Transition(context.Background(), job.ID, models.ActorArtisan, models.JobStatusAccepted, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if len(pub.jobEvents) != 1 {
		t.Fatalf("expected 1 job event, got %d", len(pub.jobEvents))
	}
	if pub.jobEvents[0].jobID != job.ID || pub.jobEvents[0].event != "job_status" {
		t.Fatalf("unexpected event: %+v", pub.jobEvents[0])
	}
}

func TestTransitionInRolledBackPublishesNothing(t *testing.T) {
	db := testDB(t)
	pub := &recordingPublisher{}
	svc := NewLifecycleService(db, pub, testLogger())
	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	job := seedJob(t, db, client.ID, &artisan.ID, models.JobStatusRequested)

	wantErr := errors.New("later step failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.TransitionIn(context.Background(), tx, job.ID, models.ActorArtisan, models.JobStatusAccepted, nil); err != nil {
			t.Fatalf("transition in tx: %v", err)
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected transaction error, got %v", err)
	}

	if len(pub.jobEvents) != 0 {
		t.Fatalf("rolled-back transition published %d events", len(pub.jobEvents))
	}
	var reloaded models.Job
	if err := db.First(&reloaded, job.ID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if reloaded.Status != models.JobStatusRequested {
		t.Fatalf("job status = %s after rollback", reloaded.Status)
	}
}

type publishedEvent struct {
	jobID uint
	event string
}

type recordingPublisher struct {
	jobEvents  []publishedEvent
	userEvents []uint
}

func (p *recordingPublisher) PublishJob(jobID uint, event string, data interface{}) {
	p.jobEvents = append(p.jobEvents, publishedEvent{jobID: jobID, event: event})
}

func (p *recordingPublisher) PushUser(userID uint, event string, data interface{}) {
	p.userEvents = append(p.userEvents, userID)
}
