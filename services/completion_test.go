package services

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"phixall-server/models"
)

func newCompletionFixture(t *testing.T) (*CompletionService, *fakeBlobStore, *recordingNotifier, *fixture) {
	t.Helper()
	db := testDB(t)
	blobs := &fakeBlobStore{}
	notifier := &recordingNotifier{}
	lifecycle := NewLifecycleService(db, NopPublisher{}, testLogger())
	svc := NewCompletionService(db, lifecycle, blobs, notifier, testLogger())

	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	seedUser(t, db, models.RoleAdmin, "Admin One")
	job := seedJob(t, db, client.ID, &artisan.ID, models.JobStatusInProgress)

	return svc, blobs, notifier, &fixture{db: db, client: client, artisan: artisan, job: job}
}

type fixture struct {
	db      *gorm.DB
	client  *models.User
	artisan *models.User
	job     *models.Job
}

func completionInput(images ...ImageUpload) CompletionInput {
	return CompletionInput{
		WhatWasDone:   "Replaced the trap and resealed the joints",
		MaterialsUsed: "PVC trap, sealant",
		HoursWorked:   "2.5",
		Notes:         "Checked for leaks after refit",
		Images:        images,
		AdditionalTasks: []TaskInput{
			{Description: "Cleared the drain", Details: "Removed hair blockage"},
		},
	}
}

func TestSubmitCompletionHappyPath(t *testing.T) {
	svc, blobs, notifier, fx := newCompletionFixture(t)
	ctx := context.Background()

	in := completionInput(
		ImageUpload{Name: "before.jpg", Reader: strings.NewReader("a")},
		ImageUpload{Name: "after.jpg", Reader: strings.NewReader("b")},
	)

	completion, err := svc.Submit(ctx, fx.job.ID, fx.artisan.ID, in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if completion.Status != models.CompletionStatusPending {
		t.Fatalf("expected pending, got %s", completion.Status)
	}
	if len(completion.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(completion.Images))
	}
	if completion.Images[0].Position != 0 || completion.Images[1].Position != 1 {
		t.Fatal("image order not preserved")
	}
	if len(blobs.uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(blobs.uploads))
	}

	job, err := svc.lifecycle.GetJob(ctx, fx.job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != models.JobStatusPendingCompletion {
		t.Fatalf("expected pending-completion, got %s", job.Status)
	}
	if job.CompletionFormID == nil || *job.CompletionFormID != completion.ID {
		t.Fatal("job does not reference the completion form")
	}

	if notifier.countType(models.NotificationCompletionSubmitted) != 1 {
		t.Fatal("artisan confirmation not sent")
	}
	if notifier.countType(models.NotificationCompletionPending) != 1 {
		t.Fatal("admin review alert not sent")
	}
}

func TestSubmitCompletionEmptyDescription(t *testing.T) {
	svc, _, _, fx := newCompletionFixture(t)

	in := completionInput()
	in.WhatWasDone = "   "

	_, err := svc.Submit(context.Background(), fx.job.ID, fx.artisan.ID, in)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSubmitCompletionWrongArtisan(t *testing.T) {
	svc, _, _, fx := newCompletionFixture(t)

	_, err := svc.Submit(context.Background(), fx.job.ID, fx.artisan.ID+100, completionInput())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSubmitCompletionJobNotInProgress(t *testing.T) {
	svc, _, _, fx := newCompletionFixture(t)
	ctx := context.Background()

	// First submission flips the job out of in-progress.
	if _, err := svc.Submit(ctx, fx.job.ID, fx.artisan.ID, completionInput()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := svc.Submit(ctx, fx.job.ID, fx.artisan.ID, completionInput())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSubmitCompletionUploadFailureWritesNothing(t *testing.T) {
	svc, blobs, notifier, fx := newCompletionFixture(t)
	blobs.failOn = "after"
	ctx := context.Background()

	in := completionInput(
		ImageUpload{Name: "before.jpg", Reader: strings.NewReader("a")},
		ImageUpload{Name: "after.jpg", Reader: strings.NewReader("b")},
	)

	_, err := svc.Submit(ctx, fx.job.ID, fx.artisan.ID, in)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	job, err := svc.lifecycle.GetJob(ctx, fx.job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != models.JobStatusInProgress {
		t.Fatalf("job moved despite failed upload: %s", job.Status)
	}

	completions, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(completions) != 0 {
		t.Fatalf("expected no completions, got %d", len(completions))
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no notifications, got %d", len(notifier.sent))
	}
}

func TestSubmitCompletionUnknownJob(t *testing.T) {
	svc, _, _, fx := newCompletionFixture(t)

	_, err := svc.Submit(context.Background(), fx.job.ID+500, fx.artisan.ID, completionInput())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitCompletionPublishesAfterCommit(t *testing.T) {
	db := testDB(t)
	pub := &recordingPublisher{}
	lifecycle := NewLifecycleService(db, pub, testLogger())
	svc := NewCompletionService(db, lifecycle, &fakeBlobStore{}, &recordingNotifier{}, testLogger())

	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	seedUser(t, db, models.RoleAdmin, "Admin One")
	job := seedJob(t, db, client.ID, &artisan.ID, models.JobStatusInProgress)

	if _, err := svc.Submit(context.Background(), job.ID, artisan.ID, completionInput()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(pub.jobEvents) != 1 {
		t.Fatalf("expected 1 job event, got %d", len(pub.jobEvents))
	}
	if pub.jobEvents[0].jobID != job.ID || pub.jobEvents[0].event != "job_status" {
		t.Fatalf("unexpected event: %+v", pub.jobEvents[0])
	}

	// A submit that fails must not emit anything.
	pub.jobEvents = nil
	if _, err := svc.Submit(context.Background(), job.ID, artisan.ID, completionInput()); err == nil {
		t.Fatal("expected resubmit against pending-completion job to fail")
	}
	if len(pub.jobEvents) != 0 {
		t.Fatalf("failed submit published %d events", len(pub.jobEvents))
	}
}

func TestGetCompletionOrdersImages(t *testing.T) {
	svc, _, _, fx := newCompletionFixture(t)
	ctx := context.Background()

	in := completionInput(
		ImageUpload{Name: "one.jpg", Reader: strings.NewReader("1")},
		ImageUpload{Name: "two.jpg", Reader: strings.NewReader("2")},
		ImageUpload{Name: "three.jpg", Reader: strings.NewReader("3")},
	)
	submitted, err := svc.Submit(ctx, fx.job.ID, fx.artisan.ID, in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	loaded, err := svc.Get(ctx, submitted.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.Images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(loaded.Images))
	}
	for i, img := range loaded.Images {
		if img.Position != i {
			t.Fatalf("image %d out of order: position %d", i, img.Position)
		}
	}
	if len(loaded.AdditionalTasks) != 1 {
		t.Fatalf("expected 1 additional task, got %d", len(loaded.AdditionalTasks))
	}
}
