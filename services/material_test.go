package services

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"phixall-server/models"
)

type materialFixture struct {
	db      *gorm.DB
	svc     *MaterialService
	blobs   *fakeBlobStore
	notif   *recordingNotifier
	artisan *models.User
	admin   *models.User
	job     *models.Job
}

func newMaterialFixture(t *testing.T) *materialFixture {
	t.Helper()
	db := testDB(t)
	blobs := &fakeBlobStore{}
	notif := &recordingNotifier{}
	svc := NewMaterialService(db, blobs, notif, testLogger())

	client := seedUser(t, db, models.RoleClient, "Client One")
	artisan := seedUser(t, db, models.RolePhixer, "Artisan One")
	admin := seedUser(t, db, models.RoleAdmin, "Admin One")
	job := seedJob(t, db, client.ID, &artisan.ID, models.JobStatusInProgress)

	return &materialFixture{db: db, svc: svc, blobs: blobs, notif: notif, artisan: artisan, admin: admin, job: job}
}

func (fx *materialFixture) propose(t *testing.T, in MaterialInput) *models.MaterialRecommendation {
	t.Helper()
	rec, err := fx.svc.Propose(context.Background(), fx.job.ID, fx.artisan.ID, in)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return rec
}

func pipeInput() MaterialInput {
	return MaterialInput{
		MaterialName: "PVC pipe 50mm",
		Quantity:     3,
		UnitCost:     500,
		Note:         "Old pipe is cracked along the joint",
	}
}

func TestProposeMaterial(t *testing.T) {
	fx := newMaterialFixture(t)

	rec := fx.propose(t, pipeInput())

	if rec.Status != models.MaterialStatusPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}
	if rec.TotalCost != 1500 {
		t.Fatalf("expected total 1500, got %.2f", rec.TotalCost)
	}
	if rec.FinalCost != nil {
		t.Fatal("final cost set before approval")
	}
	if fx.notif.countType(models.NotificationMaterialPending) != 1 {
		t.Fatal("admin alert not sent")
	}
}

func TestProposeMaterialPhotoFailureIsNonFatal(t *testing.T) {
	fx := newMaterialFixture(t)
	fx.blobs.failOn = "receipt"

	in := pipeInput()
	in.Photo = &ImageUpload{Name: "receipt.jpg", Reader: strings.NewReader("img")}

	rec := fx.propose(t, in)
	if rec.PhotoURL != "" {
		t.Fatalf("expected empty photo url, got %q", rec.PhotoURL)
	}
	if rec.Status != models.MaterialStatusPending {
		t.Fatalf("proposal lost: %s", rec.Status)
	}
}

func TestProposeMaterialValidation(t *testing.T) {
	fx := newMaterialFixture(t)
	ctx := context.Background()

	cases := []MaterialInput{
		{MaterialName: "  ", Quantity: 1, UnitCost: 10},
		{MaterialName: "Pipe", Quantity: 0, UnitCost: 10},
		{MaterialName: "Pipe", Quantity: 1, UnitCost: 0},
		{MaterialName: "Pipe", Quantity: 1, UnitCost: -5},
	}
	for i, in := range cases {
		if _, err := fx.svc.Propose(ctx, fx.job.ID, fx.artisan.ID, in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestProposeMaterialJobChecks(t *testing.T) {
	fx := newMaterialFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.Propose(ctx, fx.job.ID+500, fx.artisan.ID, pipeInput()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := fx.svc.Propose(ctx, fx.job.ID, fx.artisan.ID+100, pipeInput()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := fx.db.Model(fx.job).Update("status", models.JobStatusAccepted).Error; err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, err := fx.svc.Propose(ctx, fx.job.ID, fx.artisan.ID, pipeInput()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestResolveApproveAppliesMarkup(t *testing.T) {
	fx := newMaterialFixture(t)
	rec := fx.propose(t, pipeInput())

	markup := 10.0
	method := models.ProcurementPhixall
	resolved, err := fx.svc.Resolve(context.Background(), rec.ID, fx.admin.ID, MaterialResolution{
		Action:            "approve",
		Markup:            &markup,
		ProcurementMethod: &method,
		AdminNotes:        "Buy from the usual supplier",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if resolved.Status != models.MaterialStatusApproved {
		t.Fatalf("expected approved, got %s", resolved.Status)
	}
	if resolved.TotalCost != 1500 {
		t.Fatalf("expected total 1500, got %.2f", resolved.TotalCost)
	}
	if resolved.FinalCost == nil || *resolved.FinalCost != 1650 {
		t.Fatalf("expected final 1650, got %v", resolved.FinalCost)
	}
	if resolved.AdminMarkup == nil || *resolved.AdminMarkup != 10 {
		t.Fatal("markup not recorded")
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != fx.admin.ID {
		t.Fatal("resolver not recorded")
	}
	if fx.notif.countType(models.NotificationMaterialApproved) != 1 {
		t.Fatal("artisan not notified of approval")
	}
}

func TestResolveApproveWithEditsRecomputesCosts(t *testing.T) {
	fx := newMaterialFixture(t)
	rec := fx.propose(t, pipeInput())

	quantity := 4
	unitCost := 450.0
	markup := 20.0
	method := models.ProcurementPhixer
	resolved, err := fx.svc.Resolve(context.Background(), rec.ID, fx.admin.ID, MaterialResolution{
		Action:            "approve",
		Quantity:          &quantity,
		UnitCost:          &unitCost,
		Markup:            &markup,
		ProcurementMethod: &method,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if resolved.TotalCost != 1800 {
		t.Fatalf("expected recomputed total 1800, got %.2f", resolved.TotalCost)
	}
	if resolved.FinalCost == nil || *resolved.FinalCost != 2160 {
		t.Fatalf("expected final 2160, got %v", resolved.FinalCost)
	}
}

func TestResolveApproveFinalCostIsExact(t *testing.T) {
	fx := newMaterialFixture(t)

	in := pipeInput()
	in.Quantity = 3
	in.UnitCost = 14.99
	rec := fx.propose(t, in)

	markup := 7.5
	method := models.ProcurementPhixer
	resolved, err := fx.svc.Resolve(context.Background(), rec.ID, fx.admin.ID, MaterialResolution{
		Action:            "approve",
		Markup:            &markup,
		ProcurementMethod: &method,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// 3 x 14.99 = 44.97; +7.5% = 48.34275, which must land on exactly 48.34.
	if resolved.TotalCost != 44.97 {
		t.Fatalf("expected total 44.97, got %v", resolved.TotalCost)
	}
	if resolved.FinalCost == nil || *resolved.FinalCost != 48.34 {
		t.Fatalf("expected final 48.34, got %v", resolved.FinalCost)
	}
}

func TestResolveApproveRequiresProcurementMethod(t *testing.T) {
	fx := newMaterialFixture(t)
	rec := fx.propose(t, pipeInput())

	markup := 10.0
	_, err := fx.svc.Resolve(context.Background(), rec.ID, fx.admin.ID, MaterialResolution{
		Action: "approve",
		Markup: &markup,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestResolveRejectLeavesCostsUntouched(t *testing.T) {
	fx := newMaterialFixture(t)
	rec := fx.propose(t, pipeInput())

	resolved, err := fx.svc.Resolve(context.Background(), rec.ID, fx.admin.ID, MaterialResolution{
		Action:     "reject",
		AdminNotes: "Client supplies their own materials",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if resolved.Status != models.MaterialStatusRejected {
		t.Fatalf("expected rejected, got %s", resolved.Status)
	}
	if resolved.FinalCost != nil || resolved.AdminMarkup != nil || resolved.ProcurementMethod != nil {
		t.Fatal("cost fields set on rejection")
	}
	if resolved.TotalCost != 1500 {
		t.Fatalf("proposed total changed: %.2f", resolved.TotalCost)
	}
	if fx.notif.countType(models.NotificationMaterialRejected) != 1 {
		t.Fatal("artisan not notified of rejection")
	}
}

func TestResolveTwiceFails(t *testing.T) {
	fx := newMaterialFixture(t)
	rec := fx.propose(t, pipeInput())
	ctx := context.Background()

	if _, err := fx.svc.Resolve(ctx, rec.ID, fx.admin.ID, MaterialResolution{Action: "reject"}); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	_, err := fx.svc.Resolve(ctx, rec.ID, fx.admin.ID, MaterialResolution{Action: "reject"})
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolveUnknownAction(t *testing.T) {
	fx := newMaterialFixture(t)
	rec := fx.propose(t, pipeInput())

	_, err := fx.svc.Resolve(context.Background(), rec.ID, fx.admin.ID, MaterialResolution{Action: "defer"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestListForJobOldestFirst(t *testing.T) {
	fx := newMaterialFixture(t)
	first := fx.propose(t, pipeInput())

	second := pipeInput()
	second.MaterialName = "Pipe sealant"
	fx.propose(t, second)

	recs, err := fx.svc.ListForJob(context.Background(), fx.job.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].ID != first.ID {
		t.Fatal("oldest recommendation not first")
	}
}
