package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"phixall-server/models"
)

// MaterialInput is an artisan's proposal for a material purchase.
type MaterialInput struct {
	MaterialName string
	Quantity     int
	UnitCost     float64
	Note         string
	Photo        *ImageUpload
	LocationLat  *float64
	LocationLng  *float64
}

// MaterialResolution is the admin's decision on a pending recommendation.
// For approvals the name/quantity/unit-cost edits are optional overrides of
// what the artisan proposed.
type MaterialResolution struct {
	Action            string             `json:"action" binding:"required,oneof=approve reject"`
	MaterialName      *string            `json:"material_name"`
	Quantity          *int               `json:"quantity"`
	UnitCost          *float64           `json:"unit_cost"`
	Markup            *float64           `json:"markup"`
	ProcurementMethod *models.ProcurementMethod `json:"procurement_method"`
	AdminNotes        string             `json:"admin_notes"`
}

// MaterialService handles mid-job material recommendations and their admin
// resolution. It never touches the job document: material cost is billing
// input consumed elsewhere, not a status trigger.
type MaterialService struct {
	db       *gorm.DB
	blobs    BlobStore
	notifier Notifier
	log      *logrus.Entry
}

func NewMaterialService(db *gorm.DB, blobs BlobStore, notifier Notifier, log *logrus.Logger) *MaterialService {
	return &MaterialService{
		db:       db,
		blobs:    blobs,
		notifier: notifier,
		log:      log.WithField("service", "material"),
	}
}

// Propose records a pending material recommendation for an in-progress job.
// The supporting photo is best-effort: an upload failure is logged and the
// proposal still goes through without it.
func (s *MaterialService) Propose(ctx context.Context, jobID, artisanID uint, in MaterialInput) (*models.MaterialRecommendation, error) {
	name := strings.TrimSpace(in.MaterialName)
	if name == "" {
		return nil, errors.Wrap(ErrValidation, "material_name must not be empty")
	}
	if in.Quantity < 1 {
		return nil, errors.Wrapf(ErrValidation, "quantity must be at least 1, got %d", in.Quantity)
	}
	if in.UnitCost <= 0 {
		return nil, errors.Wrapf(ErrValidation, "unit_cost must be positive, got %.2f", in.UnitCost)
	}

	var job models.Job
	if err := s.db.WithContext(ctx).Preload("Artisan").First(&job, jobID).Error; err != nil {
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

	var photoURL string
	if in.Photo != nil {
		folder := fmt.Sprintf("jobs/%d/materials", jobID)
		url, uploadErr := s.blobs.Upload(ctx, in.Photo.Reader, folder, in.Photo.Name)
		if uploadErr != nil {
			s.log.WithError(uploadErr).WithField("job_id", jobID).Warn("material photo upload failed, continuing without photo")
		} else {
			photoURL = url
		}
	}

	rec := &models.MaterialRecommendation{
		JobID:        jobID,
		ArtisanID:    artisanID,
		Status:       models.MaterialStatusPending,
		MaterialName: name,
		Quantity:     in.Quantity,
		UnitCost:     in.UnitCost,
		// Display value only; the authoritative figure is recomputed from
		// the admin-confirmed quantity and unit cost at approval.
		TotalCost:   roundMoney(float64(in.Quantity) * in.UnitCost),
		Note:        in.Note,
		PhotoURL:    photoURL,
		LocationLat: in.LocationLat,
		LocationLng: in.LocationLng,
	}
	if job.Artisan != nil {
		rec.ArtisanName = job.Artisan.FullName
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, errors.Wrapf(ErrUpstream, "create material recommendation: %v", err)
	}

	s.log.WithFields(logrus.Fields{
		"job_id":      jobID,
		"material_id": rec.ID,
		"total_cost":  rec.TotalCost,
	}).Info("material proposed")

	s.notifier.NotifyAdmins(models.NotificationMaterialPending,
		"Material recommendation pending",
		fmt.Sprintf("Job %d has a material recommendation (%s) waiting for review.", jobID, name),
		jobID, nil)

	return rec, nil
}

// Resolve approves or rejects a pending recommendation. Approval recomputes
// the total from the possibly-edited quantity and unit cost and derives the
// markup-adjusted final cost; rejection leaves all cost fields untouched.
func (s *MaterialService) Resolve(ctx context.Context, materialID, adminID uint, in MaterialResolution) (*models.MaterialRecommendation, error) {
	var rec models.MaterialRecommendation
	if err := s.db.WithContext(ctx).First(&rec, materialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "material %d", materialID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load material %d: %v", materialID, err)
	}
	if rec.Status != models.MaterialStatusPending {
		return nil, errors.Wrapf(ErrAlreadyResolved, "material %d is %s", materialID, rec.Status)
	}

	now := time.Now()
	switch in.Action {
	case "approve":
		name := rec.MaterialName
		if in.MaterialName != nil {
			name = strings.TrimSpace(*in.MaterialName)
			if name == "" {
				return nil, errors.Wrap(ErrValidation, "material_name must not be empty")
			}
		}
		quantity := rec.Quantity
		if in.Quantity != nil {
			quantity = *in.Quantity
		}
		if quantity < 1 {
			return nil, errors.Wrapf(ErrValidation, "quantity must be at least 1, got %d", quantity)
		}
		unitCost := rec.UnitCost
		if in.UnitCost != nil {
			unitCost = *in.UnitCost
		}
		if unitCost <= 0 {
			return nil, errors.Wrapf(ErrValidation, "unit_cost must be positive, got %.2f", unitCost)
		}
		markup := 0.0
		if in.Markup != nil {
			markup = *in.Markup
		}
		if markup < 0 {
			return nil, errors.Wrapf(ErrValidation, "markup must not be negative, got %.2f", markup)
		}
		if in.ProcurementMethod == nil ||
			(*in.ProcurementMethod != models.ProcurementPhixer && *in.ProcurementMethod != models.ProcurementPhixall) {
			return nil, errors.Wrap(ErrValidation, "procurement_method must be phixer or phixall")
		}

		// Money math stays on cents: multiplying by (1 + markup/100) drifts
		// in binary floats (1500 at 10% gives 1650.0000000000002), so scale
		// by the whole percentage and round to 2 decimals.
		totalCost := roundMoney(float64(quantity) * unitCost)
		finalCost := math.Round(totalCost*(100+markup)) / 100

		res := s.db.WithContext(ctx).Model(&models.MaterialRecommendation{}).
			Where("id = ? AND status = ?", materialID, models.MaterialStatusPending).
			Updates(map[string]interface{}{
				"status":             models.MaterialStatusApproved,
				"material_name":      name,
				"quantity":           quantity,
				"unit_cost":          unitCost,
				"total_cost":         totalCost,
				"admin_markup":       markup,
				"procurement_method": *in.ProcurementMethod,
				"final_cost":         finalCost,
				"admin_notes":        in.AdminNotes,
				"resolved_at":        now,
				"resolved_by":        adminID,
				"updated_at":         now,
			})
		if res.Error != nil {
			return nil, errors.Wrapf(ErrUpstream, "approve material %d: %v", materialID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, errors.Wrapf(ErrAlreadyResolved, "material %d resolved concurrently", materialID)
		}

		s.log.WithFields(logrus.Fields{
			"material_id": materialID,
			"final_cost":  finalCost,
			"markup":      markup,
		}).Info("material approved")

		s.notifier.Notify(rec.ArtisanID, models.NotificationMaterialApproved,
			"Material approved",
			fmt.Sprintf("Your recommendation for %s on job %d was approved.", name, rec.JobID),
			rec.JobID, nil)

	case "reject":
		res := s.db.WithContext(ctx).Model(&models.MaterialRecommendation{}).
			Where("id = ? AND status = ?", materialID, models.MaterialStatusPending).
			Updates(map[string]interface{}{
				"status":      models.MaterialStatusRejected,
				"admin_notes": in.AdminNotes,
				"resolved_at": now,
				"resolved_by": adminID,
				"updated_at":  now,
			})
		if res.Error != nil {
			return nil, errors.Wrapf(ErrUpstream, "reject material %d: %v", materialID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, errors.Wrapf(ErrAlreadyResolved, "material %d resolved concurrently", materialID)
		}

		s.log.WithField("material_id", materialID).Info("material rejected")

		s.notifier.Notify(rec.ArtisanID, models.NotificationMaterialRejected,
			"Material rejected",
			fmt.Sprintf("Your recommendation for %s on job %d was rejected.", rec.MaterialName, rec.JobID),
			rec.JobID, nil)

	default:
		return nil, errors.Wrapf(ErrValidation, "unknown action %q", in.Action)
	}

	var updated models.MaterialRecommendation
	if err := s.db.WithContext(ctx).First(&updated, materialID).Error; err != nil {
		return nil, errors.Wrapf(ErrUpstream, "reload material %d: %v", materialID, err)
	}
	return &updated, nil
}

// List returns recommendations filtered by status, newest first.
func (s *MaterialService) List(ctx context.Context, status models.MaterialStatus) ([]models.MaterialRecommendation, error) {
	var recs []models.MaterialRecommendation
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.Wrapf(ErrUpstream, "list materials: %v", err)
	}
	return recs, nil
}

// roundMoney rounds a currency amount to 2 decimals.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// ListForJob returns all recommendations for one job, oldest first.
func (s *MaterialService) ListForJob(ctx context.Context, jobID uint) ([]models.MaterialRecommendation, error) {
	var recs []models.MaterialRecommendation
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&recs).Error
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "list materials for job %d: %v", jobID, err)
	}
	return recs, nil
}
