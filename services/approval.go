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

// ApprovalResult carries the settlement outcome back to the admin console.
type ApprovalResult struct {
	PaymentReference string  `json:"payment_reference"`
	FinalAmount      float64 `json:"final_amount"`
}

// ApprovalService resolves pending completions. Approval is ordered so that
// money moves before any status flips: the gateway is only ever called while
// the completion is still pending, and a durable settlement row keyed by the
// completion ID makes every later step resumable without a second debit.
type ApprovalService struct {
	db        *gorm.DB
	lifecycle *LifecycleService
	gateway   PaymentGateway
	notifier  Notifier
	minAmount float64
	log       *logrus.Entry
}

func NewApprovalService(db *gorm.DB, lifecycle *LifecycleService, gateway PaymentGateway, notifier Notifier, minAmount float64, log *logrus.Logger) *ApprovalService {
	return &ApprovalService{
		db:        db,
		lifecycle: lifecycle,
		gateway:   gateway,
		notifier:  notifier,
		minAmount: minAmount,
		log:       log.WithField("service", "approval"),
	}
}

// Approve settles finalAmount for the completion's job and marks it
// approved. Retrying after a crash or a declined payment is safe: the
// settlement record remembers whether the gateway already debited, and a
// completion that is no longer pending returns ErrAlreadyResolved without
// touching the gateway.
func (s *ApprovalService) Approve(ctx context.Context, completionID string, adminID uint, finalAmount float64) (*ApprovalResult, error) {
	if math.IsNaN(finalAmount) || math.IsInf(finalAmount, 0) || finalAmount < s.minAmount {
		return nil, errors.Wrapf(ErrInvalidAmount, "final amount %.2f is below the minimum of %.2f", finalAmount, s.minAmount)
	}

	completion, err := s.loadCompletion(ctx, completionID)
	if err != nil {
		return nil, err
	}
	if completion.Status != models.CompletionStatusPending {
		return nil, errors.Wrapf(ErrAlreadyResolved, "completion %s is %s", completionID, completion.Status)
	}

	settlement, err := s.ensureSettlement(ctx, completion, adminID, finalAmount)
	if err != nil {
		return nil, err
	}

	if settlement.State == models.SettlementInFlight {
		return nil, errors.Wrapf(ErrInvalidState, "settlement for %s is already in flight", completionID)
	}

	if settlement.State == models.SettlementInitiated {
		// Claim the row before touching the gateway. The conditional update
		// is the lock: of two concurrent approves only one flips
		// initiated -> in-flight, the other never reaches the gateway.
		res := s.db.WithContext(ctx).Model(&models.Settlement{}).
			Where("completion_id = ? AND state = ?", settlement.CompletionID, models.SettlementInitiated).
			Updates(map[string]interface{}{
				"state":      models.SettlementInFlight,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return nil, errors.Wrapf(ErrUpstream, "claim settlement for %s: %v", completionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, errors.Wrapf(ErrInvalidState, "settlement for %s claimed concurrently", completionID)
		}
		settlement.State = models.SettlementInFlight

		result, settleErr := s.gateway.Settle(ctx, completion.JobID, settlement.Amount)
		if settleErr != nil || !result.Success {
			reason := "gateway error"
			if settleErr != nil {
				reason = settleErr.Error()
			} else if result.ErrorCode != "" {
				reason = result.ErrorCode
			}
			s.recordSettlementFailure(ctx, settlement, reason)
			return nil, errors.Wrapf(ErrPaymentFailed, "settle job %d: %s", completion.JobID, reason)
		}

		updates := map[string]interface{}{
			"state":             models.SettlementSettled,
			"payment_reference": result.Reference,
			"updated_at":        time.Now(),
		}
		if dbErr := s.db.WithContext(ctx).Model(settlement).Updates(updates).Error; dbErr != nil {
			// Funds moved but we could not record it; the reference is in the
			// gateway keyed by completion ID, so surface a retryable error.
			return nil, errors.Wrapf(ErrUpstream, "record settlement for %s: %v", completionID, dbErr)
		}
		settlement.State = models.SettlementSettled
		settlement.PaymentReference = result.Reference
	}

	if err := s.finalize(ctx, completion, settlement, adminID); err != nil {
		return nil, err
	}

	return &ApprovalResult{PaymentReference: settlement.PaymentReference, FinalAmount: settlement.Amount}, nil
}

// Reject marks the completion rejected and loops the job back to
// in-progress so the artisan can resubmit.
func (s *ApprovalService) Reject(ctx context.Context, completionID string, adminID uint, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.Wrap(ErrValidation, "rejection reason must not be empty")
	}

	completion, err := s.loadCompletion(ctx, completionID)
	if err != nil {
		return err
	}
	if completion.Status != models.CompletionStatusPending {
		return errors.Wrapf(ErrAlreadyResolved, "completion %s is %s", completionID, completion.Status)
	}

	// A claimed or debited settlement means money is moving for this
	// completion; rejecting now would strand the payment.
	var settlement models.Settlement
	sErr := s.db.WithContext(ctx).Where("completion_id = ?", completionID).First(&settlement).Error
	if sErr != nil && !errors.Is(sErr, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrUpstream, "load settlement for %s: %v", completionID, sErr)
	}
	if sErr == nil && (settlement.State == models.SettlementInFlight || settlement.State == models.SettlementSettled) {
		return errors.Wrapf(ErrInvalidState, "completion %s has a payment %s", completionID, settlement.State)
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.JobCompletion{}).
		Where("id = ? AND status = ?", completionID, models.CompletionStatusPending).
		Updates(map[string]interface{}{
			"status":           models.CompletionStatusRejected,
			"rejected_at":      now,
			"rejected_by":      adminID,
			"rejection_reason": reason,
			"updated_at":       now,
		})
	if res.Error != nil {
		return errors.Wrapf(ErrUpstream, "reject completion %s: %v", completionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrAlreadyResolved, "completion %s resolved concurrently", completionID)
	}

	if _, err := s.lifecycle.Transition(ctx, completion.JobID, models.ActorAdmin, models.JobStatusInProgress, nil); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"completion_id": completionID,
		"admin_id":      adminID,
	}).Info("completion rejected")

	s.notifier.Notify(completion.ArtisanID, models.NotificationCompletionRejected,
		"Completion rejected",
		fmt.Sprintf("Your completion form was rejected: %s. Please address the feedback and resubmit.", reason),
		completion.JobID, &completion.ID)

	return nil
}

// ResumeStalled finalizes settlements that were paid but whose status flips
// never committed, e.g. after a crash between the gateway call and the
// completion update. Returns how many settlements were resumed.
func (s *ApprovalService) ResumeStalled(ctx context.Context, olderThan time.Duration) (int, error) {
	var stalled []models.Settlement
	cutoff := time.Now().Add(-olderThan)
	err := s.db.WithContext(ctx).
		Where("state = ? AND updated_at <= ?", models.SettlementSettled, cutoff).
		Find(&stalled).Error
	if err != nil {
		return 0, errors.Wrapf(ErrUpstream, "scan stalled settlements: %v", err)
	}

	resumed := 0
	for i := range stalled {
		settlement := &stalled[i]
		completion, loadErr := s.loadCompletion(ctx, settlement.CompletionID)
		if loadErr != nil {
			s.log.WithError(loadErr).WithField("completion_id", settlement.CompletionID).Warn("cannot resume settlement")
			continue
		}
		if finErr := s.finalize(ctx, completion, settlement, settlement.AdminID); finErr != nil {
			s.log.WithError(finErr).WithField("completion_id", settlement.CompletionID).Warn("settlement resume failed")
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (s *ApprovalService) loadCompletion(ctx context.Context, completionID string) (*models.JobCompletion, error) {
	var completion models.JobCompletion
	err := s.db.WithContext(ctx).Where("id = ?", completionID).First(&completion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "completion %s", completionID)
		}
		return nil, errors.Wrapf(ErrUpstream, "load completion %s: %v", completionID, err)
	}
	return &completion, nil
}

// ensureSettlement fetches or creates the durable settlement record. While
// the record is still initiated (nothing debited) a retry may carry a
// corrected amount; once settled the recorded amount is authoritative.
func (s *ApprovalService) ensureSettlement(ctx context.Context, completion *models.JobCompletion, adminID uint, amount float64) (*models.Settlement, error) {
	var settlement models.Settlement
	err := s.db.WithContext(ctx).Where("completion_id = ?", completion.ID).First(&settlement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settlement = models.Settlement{
			CompletionID: completion.ID,
			JobID:        completion.JobID,
			AdminID:      adminID,
			Amount:       amount,
			State:        models.SettlementInitiated,
		}
		if createErr := s.db.WithContext(ctx).Create(&settlement).Error; createErr != nil {
			return nil, errors.Wrapf(ErrUpstream, "create settlement for %s: %v", completion.ID, createErr)
		}
		return &settlement, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "load settlement for %s: %v", completion.ID, err)
	}

	if settlement.State == models.SettlementInitiated && settlement.Amount != amount {
		if updErr := s.db.WithContext(ctx).Model(&settlement).Update("amount", amount).Error; updErr != nil {
			return nil, errors.Wrapf(ErrUpstream, "update settlement amount for %s: %v", completion.ID, updErr)
		}
		settlement.Amount = amount
	}
	return &settlement, nil
}

// recordSettlementFailure logs a failed gateway attempt and releases the
// in-flight claim so a later approve may retry.
func (s *ApprovalService) recordSettlementFailure(ctx context.Context, settlement *models.Settlement, reason string) {
	err := s.db.WithContext(ctx).Model(settlement).Updates(map[string]interface{}{
		"state":      models.SettlementInitiated,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
		"updated_at": time.Now(),
	}).Error
	if err != nil {
		s.log.WithError(err).WithField("completion_id", settlement.CompletionID).Warn("failed to record settlement failure")
	}
}

// finalize flips the completion to approved, completes the job and marks the
// settlement finalized. Each step is conditional, so re-running after a
// partial crash only performs what is still missing, and notifications fire
// only on the attempt that actually flipped the completion.
func (s *ApprovalService) finalize(ctx context.Context, completion *models.JobCompletion, settlement *models.Settlement, adminID uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.JobCompletion{}).
		Where("id = ? AND status = ?", completion.ID, models.CompletionStatusPending).
		Updates(map[string]interface{}{
			"status":       models.CompletionStatusApproved,
			"approved_at":  now,
			"approved_by":  adminID,
			"final_amount": settlement.Amount,
			"updated_at":   now,
		})
	if res.Error != nil {
		return errors.Wrapf(ErrUpstream, "approve completion %s: %v", completion.ID, res.Error)
	}
	flipped := res.RowsAffected > 0

	if _, err := s.lifecycle.Transition(ctx, completion.JobID, models.ActorAdmin, models.JobStatusCompleted, map[string]interface{}{
		"completed_at": now,
		"amount":       settlement.Amount,
	}); err != nil {
		// A previous attempt may already have completed the job.
		job, loadErr := s.lifecycle.GetJob(ctx, completion.JobID)
		if loadErr != nil || job.Status != models.JobStatusCompleted {
			return err
		}
	}

	err := s.db.WithContext(ctx).Model(settlement).Updates(map[string]interface{}{
		"state":      models.SettlementFinalized,
		"updated_at": time.Now(),
	}).Error
	if err != nil {
		return errors.Wrapf(ErrUpstream, "finalize settlement for %s: %v", completion.ID, err)
	}

	if flipped {
		s.log.WithFields(logrus.Fields{
			"completion_id": completion.ID,
			"job_id":        completion.JobID,
			"amount":        settlement.Amount,
			"reference":     settlement.PaymentReference,
		}).Info("completion approved")

		s.notifier.Notify(completion.ArtisanID, models.NotificationCompletionApproved,
			"Completion approved",
			fmt.Sprintf("Your work on job %d was approved and payment has been released.", completion.JobID),
			completion.JobID, &completion.ID)
		s.notifier.Notify(completion.ClientID, models.NotificationJobCompleted,
			"Job completed",
			fmt.Sprintf("Job %d has been completed and closed out.", completion.JobID),
			completion.JobID, &completion.ID)
	}

	return nil
}
