package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"phixall-server/services"
)

// SettlementJob periodically resumes approvals that debited the client but
// never finished flipping documents, typically after a crash between the
// gateway call and the final status writes.
type SettlementJob struct {
	approvals *services.ApprovalService
	interval  time.Duration
	grace     time.Duration
	log       *logrus.Logger
	stopChan  chan struct{}
}

func NewSettlementJob(approvals *services.ApprovalService, interval, grace time.Duration, log *logrus.Logger) *SettlementJob {
	return &SettlementJob{
		approvals: approvals,
		interval:  interval,
		grace:     grace,
		log:       log,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background sweep.
func (j *SettlementJob) Start() {
	go j.run()
	j.log.WithField("interval", j.interval).Info("Settlement resume job started")
}

// Stop stops the background sweep.
func (j *SettlementJob) Stop() {
	close(j.stopChan)
	j.log.Info("Settlement resume job stopped")
}

func (j *SettlementJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopChan:
			return
		}
	}
}

func (j *SettlementJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	resumed, err := j.approvals.ResumeStalled(ctx, j.grace)
	if err != nil {
		j.log.WithError(err).Error("Settlement sweep failed")
		return
	}
	if resumed > 0 {
		j.log.WithField("count", resumed).Info("Resumed stalled settlements")
	}
}
