package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueltax-backend/internal/jobs"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
)

const (
	defaultLease       = 5 * time.Minute
	defaultMaxAttempts = 5
)

// RecoveryResult counts what a recovery pass did.
type RecoveryResult struct {
	Requeued int
	Dead     int
}

// RecoveryParams groups the recovery dependencies.
type RecoveryParams struct {
	DB          txRunner
	Jobs        *jobs.Repository
	Receipts    *receipts.Repository
	Outbox      outboxPublisher
	Lease       time.Duration
	MaxAttempts int
	Logger      *logger.Logger
	Now         func() time.Time
}

// Recovery returns jobs whose worker lease expired to the queue, or parks
// them as dead and fails their receipt once attempts are exhausted. The
// worker runs it on startup and the cron worker runs it periodically.
type Recovery struct {
	db          txRunner
	jobs        *jobs.Repository
	receipts    *receipts.Repository
	outbox      outboxPublisher
	lease       time.Duration
	maxAttempts int
	logg        *logger.Logger
	now         func() time.Time
}

func NewRecovery(p RecoveryParams) (*Recovery, error) {
	if p.DB == nil || p.Jobs == nil || p.Receipts == nil || p.Outbox == nil {
		return nil, errors.New("recovery requires database, job and receipt repositories, and outbox")
	}
	lease := p.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recovery{
		db:          p.DB,
		jobs:        p.Jobs,
		receipts:    p.Receipts,
		outbox:      p.Outbox,
		lease:       lease,
		maxAttempts: maxAttempts,
		logg:        p.Logger,
		now:         now,
	}, nil
}

// Run processes up to limit expired leases (all of them when limit <= 0).
// Each job recovers inside its own savepoint: a failing row is rolled back
// and reported while the rest of the batch still commits.
func (r *Recovery) Run(ctx context.Context, limit int) (RecoveryResult, error) {
	var (
		res  RecoveryResult
		errs error
	)
	now := r.now()
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		expired, err := r.jobs.ListExpiredLeases(ctx, tx, now.Add(-r.lease), limit)
		if err != nil {
			return fmt.Errorf("list expired leases: %w", err)
		}
		for _, job := range expired {
			var dead bool
			err := tx.Transaction(func(sp *gorm.DB) error {
				var err error
				dead, err = r.recoverJob(ctx, sp, job, now)
				return err
			})
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if dead {
				res.Dead++
			} else {
				res.Requeued++
			}
		}
		return nil
	})
	if err != nil {
		return RecoveryResult{}, err
	}
	return res, errs
}

func (r *Recovery) recoverJob(ctx context.Context, tx *gorm.DB, job models.ReceiptJob, now time.Time) (bool, error) {
	if job.Attempts < r.maxAttempts {
		if err := r.jobs.Retry(ctx, tx, job.ID, errors.New("lease expired"), now.Add(jobs.RetryDelay(job.Attempts)), now); err != nil {
			return false, fmt.Errorf("requeue job %s: %w", job.ID, err)
		}
		return false, nil
	}

	cause := fmt.Errorf("extraction abandoned after %d attempts", job.Attempts)
	if err := r.jobs.MarkDead(ctx, tx, job.ID, cause, now); err != nil {
		return true, fmt.Errorf("mark job %s dead: %w", job.ID, err)
	}
	receipt, err := r.receipts.FindByID(ctx, tx, job.ReceiptID)
	if err != nil {
		return true, fmt.Errorf("load receipt %s: %w", job.ReceiptID, err)
	}
	if receipt == nil || receipt.ProcessingStatus.IsTerminal() {
		return true, nil
	}
	if _, err := failReceipt(ctx, tx, r.receipts, r.outbox, receipt, cause.Error(), 0, now); err != nil {
		return true, fmt.Errorf("fail receipt %s: %w", receipt.ID, err)
	}
	if r.logg != nil {
		r.logg.Warn(r.logg.WithReceiptID(ctx, receipt.ID.String()), "receipt failed after exhausting extraction attempts")
	}
	return true, nil
}
