package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fueltax-backend/pkg/logger"
)

type trialExpirer interface {
	ExpireTrials(ctx context.Context, now time.Time, limit int) (int, error)
}

// TrialExpiryJobParams configure the trial sweep.
type TrialExpiryJobParams struct {
	Logger *logger.Logger
	Quota  trialExpirer
	Limit  int
}

// NewTrialExpiryJob moves trials past their end date to expired so status
// reads and analytics see the lapse without an upload attempt.
func NewTrialExpiryJob(params TrialExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Quota == nil {
		return nil, fmt.Errorf("quota service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	return &trialExpiryJob{
		logg:  params.Logger,
		quota: params.Quota,
		limit: limit,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

type trialExpiryJob struct {
	logg  *logger.Logger
	quota trialExpirer
	limit int
	now   func() time.Time
}

func (j *trialExpiryJob) Name() string { return JobTrialExpiry }

// Run drains elapsed trials in batches until a short batch comes back.
func (j *trialExpiryJob) Run(ctx context.Context) (int, error) {
	now := j.now()
	total := 0
	for {
		n, err := j.quota.ExpireTrials(ctx, now, j.limit)
		if err != nil {
			return total, fmt.Errorf("expire trials: %w", err)
		}
		total += n
		if n < j.limit || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", total), "trials expired")
	}
	return total, nil
}
