package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fueltax-backend/internal/transcription"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
)

type leaseRecoverer interface {
	Run(ctx context.Context, limit int) (transcription.RecoveryResult, error)
}

// ReceiptRecoveryJobParams configure the expired lease sweep.
type ReceiptRecoveryJobParams struct {
	Logger   *logger.Logger
	Recovery leaseRecoverer
	Limit    int
}

// NewReceiptRecoveryJob requeues transcription jobs whose worker died and
// dead-letters the ones out of attempts.
func NewReceiptRecoveryJob(params ReceiptRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recovery == nil {
		return nil, fmt.Errorf("recovery required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	return &receiptRecoveryJob{logg: params.Logger, recovery: params.Recovery, limit: limit}, nil
}

type receiptRecoveryJob struct {
	logg     *logger.Logger
	recovery leaseRecoverer
	limit    int
}

func (j *receiptRecoveryJob) Name() string { return JobReceiptRecovery }

func (j *receiptRecoveryJob) Run(ctx context.Context) (int, error) {
	res, err := j.recovery.Run(ctx, j.limit)
	if res.Dead > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"requeued": res.Requeued,
			"dead":     res.Dead,
		})
		j.logg.Warn(logCtx, "receipt jobs exhausted their attempts")
	}
	if err != nil {
		return res.Requeued + res.Dead, fmt.Errorf("receipt job recovery: %w", err)
	}
	return res.Requeued + res.Dead, nil
}
