package cron

import (
	"context"

	"gorm.io/gorm"
)

// Job names are also the metric labels.
const (
	JobReceiptRecovery = "receipt-job-recovery"
	JobTrialExpiry     = "trial-expiry"
	JobOutboxRetention = "outbox-retention"
)

const defaultBatchLimit = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
