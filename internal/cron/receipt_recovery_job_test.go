package cron

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"

	"github.com/angelmondragon/fueltax-backend/internal/transcription"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
)

type stubRecoverer struct {
	res       transcription.RecoveryResult
	err       error
	lastLimit int
}

func (s *stubRecoverer) Run(_ context.Context, limit int) (transcription.RecoveryResult, error) {
	s.lastLimit = limit
	return s.res, s.err
}

func TestReceiptRecoveryJobCountsRecoveredJobs(t *testing.T) {
	rec := &stubRecoverer{res: transcription.RecoveryResult{Requeued: 3, Dead: 1}}
	job, err := NewReceiptRecoveryJob(ReceiptRecoveryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Recovery: rec,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	affected, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if affected != 4 {
		t.Fatalf("expected 4 affected jobs, got %d", affected)
	}
	if rec.lastLimit != defaultBatchLimit {
		t.Fatalf("expected default batch limit, got %d", rec.lastLimit)
	}
}

func TestReceiptRecoveryJobReportsPartialFailures(t *testing.T) {
	rowErrs := multierr.Combine(errors.New("requeue job a: boom"), errors.New("fail receipt b: boom"))
	rec := &stubRecoverer{res: transcription.RecoveryResult{Requeued: 2}, err: rowErrs}
	job, err := NewReceiptRecoveryJob(ReceiptRecoveryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Recovery: rec,
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	affected, err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined row errors")
	}
	if affected != 2 {
		t.Fatalf("expected recovered rows still counted, got %d", affected)
	}
	if got := len(multierr.Errors(errors.Unwrap(err))); got != 2 {
		t.Fatalf("expected 2 row errors, got %d", got)
	}
}

func TestNewReceiptRecoveryJobRequiresRecovery(t *testing.T) {
	if _, err := NewReceiptRecoveryJob(ReceiptRecoveryJobParams{Logger: logger.New(logger.Options{})}); err == nil {
		t.Fatal("expected error without recovery")
	}
}
