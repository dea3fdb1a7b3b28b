// Package transcription runs receipt extraction jobs: it claims queued jobs,
// calls the extractor and moves each receipt to a terminal state.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueltax-backend/internal/extraction"
	"github.com/angelmondragon/fueltax-backend/internal/jobs"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/metrics"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fueltax-backend/pkg/storage"
)

const (
	defaultBatchSize         = 5
	defaultPollInterval      = time.Second
	defaultExtractionTimeout = 60 * time.Second
	workerRole               = "transcription-worker"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// WorkerParams groups the worker's dependencies.
type WorkerParams struct {
	WorkerID    string
	DB          txRunner
	Jobs        *jobs.Repository
	Receipts    *receipts.Repository
	Blobs       storage.BlobStore
	Extractor   extraction.Extractor
	Outbox      outboxPublisher
	Recovery    *Recovery
	Metrics     *metrics.TranscriptionMetrics
	Config      config.WorkerConfig
	Timeout     time.Duration
	DefaultFuel enums.FuelType
	Logger      *logger.Logger
	Now         func() time.Time
}

// Worker polls receipt_jobs and processes claimed jobs concurrently.
type Worker struct {
	id        string
	db        txRunner
	jobs      *jobs.Repository
	receipts  *receipts.Repository
	blobs     storage.BlobStore
	extractor extraction.Extractor
	outbox    outboxPublisher
	recovery  *Recovery
	metrics   *metrics.TranscriptionMetrics
	batchSize int
	poll      time.Duration
	timeout   time.Duration
	fuel      enums.FuelType
	logg      *logger.Logger
	now       func() time.Time
}

func NewWorker(p WorkerParams) (*Worker, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Jobs == nil:
		return nil, errors.New("job repository is required")
	case p.Receipts == nil:
		return nil, errors.New("receipt repository is required")
	case p.Blobs == nil:
		return nil, errors.New("blob store is required")
	case p.Extractor == nil:
		return nil, errors.New("extractor is required")
	case p.Outbox == nil:
		return nil, errors.New("outbox publisher is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	batch := p.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultExtractionTimeout
	}
	fuel := p.DefaultFuel
	if !fuel.IsValid() {
		fuel = enums.FuelTypeGasoline
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	id := p.WorkerID
	if id == "" {
		id = "worker-0"
	}
	return &Worker{
		id:        id,
		db:        p.DB,
		jobs:      p.Jobs,
		receipts:  p.Receipts,
		blobs:     p.Blobs,
		extractor: p.Extractor,
		outbox:    p.Outbox,
		recovery:  p.Recovery,
		metrics:   p.Metrics,
		batchSize: batch,
		poll:      poll,
		timeout:   timeout,
		fuel:      fuel,
		logg:      p.Logger,
		now:       now,
	}, nil
}

// Run requeues expired leases once and then polls until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ctx = w.logg.WithField(ctx, "worker_id", w.id)
	if w.recovery != nil {
		res, err := w.recovery.Run(ctx, 0)
		if err != nil {
			w.logg.Error(ctx, "requeue expired leases", err)
		}
		if res.Requeued > 0 || res.Dead > 0 {
			w.logg.Info(w.logg.WithFields(ctx, map[string]any{
				"requeued": res.Requeued,
				"dead":     res.Dead,
			}), "recovered abandoned receipt jobs")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := w.ProcessBatch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logg.Error(ctx, "receipt job batch failed", err)
		}
		if n > 0 && err == nil {
			continue
		}
		timer := time.NewTimer(w.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ProcessBatch claims up to the batch size of due jobs and processes them.
// It returns the number of jobs claimed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	var claimed []models.ReceiptJob
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		claimed, err = w.jobs.Claim(ctx, tx, w.id, w.batchSize, w.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	w.metrics.AddClaimed(len(claimed))

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range claimed {
		g.Go(func() error {
			jobCtx := w.logg.WithReceiptID(gctx, job.ReceiptID.String())
			if err := w.process(jobCtx, job); err != nil {
				// the lease expires and recovery requeues the job
				w.logg.Error(w.logg.WithField(jobCtx, "job_id", job.ID.String()), "receipt job left running", err)
				w.metrics.IncOutcome(metrics.OutcomeRetried)
			}
			return nil
		})
	}
	return len(claimed), g.Wait()
}

func (w *Worker) process(ctx context.Context, job models.ReceiptJob) error {
	receipt, err := w.receipts.FindByID(ctx, nil, job.ReceiptID)
	if err != nil {
		return fmt.Errorf("load receipt: %w", err)
	}
	if receipt == nil || receipt.ProcessingStatus.IsTerminal() {
		return w.discard(ctx, job)
	}

	if receipt.ProcessingStatus == enums.ProcessingStatusPending {
		var moved bool
		err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			moved, err = w.receipts.Transition(ctx, tx, receipt.ID, enums.ProcessingStatusProcessing, map[string]any{"updated_at": w.now()})
			return err
		})
		if err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}
		if !moved {
			current, err := w.receipts.FindByID(ctx, nil, receipt.ID)
			if err != nil {
				return fmt.Errorf("reload receipt: %w", err)
			}
			if current == nil || current.ProcessingStatus.IsTerminal() {
				return w.discard(ctx, job)
			}
		}
		receipt.ProcessingStatus = enums.ProcessingStatusProcessing
	}

	data, mime, err := w.blobs.Get(ctx, receipt.ImageRef)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.fail(ctx, job, receipt, fmt.Errorf("fetch receipt image: %w", err), 0)
	}
	if mime == "" {
		mime = receipt.ImageMime
	}

	extractCtx, cancel := context.WithTimeout(ctx, w.timeout)
	started := time.Now()
	result, err := w.extractor.Extract(extractCtx, data, mime)
	elapsed := time.Since(started)
	timedOut := errors.Is(extractCtx.Err(), context.DeadlineExceeded)
	cancel()
	w.metrics.ObserveExtraction(elapsed)

	if err != nil {
		if ctx.Err() != nil {
			// shutting down; leave the job for lease recovery
			return ctx.Err()
		}
		if timedOut {
			err = fmt.Errorf("extraction timed out after %s", w.timeout)
		}
		return w.fail(ctx, job, receipt, err, elapsed)
	}
	return w.complete(ctx, job, receipt, result, elapsed)
}

func (w *Worker) discard(ctx context.Context, job models.ReceiptJob) error {
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		return w.jobs.MarkDone(ctx, tx, job.ID, w.now())
	})
	if err != nil {
		return fmt.Errorf("discard job: %w", err)
	}
	w.metrics.IncOutcome(metrics.OutcomeDiscarded)
	w.logg.Debug(ctx, "receipt job discarded")
	return nil
}

func (w *Worker) complete(ctx context.Context, job models.ReceiptJob, receipt *models.Receipt, result *extraction.Result, elapsed time.Duration) error {
	now := w.now()
	uploaded := receipt.CreatedAt
	if uploaded.IsZero() {
		uploaded = now
	}
	extracted := receipts.Normalize(result, uploaded, w.fuel)
	if len(extracted.Unparsed) > 0 {
		w.logg.Warn(w.logg.WithField(ctx, "fields", extracted.Unparsed), "extracted amounts could not be parsed")
	}

	applied := false
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := w.receipts.Transition(ctx, tx, receipt.ID, enums.ProcessingStatusCompleted, extracted.Updates(now))
		if err != nil {
			return err
		}
		if err := w.jobs.MarkDone(ctx, tx, job.ID, now); err != nil {
			return err
		}
		if !moved {
			return nil
		}
		applied = true
		event := payloads.ReceiptProcessedEvent{
			ReceiptID:        receipt.ID,
			AccountID:        receipt.AccountID,
			Status:           enums.ProcessingStatusCompleted,
			FiscalYear:       extracted.FiscalYear,
			PurchaseDate:     extracted.PurchaseDate.Format(time.DateOnly),
			Gallons:          decimalText(extracted.Gallons.Valid, extracted.Gallons.Decimal.String()),
			TotalAmount:      decimalText(extracted.TotalAmount.Valid, extracted.TotalAmount.Decimal.String()),
			ExtractionMillis: elapsed.Milliseconds(),
			ProcessedAt:      now,
		}
		if extracted.SellerState != nil {
			event.SellerState = *extracted.SellerState
		}
		if extracted.Warning != nil {
			event.ProcessingError = *extracted.Warning
		}
		return w.emit(ctx, tx, enums.EventReceiptCompleted, receipt, event, now)
	})
	if err != nil {
		return fmt.Errorf("complete receipt: %w", err)
	}
	if !applied {
		w.metrics.IncOutcome(metrics.OutcomeDiscarded)
		return nil
	}
	w.metrics.IncOutcome(metrics.OutcomeCompleted)
	w.logg.Info(w.logg.WithField(ctx, "fiscal_year", extracted.FiscalYear), "receipt extracted")
	return nil
}

func (w *Worker) fail(ctx context.Context, job models.ReceiptJob, receipt *models.Receipt, cause error, elapsed time.Duration) error {
	now := w.now()
	applied := false
	err := w.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		applied, err = failReceipt(ctx, tx, w.receipts, w.outbox, receipt, cause.Error(), elapsed, now)
		if err != nil {
			return err
		}
		return w.jobs.MarkDone(ctx, tx, job.ID, now)
	})
	if err != nil {
		return fmt.Errorf("fail receipt: %w", err)
	}
	if !applied {
		w.metrics.IncOutcome(metrics.OutcomeDiscarded)
		return nil
	}
	w.metrics.IncOutcome(metrics.OutcomeFailed)
	w.logg.Warn(w.logg.WithField(ctx, "error", cause.Error()), "receipt extraction failed")
	return nil
}

// failReceipt moves a pending or processing receipt to failed and records
// receipt_failed. It reports false when the receipt was already terminal or
// gone.
func failReceipt(ctx context.Context, tx *gorm.DB, repo *receipts.Repository, out outboxPublisher, receipt *models.Receipt, msg string, elapsed time.Duration, now time.Time) (bool, error) {
	if receipt.ProcessingStatus == enums.ProcessingStatusPending {
		if _, err := repo.Transition(ctx, tx, receipt.ID, enums.ProcessingStatusProcessing, map[string]any{"updated_at": now}); err != nil {
			return false, err
		}
	}
	moved, err := repo.Transition(ctx, tx, receipt.ID, enums.ProcessingStatusFailed, map[string]any{
		"processing_error": msg,
		"updated_at":       now,
	})
	if err != nil || !moved {
		return false, err
	}
	return true, out.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReceiptFailed,
		AggregateType: enums.AggregateReceipt,
		AggregateID:   receipt.ID,
		Actor:         &outbox.ActorRef{AccountID: &receipt.AccountID, Role: workerRole},
		OccurredAt:    now,
		Data: payloads.ReceiptProcessedEvent{
			ReceiptID:        receipt.ID,
			AccountID:        receipt.AccountID,
			Status:           enums.ProcessingStatusFailed,
			FiscalYear:       receipt.FiscalYear,
			ProcessingError:  msg,
			ExtractionMillis: elapsed.Milliseconds(),
			ProcessedAt:      now,
		},
	})
}

func (w *Worker) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, receipt *models.Receipt, data any, now time.Time) error {
	return w.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReceipt,
		AggregateID:   receipt.ID,
		Actor:         &outbox.ActorRef{AccountID: &receipt.AccountID, Role: workerRole},
		OccurredAt:    now,
		Data:          data,
	})
}

func decimalText(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}
