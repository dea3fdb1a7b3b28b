// Package receipts implements receipt ingestion, polling, manual correction
// and deletion.
package receipts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueltax-backend/internal/quota"
	"github.com/angelmondragon/fueltax-backend/internal/refunds"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueltax-backend/pkg/errors"
	"github.com/angelmondragon/fueltax-backend/pkg/fiscal"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fueltax-backend/pkg/storage"
	"github.com/angelmondragon/fueltax-backend/pkg/types"
)

var allowedMimes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type quotaGuard interface {
	CanUpload(ctx context.Context, accountID uuid.UUID, fiscalYear string) (quota.Decision, error)
	Admit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, fiscalYear string) (quota.Decision, error)
}

type jobQueue interface {
	Enqueue(ctx context.Context, tx *gorm.DB, receiptID uuid.UUID, now time.Time) error
}

type refundAnnotator interface {
	Annotate(ctx context.Context, receipts []models.Receipt) ([]refunds.Annotated, map[string]decimal.Decimal, error)
	AnnotateOne(ctx context.Context, receipt models.Receipt) (refunds.Annotated, error)
}

// Service is the receipt API surface.
type Service interface {
	Upload(ctx context.Context, input UploadInput) (*models.Receipt, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Get(ctx context.Context, accountID, receiptID uuid.UUID) (*refunds.Annotated, error)
	Update(ctx context.Context, input UpdateInput) (*refunds.Annotated, error)
	Delete(ctx context.Context, accountID, receiptID, actorID uuid.UUID) error
}

// UploadInput is one image upload.
type UploadInput struct {
	AccountID  uuid.UUID
	VehicleID  *uuid.UUID
	UploadedBy uuid.UUID
	Data       []byte
}

// UpdateInput carries a manual correction. Nil fields and absent numbers are
// left unchanged; numeric text is normalized like extraction output.
type UpdateInput struct {
	AccountID      uuid.UUID
	ReceiptID      uuid.UUID
	ActorID        uuid.UUID
	VehicleID      types.NullableUUID
	PurchaseDate   *time.Time
	StationName    *string
	SellerAddress  *string
	SellerCity     *string
	SellerState    *string
	SellerZip      *string
	FuelType       *enums.FuelType
	Gallons        types.NullableNumber
	PricePerGallon types.NullableNumber
	TotalAmount    types.NullableNumber
}

// amountPatches hold normalized numeric edits; nil leaves a column unchanged.
type amountPatches struct {
	gallons        *decimal.NullDecimal
	pricePerGallon *decimal.NullDecimal
	totalAmount    *decimal.NullDecimal
}

// ListResult is an annotated page plus refund totals per fiscal year.
type ListResult struct {
	Receipts []refunds.Annotated
	Totals   map[string]decimal.Decimal
}

// ServiceParams groups the service's dependencies.
type ServiceParams struct {
	Repo      *Repository
	Jobs      jobQueue
	Quota     quotaGuard
	Blobs     storage.BlobStore
	Outbox    outboxPublisher
	Tx        txRunner
	Annotator refundAnnotator
	MaxBytes  int64
	// DefaultFuel is stored on placeholders until extraction decides.
	DefaultFuel enums.FuelType
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo      *Repository
	jobs      jobQueue
	quota     quotaGuard
	blobs     storage.BlobStore
	outbox    outboxPublisher
	tx        txRunner
	annotator refundAnnotator
	maxBytes  int64
	fuel      enums.FuelType
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("receipt repository required")
	case p.Jobs == nil:
		return nil, fmt.Errorf("job queue required")
	case p.Quota == nil:
		return nil, fmt.Errorf("quota guard required")
	case p.Blobs == nil:
		return nil, fmt.Errorf("blob store required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Annotator == nil:
		return nil, fmt.Errorf("refund annotator required")
	case p.MaxBytes <= 0:
		return nil, fmt.Errorf("max upload size must be positive")
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	fuel := p.DefaultFuel
	if !fuel.IsValid() {
		fuel = enums.FuelTypeGasoline
	}
	return &service{
		repo:      p.Repo,
		jobs:      p.Jobs,
		quota:     p.Quota,
		blobs:     p.Blobs,
		outbox:    p.Outbox,
		tx:        p.Tx,
		annotator: p.Annotator,
		maxBytes:  p.MaxBytes,
		fuel:      fuel,
		logg:      p.Logger,
		now:       now,
	}, nil
}

// DetectMime sniffs data and returns the canonical MIME type when it is an
// accepted receipt image.
func DetectMime(data []byte) (string, bool) {
	detected := mimetype.Detect(data)
	for _, allowed := range allowedMimes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}
	return detected.String(), false
}

func quotaError(d quota.Decision) error {
	return pkgerrors.New(pkgerrors.CodeQuotaExceeded, d.Reason.Message()).
		WithDetails(map[string]any{"reason": d.Reason})
}

// Upload validates the image, checks quota, stores the blob and then, in one
// transaction, consumes the quota slot, inserts the placeholder receipt,
// queues extraction and records the outbox event. If that transaction fails
// the blob is removed again.
func (s *service) Upload(ctx context.Context, input UploadInput) (*models.Receipt, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if len(input.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is required")
	}
	if int64(len(input.Data)) > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is too large").
			WithDetails(map[string]any{"maxBytes": s.maxBytes})
	}
	mime, ok := DetectMime(input.Data)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported file type").
			WithDetails(map[string]any{"mime": mime, "allowed": allowedMimes})
	}

	now := s.now()
	today := fiscal.DateOnly(now)
	quotaYear := fiscal.Current(now)

	pre, err := s.quota.CanUpload(ctx, input.AccountID, quotaYear)
	if err != nil {
		return nil, err
	}
	if !pre.Allowed {
		return nil, quotaError(pre)
	}

	receiptID := uuid.New()
	ref, err := s.blobs.Put(ctx, input.Data, mime, storage.ReceiptNamespace(input.AccountID, receiptID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store receipt image")
	}

	var uploadedBy *uuid.UUID
	if input.UploadedBy != uuid.Nil {
		uploader := input.UploadedBy
		uploadedBy = &uploader
	}
	receipt := &models.Receipt{
		ID:               receiptID,
		AccountID:        input.AccountID,
		VehicleID:        input.VehicleID,
		UploadedBy:       uploadedBy,
		ImageRef:         ref,
		ImageMime:        mime,
		PurchaseDate:     today,
		StationName:      models.PlaceholderStationName,
		FuelType:         s.fuel,
		ProcessingStatus: enums.ProcessingStatusPending,
		FiscalYear:       fiscal.Year(today),
		QuotaFiscalYear:  quotaYear,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		decision, err := s.quota.Admit(ctx, tx, input.AccountID, quotaYear)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return quotaError(decision)
		}
		if err := s.repo.Create(ctx, tx, receipt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert receipt")
		}
		if err := s.jobs.Enqueue(ctx, tx, receipt.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue extraction")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReceiptUploaded,
			AggregateType: enums.AggregateReceipt,
			AggregateID:   receipt.ID,
			Actor:         &outbox.ActorRef{UserID: uploadedBy, AccountID: &receipt.AccountID, Role: "member"},
			OccurredAt:    now,
			Data: payloads.ReceiptUploadedEvent{
				ReceiptID:       receipt.ID,
				AccountID:       receipt.AccountID,
				VehicleID:       receipt.VehicleID,
				QuotaFiscalYear: quotaYear,
				ImageMime:       mime,
				UploadedAt:      now,
			},
		})
	})
	if err != nil {
		s.compensateBlob(ctx, receipt, err)
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithReceiptID(s.logg.WithAccountID(ctx, receipt.AccountID.String()), receipt.ID.String())
		s.logg.Info(logCtx, "receipt uploaded and queued for extraction")
	}
	return receipt, nil
}

func (s *service) compensateBlob(ctx context.Context, receipt *models.Receipt, cause error) {
	if delErr := s.blobs.Delete(ctx, receipt.ImageRef); delErr != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"receipt_id": receipt.ID.String(),
			"image_ref":  receipt.ImageRef,
			"cause":      cause.Error(),
		})
		s.logg.Error(logCtx, "failed to remove blob after aborted upload", delErr)
	}
}

func (s *service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if filter.FiscalYear != "" {
		if err := fiscal.Validate(filter.FiscalYear); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal year")
		}
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipts")
	}
	annotated, totals, err := s.annotator.Annotate(ctx, rows)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute refunds")
	}
	return &ListResult{Receipts: annotated, Totals: totals}, nil
}

func (s *service) Get(ctx context.Context, accountID, receiptID uuid.UUID) (*refunds.Annotated, error) {
	receipt, err := s.load(ctx, accountID, receiptID)
	if err != nil {
		return nil, err
	}
	annotated, err := s.annotator.AnnotateOne(ctx, *receipt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute refund")
	}
	return &annotated, nil
}

func (s *service) load(ctx context.Context, accountID, receiptID uuid.UUID) (*models.Receipt, error) {
	receipt, err := s.repo.FindForAccount(ctx, accountID, receiptID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt")
	}
	if receipt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
	}
	return receipt, nil
}

// Update applies a manual correction. Receipts still being extracted cannot
// be edited. The fiscal year follows the (possibly new) purchase date.
func (s *service) Update(ctx context.Context, input UpdateInput) (*refunds.Annotated, error) {
	if input.SellerState != nil {
		upper := strings.ToUpper(strings.TrimSpace(*input.SellerState))
		input.SellerState = &upper
	}
	if input.FuelType != nil && !input.FuelType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid fuel type")
	}
	amounts := amountPatches{
		gallons:        s.amountPatch(ctx, input.ReceiptID, gallonsColumn, input.Gallons),
		pricePerGallon: s.amountPatch(ctx, input.ReceiptID, pricePerGallonColumn, input.PricePerGallon),
		totalAmount:    s.amountPatch(ctx, input.ReceiptID, totalAmountColumn, input.TotalAmount),
	}

	var updated *models.Receipt
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		receipt, err := s.repo.FindByID(ctx, tx, input.ReceiptID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt")
		}
		if receipt == nil || receipt.AccountID != input.AccountID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		if !receipt.ProcessingStatus.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt is still being processed")
		}

		applyUpdate(receipt, input, amounts)
		now := s.now()
		ok, err := s.repo.UpdateContent(ctx, tx, receipt, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update receipt")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt is still being processed")
		}
		receipt.UpdatedAt = now
		updated = receipt
		return s.emitChanged(ctx, tx, enums.EventReceiptUpdated, receipt, input.ActorID, now)
	})
	if err != nil {
		return nil, err
	}
	annotated, err := s.annotator.AnnotateOne(ctx, *updated)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute refund")
	}
	return &annotated, nil
}

// amountPatch normalizes an edited numeric field the same way extraction
// output is normalized. Text that cannot be stored clears the column.
func (s *service) amountPatch(ctx context.Context, receiptID uuid.UUID, col amountColumn, in types.NullableNumber) *decimal.NullDecimal {
	if !in.Valid {
		return nil
	}
	v, ok := col.parse(in.Text())
	if !ok && s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithReceiptID(ctx, receiptID.String()), map[string]any{
			"field": col.name,
			"raw":   in.Text(),
		})
		s.logg.Warn(logCtx, "edited amount not parsable; stored as null")
	}
	return &v
}

func applyUpdate(r *models.Receipt, in UpdateInput, amounts amountPatches) {
	if in.VehicleID.Valid {
		r.VehicleID = in.VehicleID.Value
	}
	if in.PurchaseDate != nil {
		r.PurchaseDate = fiscal.DateOnly(*in.PurchaseDate)
	}
	if in.StationName != nil {
		r.StationName = strings.TrimSpace(*in.StationName)
	}
	if in.SellerAddress != nil {
		r.SellerAddress = optional(*in.SellerAddress)
	}
	if in.SellerCity != nil {
		r.SellerCity = optional(*in.SellerCity)
	}
	if in.SellerState != nil {
		r.SellerState = optional(*in.SellerState)
	}
	if in.SellerZip != nil {
		r.SellerZip = optional(*in.SellerZip)
	}
	if in.FuelType != nil {
		r.FuelType = *in.FuelType
	}
	if amounts.gallons != nil {
		r.Gallons = *amounts.gallons
	}
	if amounts.pricePerGallon != nil {
		r.PricePerGallon = *amounts.pricePerGallon
	}
	if amounts.totalAmount != nil {
		r.TotalAmount = *amounts.totalAmount
	}
	r.FiscalYear = fiscal.Year(r.PurchaseDate)
}

// Delete removes the blob and then the row. The quota slot is not returned.
// If the row delete fails after the blob is gone the receipt keeps a
// dangling image reference, which is logged.
func (s *service) Delete(ctx context.Context, accountID, receiptID, actorID uuid.UUID) error {
	receipt, err := s.load(ctx, accountID, receiptID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, receipt.ImageRef); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete receipt image")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.Delete(ctx, tx, accountID, receiptID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete receipt")
		}
		if n == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found")
		}
		return s.emitChanged(ctx, tx, enums.EventReceiptDeleted, receipt, actorID, s.now())
	})
	if err != nil && s.logg != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"receipt_id": receipt.ID.String(),
			"image_ref":  receipt.ImageRef,
		})
		s.logg.Error(logCtx, "receipt row kept after its image was deleted", err)
	}
	return err
}

func (s *service) emitChanged(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, r *models.Receipt, actorID uuid.UUID, now time.Time) error {
	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReceipt,
		AggregateID:   r.ID,
		Actor:         &outbox.ActorRef{UserID: actor, AccountID: &r.AccountID, Role: "member"},
		OccurredAt:    now,
		Data: payloads.ReceiptChangedEvent{
			ReceiptID:  r.ID,
			AccountID:  r.AccountID,
			FiscalYear: r.FiscalYear,
			ChangedAt:  now,
		},
	})
}
