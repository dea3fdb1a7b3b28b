// Package quota gates receipt uploads behind the per fiscal year trial and
// subscription state, and applies billing outcomes to it.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueltax-backend/pkg/errors"
	"github.com/angelmondragon/fueltax-backend/pkg/fiscal"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the quota guard.
type Service interface {
	CanUpload(ctx context.Context, accountID uuid.UUID, fiscalYear string) (Decision, error)
	Admit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, fiscalYear string) (Decision, error)
	Status(ctx context.Context, accountID uuid.UUID, fiscalYear string) (*StatusView, error)
	ApplyPurchase(ctx context.Context, input PurchaseCompleted) (bool, error)
	ApplyPack(ctx context.Context, input PackPurchased) (bool, error)
	Cancel(ctx context.Context, input SubscriptionCanceled) (bool, error)
	ExpireTrials(ctx context.Context, now time.Time, limit int) (int, error)
}

// BillingRef identifies the provider delivery that triggered a change.
type BillingRef struct {
	Provider  string
	EventID   string
	EventType string
	Payload   json.RawMessage
}

// PurchaseCompleted activates the plan for a fiscal year.
type PurchaseCompleted struct {
	Billing          BillingRef
	AccountID        uuid.UUID
	FiscalYear       string
	PaymentReference string
}

// PackPurchased adds receipt slots for a fiscal year.
type PackPurchased struct {
	Billing          BillingRef
	AccountID        uuid.UUID
	FiscalYear       string
	ReceiptsAdded    int
	AmountMinor      int64
	PaymentReference string
}

// SubscriptionCanceled ends uploads for a fiscal year.
type SubscriptionCanceled struct {
	Billing    BillingRef
	AccountID  uuid.UUID
	FiscalYear string
}

// StatusView is the client-facing quota state.
type StatusView struct {
	FiscalYear         string                   `json:"fiscalYear"`
	Status             enums.SubscriptionStatus `json:"status"`
	TrialDaysRemaining int                      `json:"trialDaysRemaining"`
	ReceiptCount       int                      `json:"receiptCount"`
	ReceiptLimit       int                      `json:"receiptLimit"`
	CanUpload          bool                     `json:"canUpload"`
	Reason             enums.QuotaDenyReason    `json:"reason,omitempty"`
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxPublisher
	cfg    config.QuotaConfig
	logg   *logger.Logger
	now    func() time.Time
}

// ServiceParams groups the guard's dependencies.
type ServiceParams struct {
	Repo   *Repository
	Tx     txRunner
	Outbox outboxPublisher
	Config config.QuotaConfig
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quota repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Config.TrialReceiptLimit <= 0 || params.Config.TrialDays <= 0 || params.Config.PlanReceiptLimit <= 0 {
		return nil, fmt.Errorf("quota limits must be positive")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		cfg:    params.Config,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) newTrial(accountID uuid.UUID, fiscalYear string, now time.Time) *models.AccountSubscription {
	return &models.AccountSubscription{
		ID:             uuid.New(),
		AccountID:      accountID,
		FiscalYear:     fiscalYear,
		Status:         enums.SubscriptionStatusTrial,
		TrialStartedAt: now,
		TrialEndsAt:    now.AddDate(0, 0, s.cfg.TrialDays),
		ReceiptLimit:   s.cfg.TrialReceiptLimit,
		BaseLimit:      s.cfg.TrialReceiptLimit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CanUpload is a read-only pre-check. An account without a row is admitted
// because its first upload starts the trial.
func (s *service) CanUpload(ctx context.Context, accountID uuid.UUID, fiscalYear string) (Decision, error) {
	if err := fiscal.Validate(fiscalYear); err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal year")
	}
	sub, err := s.repo.Find(ctx, nil, accountID, fiscalYear)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return allow(nil), nil
	}
	return evaluate(sub, s.now()), nil
}

// Admit consumes one slot inside tx. It must run in the same transaction
// that persists the receipt so a rollback also returns the slot.
func (s *service) Admit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, fiscalYear string) (Decision, error) {
	if tx == nil {
		return Decision{}, fmt.Errorf("transaction required")
	}
	now := s.now()
	if _, err := s.repo.InsertIfAbsent(ctx, tx, s.newTrial(accountID, fiscalYear, now)); err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create trial")
	}
	admitted, err := s.repo.TryIncrement(ctx, tx, accountID, fiscalYear, now)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume quota")
	}
	sub, err := s.repo.Find(ctx, tx, accountID, fiscalYear)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload subscription")
	}
	if admitted {
		return allow(sub), nil
	}
	decision := evaluate(sub, now)
	if decision.Allowed {
		// lost a race for the last slot between the check and the update.
		decision = deny(sub, enums.QuotaDenyReceiptLimitReached)
	}
	return decision, nil
}

func (s *service) Status(ctx context.Context, accountID uuid.UUID, fiscalYear string) (*StatusView, error) {
	if err := fiscal.Validate(fiscalYear); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal year")
	}
	sub, err := s.repo.Find(ctx, nil, accountID, fiscalYear)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	now := s.now()
	if sub == nil {
		return &StatusView{
			FiscalYear:         fiscalYear,
			Status:             enums.SubscriptionStatusTrial,
			TrialDaysRemaining: s.cfg.TrialDays,
			ReceiptLimit:       s.cfg.TrialReceiptLimit,
			CanUpload:          true,
		}, nil
	}
	decision := evaluate(sub, now)
	return &StatusView{
		FiscalYear:         fiscalYear,
		Status:             sub.Status,
		TrialDaysRemaining: trialDaysRemaining(sub, now),
		ReceiptCount:       sub.ReceiptCount,
		ReceiptLimit:       sub.ReceiptLimit,
		CanUpload:          decision.Allowed,
		Reason:             decision.Reason,
	}, nil
}

// ApplyPurchase activates the plan once. It reports false when the billing
// event was already processed.
func (s *service) ApplyPurchase(ctx context.Context, input PurchaseCompleted) (bool, error) {
	if err := validateTarget(input.AccountID, input.FiscalYear); err != nil {
		return false, err
	}
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.recordBilling(ctx, tx, input.Billing, input.AccountID, input.FiscalYear)
		if err != nil || !fresh {
			return err
		}
		now := s.now()
		sub, err := s.loadOrCreate(ctx, tx, input.AccountID, input.FiscalYear, now)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusActive {
			applied = true
			return nil
		}
		packs, err := s.repo.SumPacks(ctx, tx, input.AccountID, input.FiscalYear)
		if err != nil {
			return err
		}
		sub.Status = enums.SubscriptionStatusActive
		sub.BaseLimit = s.cfg.PlanReceiptLimit
		sub.ReceiptLimit = maxInt(sub.ReceiptLimit, sub.BaseLimit+packs)
		sub.ActivatedAt = &now
		sub.CanceledAt = nil
		if ref := strings.TrimSpace(input.PaymentReference); ref != "" {
			sub.LastPaymentRef = &ref
		}
		sub.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, sub); err != nil {
			return err
		}
		applied = true
		return s.emit(ctx, tx, enums.EventQuotaActivated, sub, input.PaymentReference, now)
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply purchase")
	}
	return applied, nil
}

// ApplyPack records a pack and raises the limit. A pack whose payment
// reference was already recorded changes nothing.
func (s *service) ApplyPack(ctx context.Context, input PackPurchased) (bool, error) {
	if err := validateTarget(input.AccountID, input.FiscalYear); err != nil {
		return false, err
	}
	if input.ReceiptsAdded <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "pack size must be positive")
	}
	if strings.TrimSpace(input.PaymentReference) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.recordBilling(ctx, tx, input.Billing, input.AccountID, input.FiscalYear)
		if err != nil || !fresh {
			return err
		}
		now := s.now()
		inserted, err := s.repo.InsertPack(ctx, tx, &models.ReceiptPack{
			AccountID:        input.AccountID,
			FiscalYear:       input.FiscalYear,
			ReceiptsAdded:    input.ReceiptsAdded,
			Price:            packPrice(input.AmountMinor),
			PaymentReference: input.PaymentReference,
			CreatedAt:        now,
		})
		if err != nil || !inserted {
			return err
		}
		sub, err := s.loadOrCreate(ctx, tx, input.AccountID, input.FiscalYear, now)
		if err != nil {
			return err
		}
		packs, err := s.repo.SumPacks(ctx, tx, input.AccountID, input.FiscalYear)
		if err != nil {
			return err
		}
		sub.ReceiptLimit = maxInt(sub.ReceiptLimit, sub.BaseLimit+packs)
		ref := input.PaymentReference
		sub.LastPaymentRef = &ref
		sub.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, sub); err != nil {
			return err
		}
		applied = true
		return s.emit(ctx, tx, enums.EventReceiptPackApplied, sub, input.PaymentReference, now)
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply receipt pack")
	}
	return applied, nil
}

func (s *service) Cancel(ctx context.Context, input SubscriptionCanceled) (bool, error) {
	if err := validateTarget(input.AccountID, input.FiscalYear); err != nil {
		return false, err
	}
	applied := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.recordBilling(ctx, tx, input.Billing, input.AccountID, input.FiscalYear)
		if err != nil || !fresh {
			return err
		}
		sub, err := s.repo.Find(ctx, tx, input.AccountID, input.FiscalYear)
		if err != nil {
			return err
		}
		if sub == nil || sub.Status == enums.SubscriptionStatusCanceled {
			return nil
		}
		now := s.now()
		sub.Status = enums.SubscriptionStatusCanceled
		sub.CanceledAt = &now
		sub.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, sub); err != nil {
			return err
		}
		applied = true
		return s.emit(ctx, tx, enums.EventQuotaCanceled, sub, "", now)
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
	return applied, nil
}

// ExpireTrials moves elapsed trials to expired and returns how many changed.
func (s *service) ExpireTrials(ctx context.Context, now time.Time, limit int) (int, error) {
	expired := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.ListExpiredTrials(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		for i := range rows {
			ok, err := s.repo.ExpireTrial(ctx, tx, rows[i].ID, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			rows[i].Status = enums.SubscriptionStatusExpired
			if err := s.emit(ctx, tx, enums.EventTrialExpired, &rows[i], "", now); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func (s *service) loadOrCreate(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, fiscalYear string, now time.Time) (*models.AccountSubscription, error) {
	if _, err := s.repo.InsertIfAbsent(ctx, tx, s.newTrial(accountID, fiscalYear, now)); err != nil {
		return nil, err
	}
	sub, err := s.repo.Find(ctx, tx, accountID, fiscalYear)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription %s/%s missing after insert", accountID, fiscalYear)
	}
	return sub, nil
}

func (s *service) recordBilling(ctx context.Context, tx *gorm.DB, ref BillingRef, accountID uuid.UUID, fiscalYear string) (bool, error) {
	if strings.TrimSpace(ref.EventID) == "" {
		// internal callers without a provider delivery are not deduped here.
		return true, nil
	}
	fy := fiscalYear
	acct := accountID
	fresh, err := s.repo.RecordBillingEvent(ctx, tx, &models.BillingEvent{
		Provider:        ref.Provider,
		ProviderEventID: ref.EventID,
		EventType:       ref.EventType,
		AccountID:       &acct,
		FiscalYear:      &fy,
		Payload:         ref.Payload,
		ProcessedAt:     s.now(),
	})
	if err != nil {
		return false, err
	}
	if !fresh && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"provider": ref.Provider, "provider_event_id": ref.EventID})
		s.logg.Info(logCtx, "billing event already processed")
	}
	return fresh, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, sub *models.AccountSubscription, paymentRef string, now time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         &outbox.ActorRef{AccountID: &sub.AccountID, Role: "billing"},
		OccurredAt:    now,
		Data: payloads.QuotaChangedEvent{
			AccountID:        sub.AccountID,
			FiscalYear:       sub.FiscalYear,
			Status:           sub.Status,
			ReceiptLimit:     sub.ReceiptLimit,
			ReceiptCount:     sub.ReceiptCount,
			PaymentReference: paymentRef,
			ChangedAt:        now,
		},
	})
}

func validateTarget(accountID uuid.UUID, fiscalYear string) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if err := fiscal.Validate(fiscalYear); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fiscal year")
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
