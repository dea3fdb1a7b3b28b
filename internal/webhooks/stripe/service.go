package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/angelmondragon/fueltax-backend/internal/quota"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fueltax-backend/pkg/errors"
	"github.com/angelmondragon/fueltax-backend/pkg/fiscal"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

const provider = "stripe"

// Checkout metadata keys set when the session is created.
const (
	metaAccountID    = "account_id"
	metaFiscalYear   = "fiscal_year"
	metaPurchaseType = "purchase_type"
	metaPackSize     = "pack_size"
)

type billingApplier interface {
	ApplyPurchase(ctx context.Context, input quota.PurchaseCompleted) (bool, error)
	ApplyPack(ctx context.Context, input quota.PackPurchased) (bool, error)
	Cancel(ctx context.Context, input quota.SubscriptionCanceled) (bool, error)
}

type ServiceParams struct {
	Quota  billingApplier
	Logger *logger.Logger
}

type Service struct {
	quota billingApplier
	logg  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Quota == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "quota service required")
	}
	return &Service{quota: params.Quota, logg: params.Logger}, nil
}

// HandleEvent applies checkout and subscription events to the quota. Events
// whose metadata cannot be resolved are logged and acknowledged.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	ref := quota.BillingRef{
		Provider:  provider,
		EventID:   event.ID,
		EventType: string(event.Type),
		Payload:   event.Data.Raw,
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session")
		}
		return s.checkoutCompleted(ctx, ref, &session)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription")
		}
		return s.subscriptionDeleted(ctx, ref, &sub)
	default:
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, ref quota.BillingRef, session *stripe.CheckoutSession) error {
	accountID, fiscalYear, err := target(session.Metadata)
	if err != nil {
		s.drop(ctx, ref, err)
		return nil
	}
	ctx = s.withAccount(ctx, accountID)

	purchase, err := enums.ParsePurchaseType(session.Metadata[metaPurchaseType])
	if err != nil {
		s.drop(ctx, ref, err)
		return nil
	}

	switch purchase {
	case enums.PurchaseTypePlan:
		applied, err := s.quota.ApplyPurchase(ctx, quota.PurchaseCompleted{
			Billing:          ref,
			AccountID:        accountID,
			FiscalYear:       fiscalYear,
			PaymentReference: session.ID,
		})
		if err != nil {
			return err
		}
		s.applied(ctx, ref, applied)
		return nil
	case enums.PurchaseTypeReceiptPack:
		size, err := strconv.Atoi(strings.TrimSpace(session.Metadata[metaPackSize]))
		if err != nil || size <= 0 {
			s.drop(ctx, ref, fmt.Errorf("invalid %s %q", metaPackSize, session.Metadata[metaPackSize]))
			return nil
		}
		applied, err := s.quota.ApplyPack(ctx, quota.PackPurchased{
			Billing:          ref,
			AccountID:        accountID,
			FiscalYear:       fiscalYear,
			ReceiptsAdded:    size,
			AmountMinor:      session.AmountTotal,
			PaymentReference: session.ID,
		})
		if err != nil {
			return err
		}
		s.applied(ctx, ref, applied)
		return nil
	default:
		s.drop(ctx, ref, fmt.Errorf("unhandled purchase type %q", purchase))
		return nil
	}
}

func (s *Service) subscriptionDeleted(ctx context.Context, ref quota.BillingRef, sub *stripe.Subscription) error {
	accountID, fiscalYear, err := target(sub.Metadata)
	if err != nil {
		s.drop(ctx, ref, err)
		return nil
	}
	ctx = s.withAccount(ctx, accountID)
	applied, err := s.quota.Cancel(ctx, quota.SubscriptionCanceled{
		Billing:    ref,
		AccountID:  accountID,
		FiscalYear: fiscalYear,
	})
	if err != nil {
		return err
	}
	s.applied(ctx, ref, applied)
	return nil
}

func target(metadata map[string]string) (uuid.UUID, string, error) {
	rawID := strings.TrimSpace(metadata[metaAccountID])
	if rawID == "" {
		return uuid.Nil, "", fmt.Errorf("%s metadata missing", metaAccountID)
	}
	accountID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid %s %q", metaAccountID, rawID)
	}
	fiscalYear := strings.TrimSpace(metadata[metaFiscalYear])
	if err := fiscal.Validate(fiscalYear); err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid %s %q", metaFiscalYear, fiscalYear)
	}
	return accountID, fiscalYear, nil
}

func (s *Service) withAccount(ctx context.Context, accountID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithAccountID(ctx, accountID.String())
}

func (s *Service) drop(ctx context.Context, ref quota.BillingRef, reason error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   ref.EventID,
		"stripe_event_type": ref.EventType,
		"reason":            reason.Error(),
	})
	s.logg.Warn(ctx, "stripe event dropped")
}

func (s *Service) applied(ctx context.Context, ref quota.BillingRef, applied bool) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   ref.EventID,
		"stripe_event_type": ref.EventType,
		"applied":           applied,
	})
	s.logg.Info(ctx, "stripe event applied to quota")
}
