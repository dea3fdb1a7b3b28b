package quota

import (
	"math"
	"time"

	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed      bool
	Reason       enums.QuotaDenyReason
	Subscription *models.AccountSubscription
}

func allow(sub *models.AccountSubscription) Decision {
	return Decision{Allowed: true, Subscription: sub}
}

func deny(sub *models.AccountSubscription, reason enums.QuotaDenyReason) Decision {
	return Decision{Reason: reason, Subscription: sub}
}

// evaluate applies the quota state machine to an existing row.
func evaluate(sub *models.AccountSubscription, now time.Time) Decision {
	switch sub.Status {
	case enums.SubscriptionStatusCanceled:
		return deny(sub, enums.QuotaDenySubscriptionCancelled)
	case enums.SubscriptionStatusExpired:
		if sub.ActivatedAt == nil {
			return deny(sub, enums.QuotaDenyTrialExpired)
		}
		return deny(sub, enums.QuotaDenySubscriptionExpired)
	case enums.SubscriptionStatusTrial:
		if !now.Before(sub.TrialEndsAt) {
			return deny(sub, enums.QuotaDenyTrialExpired)
		}
	}
	if sub.ReceiptCount >= sub.ReceiptLimit {
		return deny(sub, enums.QuotaDenyReceiptLimitReached)
	}
	return allow(sub)
}

// trialDaysRemaining rounds partial days up and never goes negative.
func trialDaysRemaining(sub *models.AccountSubscription, now time.Time) int {
	if sub.Status != enums.SubscriptionStatusTrial {
		return 0
	}
	left := sub.TrialEndsAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
