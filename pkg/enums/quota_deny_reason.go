package enums

// QuotaDenyReason is returned alongside a rejected upload.
type QuotaDenyReason string

const (
	QuotaDenyTrialExpired          QuotaDenyReason = "trial_expired"
	QuotaDenyReceiptLimitReached   QuotaDenyReason = "receipt_limit_reached"
	QuotaDenySubscriptionCancelled QuotaDenyReason = "subscription_cancelled"
	QuotaDenySubscriptionExpired   QuotaDenyReason = "subscription_expired"
)

// Message returns the user-facing sentence for the reason.
func (r QuotaDenyReason) Message() string {
	switch r {
	case QuotaDenyTrialExpired:
		return "trial expired"
	case QuotaDenyReceiptLimitReached:
		return "receipt limit reached"
	case QuotaDenySubscriptionCancelled:
		return "subscription cancelled"
	case QuotaDenySubscriptionExpired:
		return "subscription expired"
	default:
		return "upload not allowed"
	}
}
