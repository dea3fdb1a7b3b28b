package enums

// RefundReason explains why a receipt did or did not earn a refund.
type RefundReason string

const (
	RefundReasonEligible     RefundReason = "eligible"
	RefundReasonNotCompleted RefundReason = "not_completed"
	RefundReasonOutOfState   RefundReason = "out_of_state"
	RefundReasonParseError   RefundReason = "parse_error"
	RefundReasonNoRate       RefundReason = "no_rate"
)

var validRefundReasons = []RefundReason{
	RefundReasonEligible,
	RefundReasonNotCompleted,
	RefundReasonOutOfState,
	RefundReasonParseError,
	RefundReasonNoRate,
}

// String implements fmt.Stringer.
func (r RefundReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundReason.
func (r RefundReason) IsValid() bool {
	for _, candidate := range validRefundReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
