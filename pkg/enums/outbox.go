package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateReceipt      OutboxAggregateType = "receipt"
	AggregateSubscription OutboxAggregateType = "account_subscription"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateReceipt,
	AggregateSubscription,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventReceiptUploaded    OutboxEventType = "receipt_uploaded"
	EventReceiptCompleted   OutboxEventType = "receipt_completed"
	EventReceiptFailed      OutboxEventType = "receipt_failed"
	EventReceiptUpdated     OutboxEventType = "receipt_updated"
	EventReceiptDeleted     OutboxEventType = "receipt_deleted"
	EventQuotaActivated     OutboxEventType = "quota_activated"
	EventReceiptPackApplied OutboxEventType = "receipt_pack_applied"
	EventQuotaCanceled      OutboxEventType = "quota_canceled"
	EventTrialExpired       OutboxEventType = "trial_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventReceiptUploaded,
	EventReceiptCompleted,
	EventReceiptFailed,
	EventReceiptUpdated,
	EventReceiptDeleted,
	EventQuotaActivated,
	EventReceiptPackApplied,
	EventQuotaCanceled,
	EventTrialExpired,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
