package enums

import (
	"fmt"
	"strings"
)

// PurchaseType distinguishes what a completed checkout bought.
type PurchaseType string

const (
	PurchaseTypePlan        PurchaseType = "plan"
	PurchaseTypeReceiptPack PurchaseType = "receipt_pack"
)

// ParsePurchaseType converts checkout metadata into a PurchaseType.
func ParsePurchaseType(value string) (PurchaseType, error) {
	switch PurchaseType(strings.ToLower(strings.TrimSpace(value))) {
	case PurchaseTypePlan:
		return PurchaseTypePlan, nil
	case PurchaseTypeReceiptPack:
		return PurchaseTypeReceiptPack, nil
	default:
		return "", fmt.Errorf("invalid purchase type %q", value)
	}
}
