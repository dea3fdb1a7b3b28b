package enums

import (
	"fmt"
	"strings"
)

// FuelType selects the tax rate series a receipt is priced against.
type FuelType string

const (
	FuelTypeGasoline FuelType = "gasoline"
	FuelTypeDiesel   FuelType = "diesel"
)

var validFuelTypes = []FuelType{
	FuelTypeGasoline,
	FuelTypeDiesel,
}

// String implements fmt.Stringer.
func (f FuelType) String() string {
	return string(f)
}

// IsValid reports whether the value is known.
func (f FuelType) IsValid() bool {
	for _, candidate := range validFuelTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFuelType converts raw input into a FuelType, ignoring case.
func ParseFuelType(value string) (FuelType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validFuelTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fuel type %q", value)
}
