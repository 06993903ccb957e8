package enums

import "fmt"

// FeeBearer records who pays the platform fee on a line.
type FeeBearer string

const (
	FeeBearerBuyer  FeeBearer = "buyer"
	FeeBearerVendor FeeBearer = "vendor"
	FeeBearerNone   FeeBearer = "none"
)

var validFeeBearers = []FeeBearer{
	FeeBearerBuyer,
	FeeBearerVendor,
	FeeBearerNone,
}

// String implements fmt.Stringer.
func (v FeeBearer) String() string {
	return string(v)
}

// IsValid reports whether the value is a known FeeBearer.
func (v FeeBearer) IsValid() bool {
	for _, candidate := range validFeeBearers {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseFeeBearer converts raw input into a FeeBearer.
func ParseFeeBearer(value string) (FeeBearer, error) {
	for _, candidate := range validFeeBearers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fee bearer %q", value)
}
