package enums

import "fmt"

// QuoteStatus describes how a vendor shipping fee was obtained.
type QuoteStatus string

const (
	QuoteStatusSkipped  QuoteStatus = "skipped"
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusQuoted   QuoteStatus = "quoted"
	QuoteStatusFallback QuoteStatus = "fallback"
)

var validQuoteStatuses = []QuoteStatus{
	QuoteStatusSkipped,
	QuoteStatusPending,
	QuoteStatusQuoted,
	QuoteStatusFallback,
}

// String implements fmt.Stringer.
func (v QuoteStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known QuoteStatus.
func (v QuoteStatus) IsValid() bool {
	for _, candidate := range validQuoteStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseQuoteStatus converts raw input into a QuoteStatus.
func ParseQuoteStatus(value string) (QuoteStatus, error) {
	for _, candidate := range validQuoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote status %q", value)
}
