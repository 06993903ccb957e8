package payments

import "github.com/angelmondragon/eventpass-backend/pkg/enums"

// Outcome is the tagged result of a payment session. Only Success carries an
// amount; only Failed carries a message.
type Outcome struct {
	Kind        enums.PaymentOutcome  `json:"kind"`
	Provider    enums.PaymentProvider `json:"provider"`
	Reference   string                `json:"reference"`
	AmountMinor int64                 `json:"amountMinor,omitempty"`
	Currency    enums.Currency        `json:"currency,omitempty"`
	Message     string                `json:"message,omitempty"`
	SessionID   string                `json:"sessionId,omitempty"`
}

func Success(provider enums.PaymentProvider, reference string, amountMinor int64, currency enums.Currency) Outcome {
	return Outcome{Kind: enums.PaymentOutcomeSuccess, Provider: provider, Reference: reference, AmountMinor: amountMinor, Currency: currency}
}

func Cancelled(provider enums.PaymentProvider, reference string) Outcome {
	return Outcome{Kind: enums.PaymentOutcomeCancelled, Provider: provider, Reference: reference}
}

func Failed(provider enums.PaymentProvider, reference, message string) Outcome {
	if message == "" {
		message = "payment failed"
	}
	return Outcome{Kind: enums.PaymentOutcomeFailed, Provider: provider, Reference: reference, Message: message}
}

func Pending(provider enums.PaymentProvider, reference string) Outcome {
	return Outcome{Kind: enums.PaymentOutcomePending, Provider: provider, Reference: reference}
}

// Terminal reports whether the session has settled.
func (o Outcome) Terminal() bool {
	return o.Kind == enums.PaymentOutcomeSuccess || o.Kind == enums.PaymentOutcomeCancelled || o.Kind == enums.PaymentOutcomeFailed
}

// OutcomeHandler receives exactly one callback per terminal outcome.
type OutcomeHandler struct {
	OnSuccess   func(Outcome) error
	OnCancelled func(Outcome) error
	OnFailed    func(Outcome) error
	OnPending   func(Outcome) error
}

// Dispatch routes o to its handler. A nil handler is a no-op.
func (o Outcome) Dispatch(h OutcomeHandler) error {
	var fn func(Outcome) error
	switch o.Kind {
	case enums.PaymentOutcomeSuccess:
		fn = h.OnSuccess
	case enums.PaymentOutcomeCancelled:
		fn = h.OnCancelled
	case enums.PaymentOutcomeFailed:
		fn = h.OnFailed
	case enums.PaymentOutcomePending:
		fn = h.OnPending
	}
	if fn == nil {
		return nil
	}
	return fn(o)
}
