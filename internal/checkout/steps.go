package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/angelmondragon/eventpass-backend/internal/cart"
	"github.com/angelmondragon/eventpass-backend/internal/shipping"
	"github.com/angelmondragon/eventpass-backend/pkg/checkout"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/google/uuid"
)

// stepOrder is the linear flow. success is reachable only through finalize.
var stepOrder = []enums.CheckoutStep{
	enums.CheckoutStepTickets,
	enums.CheckoutStepMerch,
	enums.CheckoutStepContact,
	enums.CheckoutStepPay,
	enums.CheckoutStepSuccess,
}

func stepIndex(step enums.CheckoutStep) int {
	for i, s := range stepOrder {
		if s == step {
			return i
		}
	}
	return -1
}

// StepState is the completeness of one step.
type StepState struct {
	Step      enums.CheckoutStep `json:"step"`
	Complete  bool               `json:"complete"`
	Reachable bool               `json:"reachable"`
}

// Evaluation is what the client renders: per-step completeness, the pay
// button state (disabled, never hidden) and what is still missing.
type Evaluation struct {
	Current       enums.CheckoutStep      `json:"current"`
	Steps         []StepState             `json:"steps"`
	PayCTAEnabled bool                    `json:"payCtaEnabled"`
	Missing       []checkout.MissingField `json:"missing"`
}

// StepController gates navigation through the checkout steps.
type StepController struct{}

func readiness(c *cart.Cart) checkout.Readiness {
	return checkout.Readiness{
		Email:          c.Contact.Email,
		Phone:          c.Contact.Phone,
		TermsAccepted:  c.TermsAccepted,
		HasMerch:       c.HasMerch(),
		ShippingMethod: string(c.Shipping.Method),
		State:          c.Shipping.DestinationState(),
		City:           c.Shipping.DestinationCity(),
	}
}

// IsComplete applies the step predicate to the cart.
func (StepController) IsComplete(step enums.CheckoutStep, c *cart.Cart) bool {
	switch step {
	case enums.CheckoutStepTickets:
		return c.HasTickets()
	case enums.CheckoutStepMerch:
		return true
	case enums.CheckoutStepContact:
		return len(checkout.MissingContactFields(readiness(c))) == 0
	case enums.CheckoutStepPay:
		return PayCTAEnabled(c)
	default:
		return false
	}
}

// PayCTAEnabled is false when email or phone is missing, terms are not
// accepted, or the cart has merch with incomplete shipping.
func PayCTAEnabled(c *cart.Cart) bool {
	return len(checkout.MissingPayFields(readiness(c))) == 0
}

// Evaluate reports the state of every step for s.
func (sc StepController) Evaluate(s *Session) Evaluation {
	current := stepIndex(s.Step)
	steps := make([]StepState, 0, len(stepOrder))
	prefixComplete := true
	for i, step := range stepOrder {
		state := StepState{Step: step}
		if step == enums.CheckoutStepSuccess {
			state.Complete = s.Completed()
			state.Reachable = s.Completed()
		} else {
			state.Complete = sc.IsComplete(step, &s.Cart)
			state.Reachable = !s.Completed() && (i <= current || (i == current+1 && prefixComplete))
		}
		if i <= current {
			prefixComplete = prefixComplete && state.Complete
		}
		steps = append(steps, state)
	}

	missing := checkout.MissingPayFields(readiness(&s.Cart))
	if len(missing) == 0 && shippingQuoting(s) {
		missing = append(missing, checkout.MissingField{Field: "shipping.quote", Reason: "still being calculated"})
	}
	if missing == nil {
		missing = []checkout.MissingField{}
	}
	return Evaluation{
		Current:       s.Step,
		Steps:         steps,
		PayCTAEnabled: !s.Completed() && len(missing) == 0,
		Missing:       missing,
	}
}

// shippingQuoting reports merch whose shipping quotes have not landed yet.
func shippingQuoting(s *Session) bool {
	if !s.Cart.HasMerch() {
		return false
	}
	_, settled := shipping.CalculateTotalShippingFee(s.Shipping)
	return !settled || len(s.Shipping) == 0
}

// CanMoveTo checks a transition from the session's current step. Backward
// moves are always allowed; forward moves go one step at a time and only
// when every step up to the current one is complete. success is terminal.
func (sc StepController) CanMoveTo(s *Session, target enums.CheckoutStep) error {
	from, to := stepIndex(s.Step), stepIndex(target)
	if to < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown checkout step %q", target))
	}
	if s.Step == enums.CheckoutStepSuccess {
		if target == enums.CheckoutStepSuccess {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed")
	}
	if target == enums.CheckoutStepSuccess {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "success is reached only by completing payment")
	}
	if to <= from {
		return nil
	}
	if to > from+1 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout steps cannot be skipped").
			WithDetails(map[string]any{"current": s.Step, "target": target})
	}
	for _, step := range stepOrder[:from+1] {
		if !sc.IsComplete(step, &s.Cart) {
			details := map[string]any{"incompleteStep": step}
			if step == enums.CheckoutStepContact || step == enums.CheckoutStepPay {
				details["missing"] = checkout.MissingContactFields(readiness(&s.Cart))
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("complete the %s step first", step)).WithDetails(details)
		}
	}
	return nil
}

// StepFromPath parses /checkout/{eventId}/{step}. A path without a step
// segment maps to tickets.
func StepFromPath(path string) (uuid.UUID, enums.CheckoutStep, error) {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "checkout" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "path must look like /checkout/{eventId}/{step}")
	}
	eventID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "path carries an invalid event id")
	}
	if len(parts) == 2 || parts[2] == "" {
		return eventID, enums.CheckoutStepTickets, nil
	}
	step, err := enums.ParseCheckoutStep(parts[2])
	if err != nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return eventID, step, nil
}
