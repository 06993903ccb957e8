package webhooks

import (
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/eventpass-backend/api/responses"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook applies payment_intent deliveries to the matching checkout.
func StripeWebhook(svc outcomeHandler, client stripeClient, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		outcome, ok, err := payments.OutcomeFromStripeEvent(&event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !ok {
			responses.WriteSuccess(w, nil)
			return
		}

		seen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook guard"))
			return
		}
		if seen {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleWebhookOutcome(ctx, outcome); err != nil {
			_ = guard.Release(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}
