package webhooks

import (
	"io"
	"net/http"

	"github.com/angelmondragon/eventpass-backend/api/responses"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/paystack"
)

const paystackSignatureHeader = "X-Paystack-Signature"

type paystackEventParser interface {
	ParseEvent(body []byte, signature string) (*paystack.Event, error)
}

// PaystackWebhook applies charge.success deliveries to the matching checkout.
// Other event types are acknowledged and ignored.
func PaystackWebhook(svc outcomeHandler, client paystackEventParser, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paystack client unavailable"))
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

		signature := r.Header.Get(paystackSignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paystack signature missing"))
			return
		}

		event, err := client.ParseEvent(payload, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, ok := payments.OutcomeFromPaystackEvent(event)
		if !ok {
			responses.WriteSuccess(w, nil)
			return
		}

		deliveryID := event.Event + ":" + event.Data.Reference
		seen, err := guard.CheckAndMark(ctx, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook guard"))
			return
		}
		if seen {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleWebhookOutcome(ctx, outcome); err != nil {
			_ = guard.Release(ctx, deliveryID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithPaymentReference(ctx, "paystack", outcome.Reference), "paystack webhook processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
