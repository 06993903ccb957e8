package checkout

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/api/middleware"
	"github.com/angelmondragon/eventpass-backend/api/responses"
	"github.com/angelmondragon/eventpass-backend/api/validators"
	"github.com/angelmondragon/eventpass-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/eventpass-backend/internal/checkout"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

// Service is the checkout surface the handlers drive.
type Service interface {
	CreateSession(ctx context.Context, eventID uuid.UUID, buyerUserID *uuid.UUID) (*checkoutsvc.View, error)
	GetSession(ctx context.Context, id string) (*checkoutsvc.View, error)
	AddItem(ctx context.Context, id string, item cart.Item) (*checkoutsvc.View, error)
	UpdateItem(ctx context.Context, id, lineKey string, qty int) (*checkoutsvc.View, error)
	RemoveItem(ctx context.Context, id, lineKey string) (*checkoutsvc.View, error)
	UpdateContact(ctx context.Context, id string, contact cart.ContactInfo) (*checkoutsvc.View, error)
	UpdateShipping(ctx context.Context, id string, selection cart.ShippingSelection) (*checkoutsvc.View, error)
	SetTerms(ctx context.Context, id string, accepted bool) (*checkoutsvc.View, error)
	Navigate(ctx context.Context, id, path string) (*checkoutsvc.View, error)
	Pay(ctx context.Context, id string, provider enums.PaymentProvider) (*checkoutsvc.View, error)
	HandlePaymentResult(ctx context.Context, id string, result checkoutsvc.PaymentResult) (*checkoutsvc.View, error)
}

// CreateSession starts a checkout for the event in the body.
func CreateSession(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload createSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyer, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.CreateSession(r.Context(), payload.EventID, buyer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func GetSession(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		id, err := sessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetSession(r.Context(), id)
		writeView(r.Context(), logg, w, view, err)
	}
}

func AddItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), id, payload.toItem())
	})
}

func UpdateItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateItem(r.Context(), id, lineKeyParam(r), payload.Qty)
	})
}

func RemoveItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		return svc.RemoveItem(r.Context(), id, lineKeyParam(r))
	})
}

func UpdateContact(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload contactRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateContact(r.Context(), id, payload.toContact())
	})
}

func UpdateShipping(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload shippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateShipping(r.Context(), id, payload.toSelection())
	})
}

func SetTerms(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload termsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetTerms(r.Context(), id, *payload.Accepted)
	})
}

// Navigate moves the session to the step named by a checkout URL.
func Navigate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload navigateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Navigate(r.Context(), id, payload.Path)
	})
}

// Pay opens, or returns the already open, gateway session.
func Pay(svc Service, logg *logger.Logger) http.HandlerFunc {
	return withSession(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload payRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Pay(r.Context(), id, enums.PaymentProvider(payload.Provider))
	})
}

// PaymentResult records what the buyer saw on the gateway. While another
// request is finalizing the same payment the view is returned with 202.
func PaymentResult(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		id, err := sessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentResultRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.HandlePaymentResult(r.Context(), id, checkoutsvc.PaymentResult{
			Outcome:   enums.PaymentOutcome(payload.Outcome),
			Reference: strings.TrimSpace(payload.Reference),
			Message:   validators.SanitizeString(payload.Message, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if view.Finalize.State == enums.FinalizeStateFinalizing {
			responses.WriteSuccessStatus(w, http.StatusAccepted, view)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func withSession(svc Service, logg *logger.Logger, fn func(r *http.Request, id string) (*checkoutsvc.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		id, err := sessionIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := fn(r, id)
		writeView(r.Context(), logg, w, view, err)
	}
}

func writeView(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, view *checkoutsvc.View, err error) {
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, view)
}

func sessionIDParam(r *http.Request) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if _, err := uuid.Parse(raw); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout session id").
			WithDetails(map[string]any{"field": "sessionId"})
	}
	return raw, nil
}

func lineKeyParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "lineKey"))
}

func buyerFromContext(r *http.Request) (*uuid.UUID, error) {
	raw := middleware.BuyerIDFromContext(r.Context())
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid buyer id")
	}
	return &id, nil
}
