package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/api/responses"
	"github.com/angelmondragon/eventpass-backend/api/validators"
	internalorders "github.com/angelmondragon/eventpass-backend/internal/orders"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

type ordersService interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*internalorders.OrderDTO, error)
	UpdateFulfillmentStatus(ctx context.Context, orderID, lineID uuid.UUID, next enums.FulfillmentStatus) (*internalorders.FulfillmentLineDTO, error)
}

type fulfillmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=unfulfilled shipped delivered cancelled"`
}

// Detail returns a finalized order with its fulfillment lines.
func Detail(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// UpdateFulfillment moves one vendor line through its fulfillment states.
func UpdateFulfillment(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lineID, err := parseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload fulfillmentStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseFulfillmentStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fulfillment status"))
			return
		}

		line, err := svc.UpdateFulfillmentStatus(r.Context(), orderID, lineID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, line)
	}
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
