package orders

import (
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/google/uuid"
)

type OrderDTO struct {
	ID               uuid.UUID             `json:"id"`
	EventID          uuid.UUID             `json:"eventId"`
	BuyerUserID      *uuid.UUID            `json:"buyerUserId"`
	DeliverTo        DeliverToDTO          `json:"deliverTo"`
	Provider         enums.PaymentProvider `json:"provider"`
	ProviderRef      ProviderRef           `json:"providerRef"`
	Currency         enums.Currency        `json:"currency"`
	LineItems        []models.OrderLine    `json:"lineItems"`
	ClientTotals     models.OrderTotals    `json:"clientTotals"`
	SubtotalMinor    int64                 `json:"itemsSubtotalMinor"`
	BuyerFeesMinor   int64                 `json:"buyerFeesMinor"`
	ShippingFeeMinor int64                 `json:"shippingFeeMinor"`
	TotalDueMinor    int64                 `json:"totalDueMinor"`
	Status           enums.OrderStatus     `json:"status"`
	FulfillmentLines []FulfillmentLineDTO  `json:"fulfillmentLines"`
	CreatedAt        time.Time             `json:"createdAt"`
}

type DeliverToDTO struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

type FulfillmentLineDTO struct {
	ID       uuid.UUID               `json:"id"`
	OrderID  uuid.UUID               `json:"orderId"`
	LineKey  string                  `json:"lineKey"`
	VendorID string                  `json:"vendorId"`
	Qty      int                     `json:"qty"`
	Status   enums.FulfillmentStatus `json:"status"`
}

func mapOrder(o *models.Order) OrderDTO {
	lines := make([]FulfillmentLineDTO, 0, len(o.FulfillmentLines))
	for _, l := range o.FulfillmentLines {
		lines = append(lines, mapFulfillmentLine(l))
	}
	return OrderDTO{
		ID:          o.ID,
		EventID:     o.EventID,
		BuyerUserID: o.BuyerUserID,
		DeliverTo: DeliverToDTO{
			Email: o.DeliverToEmail,
			Phone: o.DeliverToPhone,
			Name:  o.DeliverToName,
		},
		Provider:         o.Provider,
		ProviderRef:      ProviderRef{InitRef: o.ProviderInitRef, VerifyRef: o.ProviderVerifyRef},
		Currency:         o.Currency,
		LineItems:        o.LineItems,
		ClientTotals:     o.ClientTotals,
		SubtotalMinor:    o.SubtotalMinor,
		BuyerFeesMinor:   o.BuyerFeesMinor,
		ShippingFeeMinor: o.ShippingFeeMinor,
		TotalDueMinor:    o.TotalDueMinor,
		Status:           o.Status,
		FulfillmentLines: lines,
		CreatedAt:        o.CreatedAt,
	}
}

func mapFulfillmentLine(l models.FulfillmentLine) FulfillmentLineDTO {
	return FulfillmentLineDTO{
		ID:       l.ID,
		OrderID:  l.OrderID,
		LineKey:  l.LineKey,
		VendorID: l.VendorID,
		Qty:      l.Qty,
		Status:   l.Status,
	}
}
