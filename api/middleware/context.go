package middleware

import "context"

type contextKey string

const ctxBuyerID contextKey = "buyer_user_id"

// BuyerIDFromContext returns the signed-in buyer, empty for guest checkouts.
func BuyerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxBuyerID).(string); ok {
		return v
	}
	return ""
}

// WithBuyerID injects the buyer identifier into the context.
func WithBuyerID(ctx context.Context, buyerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxBuyerID, buyerID)
}
