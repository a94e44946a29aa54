// Package notify delivers order status notifications. The current
// implementation writes structured log lines; a real channel (email, push)
// can replace it behind the same interface.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/solemart/storefront/internal/domain/order"
)

var _ order.Notifier = (*LogNotifier)(nil)

// LogNotifier logs status changes instead of delivering them.
type LogNotifier struct{}

// NewLogNotifier returns a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// OrderStatusChanged logs the committed transition.
func (n *LogNotifier) OrderStatusChanged(ctx context.Context, change order.StatusChange) error {
	fields := []zap.Field{
		zap.String("order_id", change.OrderID),
		zap.String("user_id", change.UserID),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)),
		zap.String("total", change.Total.StringFixed(2)),
		zap.String("currency", change.Currency),
	}
	if change.ShippingProvider != nil {
		fields = append(fields, zap.String("shipping_provider", *change.ShippingProvider))
	}
	if change.ShippingTracking != nil {
		fields = append(fields, zap.String("shipping_tracking", *change.ShippingTracking))
	}
	zctx.From(ctx).Info("order status changed", fields...)
	return nil
}
