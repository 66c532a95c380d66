package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sogshop/storefront/internal/logger"
	"github.com/sogshop/storefront/internal/models"
	"go.uber.org/zap"
)

// Dispatcher sends the customer confirmation and admin alert for a confirmed
// payment. Failures are logged and never propagated: the order's payment
// state is final regardless of whether the email went out.
type Dispatcher struct {
	mailer     Mailer
	adminEmail string
}

// NewDispatcher creates new Dispatcher instance
func NewDispatcher(mailer Mailer, adminEmail string) *Dispatcher {
	return &Dispatcher{
		mailer:     mailer,
		adminEmail: adminEmail,
	}
}

// OrderConfirmed sends both emails for a paid order.
func (d *Dispatcher) OrderConfirmed(ctx context.Context, order *models.Order) {
	subject := fmt.Sprintf("Order %s confirmed", order.Number)
	if err := d.mailer.Send(ctx, order.Email, subject, customerHTML(order)); err != nil {
		logger.Log.Error("customer confirmation email failed",
			zap.String("order", order.Number), zap.Error(err))
	}

	adminSubject := fmt.Sprintf("New paid order %s", order.Number)
	if err := d.mailer.Send(ctx, d.adminEmail, adminSubject, adminHTML(order)); err != nil {
		logger.Log.Error("admin alert email failed",
			zap.String("order", order.Number), zap.Error(err))
	}
}

func customerHTML(order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Thank you for your order</h1>")
	fmt.Fprintf(&b, "<p>Order <strong>%s</strong> has been confirmed.</p><ul>", order.Number)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<li>%s x%d — %s</li>", item.Name, item.Quantity, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "</ul><p>Total: %s</p>", order.TotalAmount.StringFixed(2))
	return b.String()
}

func adminHTML(order *models.Order) string {
	return fmt.Sprintf("<p>Order %s paid via %s, total %s, customer %s.</p>",
		order.Number, order.PaymentMethod, order.TotalAmount.StringFixed(2), order.Email)
}
