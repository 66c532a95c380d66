package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sogshop/storefront/internal/logger"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/payment"
	"go.uber.org/zap"
)

const verifyTimeout = 10 * time.Second

// ReconcilerOrderStore is the order persistence the reconciler needs
type ReconcilerOrderStore interface {
	GetOrderByStripeSession(ctx context.Context, sessionID string) (*models.Order, error)
	GetOrderByPaystackReference(ctx context.Context, reference string) (*models.Order, error)
	GetOrderByMobileMoneyTxn(ctx context.Context, txnID string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// MarkPaymentCompleted flips PENDING -> COMPLETED at most once
	MarkPaymentCompleted(ctx context.Context, id uuid.UUID, providerTxnID *string) error
	// MarkPaymentFailed records a terminal failure, never regressing COMPLETED
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) error
	// GetPendingPaymentOrders feeds the settlement sweeper
	GetPendingPaymentOrders(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// PromoCounter increments promo usage counters
type PromoCounter interface {
	IncrementPromoUsage(ctx context.Context, code string) error
}

// Notifier dispatches order notifications. Implementations never return
// errors into the reconciler.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *models.Order)
}

// Reconciler maps asynchronous provider notifications back onto orders and
// transitions payment state exactly once.
type Reconciler struct {
	orders   ReconcilerOrderStore
	promos   PromoCounter
	notifier Notifier
	gateways payment.Registry
}

// NewReconciler creates new Reconciler instance
func NewReconciler(orders ReconcilerOrderStore, promos PromoCounter, notifier Notifier, gateways payment.Registry) *Reconciler {
	return &Reconciler{
		orders:   orders,
		promos:   promos,
		notifier: notifier,
		gateways: gateways,
	}
}

// ConfirmByReference marks the order behind a provider reference as paid.
// Unknown references and replayed notifications are logged and swallowed:
// providers retry aggressively on non-2xx responses.
func (r *Reconciler) ConfirmByReference(ctx context.Context, method models.PaymentMethod, reference string, providerTxnID string) error {
	order, err := r.lookup(ctx, method, reference)
	if err != nil {
		if errors.Is(err, models.ErrDataNotFound) {
			logger.Log.Warn("payment notification for unknown reference",
				zap.String("method", string(method)), zap.String("reference", reference))
			return nil
		}
		return err
	}

	var txnID *string
	if providerTxnID != "" {
		txnID = &providerTxnID
	}

	if err := r.orders.MarkPaymentCompleted(ctx, order.ID, txnID); err != nil {
		if errors.Is(err, models.ErrAlreadyProcessed) {
			logger.Log.Debug("replayed payment notification ignored",
				zap.String("order", order.Number))
			return nil
		}
		return err
	}

	logger.Log.Info("payment completed",
		zap.String("order", order.Number), zap.String("method", string(method)))

	// side effects after the transition won the conditional update run at
	// most once per order; both are non-fatal
	if order.PromoCode != nil {
		if err := r.promos.IncrementPromoUsage(ctx, *order.PromoCode); err != nil {
			logger.Log.Error("promo usage increment failed",
				zap.String("order", order.Number), zap.String("code", *order.PromoCode), zap.Error(err))
		}
	}

	if confirmed, err := r.orders.GetOrderByID(ctx, order.ID); err == nil {
		r.notifier.OrderConfirmed(ctx, confirmed)
	} else {
		logger.Log.Error("load confirmed order for notification",
			zap.String("order", order.Number), zap.Error(err))
	}

	return nil
}

// FailByReference records a terminal payment failure. A late failure arriving
// after completion is ignored.
func (r *Reconciler) FailByReference(ctx context.Context, method models.PaymentMethod, reference string) error {
	order, err := r.lookup(ctx, method, reference)
	if err != nil {
		if errors.Is(err, models.ErrDataNotFound) {
			logger.Log.Warn("payment failure notification for unknown reference",
				zap.String("method", string(method)), zap.String("reference", reference))
			return nil
		}
		return err
	}

	if err := r.orders.MarkPaymentFailed(ctx, order.ID); err != nil {
		if errors.Is(err, models.ErrAlreadyProcessed) {
			logger.Log.Debug("failure notification after terminal state ignored",
				zap.String("order", order.Number))
			return nil
		}
		return err
	}

	logger.Log.Info("payment failed",
		zap.String("order", order.Number), zap.String("method", string(method)))
	return nil
}

// CollectPending writes orders still awaiting settlement to the channel.
func (r *Reconciler) CollectPending(ctx context.Context, gracePeriod time.Duration, orderCh chan<- models.Order) error {
	orders, err := r.orders.GetPendingPaymentOrders(ctx, time.Now().Add(-gracePeriod))
	if err != nil {
		return err
	}

	for _, order := range orders {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case orderCh <- order:
		}
	}

	return nil
}

// VerifyPending consumes orders from the channel and settles them against the
// provider's verify endpoint. A verify timeout or a still-pending answer
// leaves the order untouched.
func (r *Reconciler) VerifyPending(ctx context.Context, orderCh <-chan models.Order) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Debug("payment verification is done")
			return
		case order, ok := <-orderCh:
			if !ok {
				return
			}
			r.verifyOrder(ctx, order)
		}
	}
}

func (r *Reconciler) verifyOrder(ctx context.Context, order models.Order) {
	gw, err := r.gateways.For(order.PaymentMethod)
	if err != nil {
		logger.Log.Error("no gateway for pending order",
			zap.String("order", order.Number), zap.Error(err))
		return
	}

	reference := order.ProviderReference()
	if reference == "" {
		logger.Log.Warn("pending order without provider reference",
			zap.String("order", order.Number))
		return
	}

	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	res, err := gw.Verify(verifyCtx, reference)
	if err != nil {
		logger.Log.Debug("verify request failed",
			zap.String("order", order.Number), zap.Error(err))
		return
	}

	switch {
	case res.Succeeded:
		if err := r.ConfirmByReference(ctx, order.PaymentMethod, reference, res.ProviderTxnID); err != nil {
			logger.Log.Error("confirm after verify", zap.String("order", order.Number), zap.Error(err))
		}
	case !res.Pending:
		if err := r.FailByReference(ctx, order.PaymentMethod, reference); err != nil {
			logger.Log.Error("fail after verify", zap.String("order", order.Number), zap.Error(err))
		}
	}
}

func (r *Reconciler) lookup(ctx context.Context, method models.PaymentMethod, reference string) (*models.Order, error) {
	switch method {
	case models.PaymentMethodStripe:
		return r.orders.GetOrderByStripeSession(ctx, reference)
	case models.PaymentMethodPaystack:
		return r.orders.GetOrderByPaystackReference(ctx, reference)
	case models.PaymentMethodMobileMoney:
		return r.orders.GetOrderByMobileMoneyTxn(ctx, reference)
	}
	return nil, models.ErrUnknownPaymentMethod
}
