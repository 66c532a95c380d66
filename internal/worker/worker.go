package worker

import (
	"context"
	"time"

	"github.com/sogshop/storefront/internal/logger"
	"github.com/sogshop/storefront/internal/models"
)

const (
	sweepInterval = 30 * time.Second
	gracePeriod   = 5 * time.Minute
	queueSize     = 10
)

// SettlementService feeds and settles orders still awaiting payment
type SettlementService interface {
	CollectPending(ctx context.Context, gracePeriod time.Duration, orderCh chan<- models.Order) error
	VerifyPending(ctx context.Context, orderCh <-chan models.Order)
}

// PaymentSweeper periodically re-verifies stale pending payments against the
// provider so orders whose webhook was lost still converge.
type PaymentSweeper struct {
	svc SettlementService
}

// NewPaymentSweeper creates new payment sweeper
func NewPaymentSweeper(svc SettlementService) *PaymentSweeper {
	return &PaymentSweeper{svc: svc}
}

// Run sweeps until the context is cancelled.
func (ps *PaymentSweeper) Run(ctx context.Context) {
	orders := make(chan models.Order, queueSize)

	go ps.svc.VerifyPending(ctx, orders)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Debug("payment sweeper is done")
			return
		case <-ticker.C:
			if err := ps.svc.CollectPending(ctx, gracePeriod, orders); err != nil {
				logger.Log.Error("error collecting pending payments")
			}
		}
	}
}
