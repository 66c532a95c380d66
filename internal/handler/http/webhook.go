package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sogshop/storefront/internal/logger"
	"github.com/sogshop/storefront/internal/middleware"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/payment"
	"go.uber.org/zap"
)

const (
	maxWebhookBody           = 1 << 20
	stripeSignatureTolerance = 5 * time.Minute
)

// Reconciler transitions order payment state from provider notifications
type Reconciler interface {
	ConfirmByReference(ctx context.Context, method models.PaymentMethod, reference string, providerTxnID string) error
	FailByReference(ctx context.Context, method models.PaymentMethod, reference string) error
}

// WebhookSecrets holds the per-provider signing secrets.
type WebhookSecrets struct {
	Stripe      string
	Paystack    string
	MobileMoney string
}

// WebhookHandler represents HTTP handler for payment provider notifications.
// Signature mismatches are rejected with 4xx; notifications for unknown
// orders are acknowledged with 2xx so the provider stops retrying.
type WebhookHandler struct {
	reconciler Reconciler
	secrets    WebhookSecrets
}

// NewWebhookHandler creates new WebhookHandler instance
func NewWebhookHandler(reconciler Reconciler, secrets WebhookSecrets) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, secrets: secrets}
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// Stripe handles Stripe checkout session events
func (wh *WebhookHandler) Stripe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if err := payment.VerifyStripeSignature(body, r.Header.Get("Stripe-Signature"), wh.secrets.Stripe, stripeSignatureTolerance, time.Now()); err != nil {
			middleware.RecordWebhook("stripe", "bad_signature")
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}

		event := stripeEvent{}
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var reconcileErr error
		switch event.Type {
		case "checkout.session.completed", "checkout.session.async_payment_succeeded":
			reconcileErr = wh.reconciler.ConfirmByReference(r.Context(), models.PaymentMethodStripe,
				event.Data.Object.ID, event.Data.Object.PaymentIntent)
		case "checkout.session.expired", "checkout.session.async_payment_failed":
			reconcileErr = wh.reconciler.FailByReference(r.Context(), models.PaymentMethodStripe, event.Data.Object.ID)
		default:
			logger.Log.Debug("ignoring stripe event", zap.String("type", event.Type))
		}

		wh.finish(w, "stripe", reconcileErr)
	}
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		ID        int64  `json:"id"`
		Status    string `json:"status"`
	} `json:"data"`
}

// Paystack handles Paystack charge events
func (wh *WebhookHandler) Paystack() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if err := payment.VerifyPaystackSignature(body, r.Header.Get("x-paystack-signature"), wh.secrets.Paystack); err != nil {
			middleware.RecordWebhook("paystack", "bad_signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		event := paystackEvent{}
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var reconcileErr error
		switch event.Event {
		case "charge.success":
			var txnID string
			if event.Data.ID != 0 {
				txnID = strconv.FormatInt(event.Data.ID, 10)
			}
			reconcileErr = wh.reconciler.ConfirmByReference(r.Context(), models.PaymentMethodPaystack,
				event.Data.Reference, txnID)
		case "charge.failed":
			reconcileErr = wh.reconciler.FailByReference(r.Context(), models.PaymentMethodPaystack, event.Data.Reference)
		default:
			logger.Log.Debug("ignoring paystack event", zap.String("event", event.Event))
		}

		wh.finish(w, "paystack", reconcileErr)
	}
}

type mobileMoneyEvent struct {
	ExternalID string `json:"external_id"`
	ProviderID string `json:"provider_id"`
	Status     string `json:"status"`
}

// MobileMoney handles mobile money aggregator callbacks
func (wh *WebhookHandler) MobileMoney() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := payment.VerifySharedSecret(r.Header.Get("X-Webhook-Token"), wh.secrets.MobileMoney); err != nil {
			middleware.RecordWebhook("mobile-money", "bad_signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		event := mobileMoneyEvent{}
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var reconcileErr error
		switch event.Status {
		case "SUCCESSFUL":
			reconcileErr = wh.reconciler.ConfirmByReference(r.Context(), models.PaymentMethodMobileMoney,
				event.ExternalID, event.ProviderID)
		case "FAILED", "EXPIRED":
			reconcileErr = wh.reconciler.FailByReference(r.Context(), models.PaymentMethodMobileMoney, event.ExternalID)
		default:
			logger.Log.Debug("ignoring mobile money status", zap.String("status", event.Status))
		}

		wh.finish(w, "mobile-money", reconcileErr)
	}
}

// finish acknowledges the delivery. Only storage-level errors return 500 so
// the provider retries; everything else is a 200 even when nothing matched.
func (wh *WebhookHandler) finish(w http.ResponseWriter, provider string, err error) {
	if err != nil {
		middleware.RecordWebhook(provider, "error")
		logger.Log.Error("webhook reconciliation failed", zap.String("provider", provider), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	middleware.RecordWebhook(provider, "accepted")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}
