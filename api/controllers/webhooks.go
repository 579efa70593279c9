package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	stripesdk "github.com/stripe/stripe-go/v82"

	"github.com/kelolahq/kelola-backend/api/responses"
	midtranswh "github.com/kelolahq/kelola-backend/internal/webhooks/midtrans"
	pkgerrors "github.com/kelolahq/kelola-backend/pkg/errors"
	"github.com/kelolahq/kelola-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// MidtransVerifier authenticates notification payloads.
type MidtransVerifier interface {
	VerifySignature(orderID, statusCode, grossAmount, signatureKey string) bool
}

// MidtransNotificationHandler settles verified payment notifications.
type MidtransNotificationHandler interface {
	HandleNotification(ctx context.Context, notif midtranswh.Notification) error
}

// DeliveryGuard dedupes webhook redeliveries.
type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, orderID, transactionStatus string) (bool, error)
	Release(ctx context.Context, orderID, transactionStatus string) error
}

// MidtransWebhook handles POST /webhooks/midtrans. Midtrans retries any
// non-2xx response, so domain failures release the dedupe mark and surface
// an error status to request a redelivery.
func MidtransWebhook(verifier MidtransVerifier, guard DeliveryGuard, handler MidtransNotificationHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		var notif midtranswh.Notification
		if err := json.Unmarshal(body, &notif); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode midtrans notification"))
			return
		}

		ctx := logg.WithField(r.Context(), "order_id", notif.OrderID)

		if !verifier.VerifySignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, notif.SignatureKey) {
			logg.Warn(ctx, "midtrans webhook signature mismatch")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		fresh, err := guard.CheckAndMark(ctx, notif.OrderID, notif.TransactionStatus)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook dedupe guard unavailable; continuing")
		}
		if !fresh {
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		if err := handler.HandleNotification(ctx, notif); err != nil {
			if releaseErr := guard.Release(ctx, notif.OrderID, notif.TransactionStatus); releaseErr != nil {
				logg.Warn(logg.WithField(ctx, "error", releaseErr.Error()), "failed to release webhook dedupe mark")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// StripeEventConstructor verifies the webhook signature and parses the event.
type StripeEventConstructor interface {
	ConstructEvent(payload []byte, signature string) (stripesdk.Event, error)
}

// StripeEventHandler applies a verified Stripe event.
type StripeEventHandler interface {
	HandleEvent(ctx context.Context, event stripesdk.Event) error
}

// StripeWebhook handles POST /webhooks/stripe.
func StripeWebhook(constructor StripeEventConstructor, handler StripeEventHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		event, err := constructor.ConstructEvent(body, r.Header.Get("Stripe-Signature"))
		if err != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "stripe webhook signature rejected")
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		if err := handler.HandleEvent(r.Context(), event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
