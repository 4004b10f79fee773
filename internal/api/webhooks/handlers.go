// Package webhooks receives payment provider callbacks.
package webhooks

import (
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/booking"
	"github.com/courtbook/courtbook/internal/payments"
)

const maxWebhookBody = 64 * 1024

var (
	service  *booking.Service
	provider payments.Provider
	initOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service, p payments.Provider) {
	if svc == nil || p == nil {
		return
	}
	initOnce.Do(func() {
		service = svc
		provider = p
	})
}

// POST /webhooks/stripe
//
// Verification failures are 400 so the provider retries are not suppressed by
// a confusing success. Events for unknown or already settled intents are
// acknowledged with 200: the webhook may be delivered more than once.
func HandleStripe(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	event, err := provider.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected webhook with invalid signature")
		apiutil.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		err = service.HandlePaymentSucceeded(r.Context(), event.IntentID)
	case payments.EventPaymentFailed:
		err = service.HandlePaymentFailed(r.Context(), event.IntentID)
	default:
		logger.Debug().Str("event_type", event.Type).Msg("Ignoring unhandled webhook event")
	}
	if err != nil {
		logger.Error().Err(err).Str("event_type", event.Type).Str("intent_id", event.IntentID).Msg("Failed to process webhook event")
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
