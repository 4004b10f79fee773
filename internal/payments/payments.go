// Package payments wraps the external card processor behind a small
// capability interface so the settlement orchestrator never touches provider
// types directly. All amounts are integer pence (GBP).
package payments

import "context"

// Intent is the provider-side payment intent for a booking remainder. The
// client secret goes back to the caller so their client can complete payment.
type Intent struct {
	ID           string
	ClientSecret string
}

// Event types the webhook handler reacts to; everything else is acknowledged
// and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Event is a verified webhook notification.
type Event struct {
	Type     string
	IntentID string
}

// IntentRequest carries the references stamped onto the provider intent so
// webhook events can be tied back to a booking. CustomerID is the provider's
// customer handle from EnsureCustomer; when set, the intent is attached to it.
type IntentRequest struct {
	AmountPence    int64
	CustomerID     string
	CustomerEmail  string
	CustomerName   string
	BookingID      int64
	OrganisationID int64
}

// Provider is the processor capability consumed by the booking core.
//
// EnsureCustomer creates a provider-side customer record and returns its id;
// callers cache the id and skip the call once they hold one.
// CancelIntent is best-effort: provider-side errors are swallowed because the
// booking-side state is authoritative regardless of remote cleanup.
// VerifyWebhook returns an error for an invalid signature.
type Provider interface {
	EnsureCustomer(ctx context.Context, email, name string) (string, error)
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	CancelIntent(ctx context.Context, intentID string)
	VerifyWebhook(payload []byte, signature string) (Event, error)
}
