// Package booking is the settlement orchestrator: it validates a candidate
// reservation, prices it, settles the fee against credit and the external
// processor, and owns the cancellation and webhook-driven reversal flows.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/credit"
	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/email"
	"github.com/courtbook/courtbook/internal/hours"
	"github.com/courtbook/courtbook/internal/payments"
	"github.com/courtbook/courtbook/internal/pricing"
	"github.com/courtbook/courtbook/internal/rules"
	"github.com/courtbook/courtbook/internal/store"
)

var (
	// ErrCourtNotFound covers a missing or inactive resource, site or org.
	ErrCourtNotFound = errors.New("booking: court not found or not bookable")
	// ErrNotMember means the user has no active membership in the court's org.
	ErrNotMember = errors.New("booking: not a member of this organisation")
	// ErrBookingNotFound covers a missing booking or one owned by another user.
	ErrBookingNotFound = errors.New("booking: booking not found")
	// ErrNotCancellable means the booking is not in the confirmed state.
	ErrNotCancellable = errors.New("booking: booking cannot be cancelled")
)

// ValidationError carries the complete set of rule violations for a rejected
// request; all rules are evaluated before it is built.
type ValidationError struct {
	Violations []rules.Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("booking rejected: %d rule violation(s)", len(e.Violations))
}

// Service wires the engines, ledger, store and payment provider together.
// Each entry point is one unit of work; webhook handlers open their own.
type Service struct {
	db       *db.DB
	payments payments.Provider
	mailer   email.Sender
	now      func() time.Time
}

func NewService(database *db.DB, provider payments.Provider, mailer email.Sender, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: database, payments: provider, mailer: mailer, now: now}
}

// CreateRequest is a candidate reservation from an authenticated member.
type CreateRequest struct {
	ResourceID      int64
	BookingDate     string // YYYY-MM-DD
	StartTime       string // HH:MM
	DurationMinutes int
}

// CreateResult is the persisted booking plus, when external payment is needed
// for a remainder, the intent's client secret for the caller to complete.
type CreateResult struct {
	Booking      store.Booking
	ClientSecret string
}

// Create runs the full admission and settlement sequence in one transaction:
// resolve membership, validate, price, persist, deduct credit, and fall back
// to an external intent for any shortfall. A lost double-booking race
// surfaces as store.ErrSlotTaken, distinct from validation rejection.
func (s *Service) Create(ctx context.Context, userID int64, req CreateRequest) (CreateResult, error) {
	var result CreateResult

	err := s.db.RunInTx(ctx, func(txdb *db.DB) error {
		st := txdb.Store

		resource, org, tier, err := s.resolveMembership(ctx, st, userID, req.ResourceID)
		if err != nil {
			return err
		}

		engine := rules.NewEngine(storeReader{st}, s.now)
		violations, err := engine.ValidateBooking(ctx, rules.Request{
			UserID:          userID,
			ResourceID:      resource.ID,
			BookingDate:     req.BookingDate,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
		}, tierPolicy(tier))
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			return &ValidationError{Violations: violations}
		}

		date, err := hours.ParseDate(req.BookingDate)
		if err != nil {
			return err
		}
		feePence, band := pricing.CalculateBookingFee(
			tierRates(tier), resource.HasFloodlights, date,
			req.StartTime, req.DurationMinutes, pricing.ParseConfig(org.Config))

		created, err := st.CreateBooking(ctx, store.CreateBookingParams{
			Reference:       uuid.NewString(),
			OrganisationID:  org.ID,
			ResourceID:      resource.ID,
			UserID:          userID,
			BookingDate:     req.BookingDate,
			StartTime:       req.StartTime,
			EndTime:         hours.AddMinutes(req.StartTime, req.DurationMinutes),
			DurationMinutes: req.DurationMinutes,
			AmountPence:     feePence,
			PriceBand:       string(band),
		})
		if err != nil {
			return err
		}

		if feePence == 0 {
			// Free booking; payment_status stays not_required.
			result.Booking = created
			return nil
		}

		creditUsed, err := credit.Deduct(ctx, st, userID, org.ID, feePence, created.ID)
		if err != nil {
			return err
		}

		remaining := feePence - creditUsed
		if remaining == 0 {
			if err := st.SetBookingPaymentStatus(ctx, created.ID, store.PaymentStatusPaid); err != nil {
				return err
			}
			result.Booking, err = st.GetBooking(ctx, created.ID)
			return err
		}

		user, err := st.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		customerID, err := s.ensureCustomer(ctx, st, user)
		if err != nil {
			return err
		}
		intent, err := s.payments.CreateIntent(ctx, payments.IntentRequest{
			AmountPence:    remaining,
			CustomerID:     customerID,
			CustomerEmail:  user.Email,
			CustomerName:   user.FirstName + " " + user.LastName,
			BookingID:      created.ID,
			OrganisationID: org.ID,
		})
		if err != nil {
			// Roll the whole unit back: no booking may exist half-settled.
			return fmt.Errorf("create payment intent: %w", err)
		}
		if err := st.SetBookingPaymentIntent(ctx, created.ID, intent.ID); err != nil {
			return err
		}

		result.ClientSecret = intent.ClientSecret
		result.Booking, err = st.GetBooking(ctx, created.ID)
		return err
	})
	if err != nil {
		return CreateResult{}, err
	}

	s.notifyConfirmation(result.Booking)
	return result, nil
}

// Cancel transitions a confirmed booking to cancelled: deadline rule, best
// effort provider-intent cancellation, and a full credit-back of amount_pence
// regardless of how the booking was originally paid.
func (s *Service) Cancel(ctx context.Context, userID, bookingID int64) (store.Booking, error) {
	var cancelled store.Booking

	err := s.db.RunInTx(ctx, func(txdb *db.DB) error {
		st := txdb.Store

		bkg, err := st.GetBooking(ctx, bookingID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && bkg.UserID != userID) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if bkg.Status != store.BookingStatusConfirmed {
			return ErrNotCancellable
		}

		membership, err := st.GetActiveMembership(ctx, userID, bkg.OrganisationID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotMember
		}
		if err != nil {
			return err
		}
		tier, err := st.GetMembershipTier(ctx, membership.TierID)
		if err != nil {
			return err
		}

		engine := rules.NewEngine(storeReader{st}, s.now)
		if v := engine.ValidateCancellation(bkg.BookingDate, bkg.StartTime, tierPolicy(tier)); v != nil {
			return &ValidationError{Violations: []rules.Violation{*v}}
		}

		if bkg.StripePaymentIntentID.Valid && bkg.PaymentStatus == store.PaymentStatusPending {
			s.payments.CancelIntent(ctx, bkg.StripePaymentIntentID.String)
		}

		if bkg.AmountPence > 0 {
			if _, err := credit.CreditCancellation(ctx, st, userID, bkg.OrganisationID, bkg.AmountPence, bkg.ID); err != nil {
				return err
			}
		}

		cancelledAt := s.now().In(hours.Location()).Format(time.RFC3339)
		if err := st.CancelBooking(ctx, bkg.ID, bkg.PaymentStatus, cancelledAt); err != nil {
			return err
		}
		cancelled, err = st.GetBooking(ctx, bkg.ID)
		return err
	})
	if err != nil {
		return store.Booking{}, err
	}

	s.notifyCancellation(cancelled)
	return cancelled, nil
}

// HandlePaymentSucceeded marks the booking paid. Runs in its own unit of work
// and is idempotent: an unknown intent or an already-settled booking is a
// silent no-op, since webhook retries and ordering are out of our hands.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, intentID string) error {
	return s.db.RunInTx(ctx, func(txdb *db.DB) error {
		st := txdb.Store

		bkg, err := st.GetBookingByIntentID(ctx, intentID)
		if errors.Is(err, store.ErrNotFound) {
			log.Ctx(ctx).Info().Str("intent_id", intentID).Msg("Webhook for unknown payment intent ignored")
			return nil
		}
		if err != nil {
			return err
		}
		if bkg.PaymentStatus != store.PaymentStatusPending {
			return nil
		}
		return st.SetBookingPaymentStatus(ctx, bkg.ID, store.PaymentStatusPaid)
	})
}

// HandlePaymentFailed cancels the booking and reverses exactly the credit
// portion that was deducted at creation. The processor side needs no call:
// the failed intent never captured anything.
func (s *Service) HandlePaymentFailed(ctx context.Context, intentID string) error {
	return s.db.RunInTx(ctx, func(txdb *db.DB) error {
		st := txdb.Store

		bkg, err := st.GetBookingByIntentID(ctx, intentID)
		if errors.Is(err, store.ErrNotFound) {
			log.Ctx(ctx).Info().Str("intent_id", intentID).Msg("Webhook for unknown payment intent ignored")
			return nil
		}
		if err != nil {
			return err
		}
		if bkg.Status != store.BookingStatusConfirmed {
			return nil
		}

		cancelledAt := s.now().In(hours.Location()).Format(time.RFC3339)
		if err := st.CancelBooking(ctx, bkg.ID, store.PaymentStatusNotRequired, cancelledAt); err != nil {
			return err
		}
		_, err = credit.ReverseDeduction(ctx, st, bkg.UserID, bkg.OrganisationID, bkg.ID)
		return err
	})
}

// ListForUser returns the user's most recent bookings.
func (s *Service) ListForUser(ctx context.Context, userID int64, limit int) ([]store.Booking, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.db.Store.ListUserBookings(ctx, userID, limit)
}

// Availability generates the slot grid for a court on a date, marking slots
// taken by confirmed bookings or already past. Regenerated per request.
func (s *Service) Availability(ctx context.Context, resourceID int64, bookingDate string) ([]hours.Slot, error) {
	st := s.db.Store

	resource, err := st.GetResource(ctx, resourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCourtNotFound
	}
	if err != nil {
		return nil, err
	}

	date, err := hours.ParseDate(bookingDate)
	if err != nil {
		return nil, err
	}

	booked, err := st.ListConfirmedIntervals(ctx, resourceID, bookingDate)
	if err != nil {
		return nil, err
	}
	intervals := make([]hours.Interval, len(booked))
	for i, iv := range booked {
		intervals[i] = hours.Interval{StartTime: iv.StartTime, EndTime: iv.EndTime}
	}

	return hours.GenerateSlots(resource.HasFloodlights, resource.IsIndoor, date, intervals, s.now()), nil
}

// CompletePastBookings sweeps confirmed bookings whose slot has fully elapsed
// into the completed state. Called from the scheduler.
func (s *Service) CompletePastBookings(ctx context.Context) (int64, error) {
	now := s.now().In(hours.Location())
	return s.db.Store.CompletePastBookings(ctx, now.Format("2006-01-02"), now.Format("15:04"))
}

// ensureCustomer returns the user's provider-side customer id, creating and
// caching one on first use so every intent is attached to the same customer.
func (s *Service) ensureCustomer(ctx context.Context, st *store.Store, user store.User) (string, error) {
	if user.StripeCustomerID.Valid && user.StripeCustomerID.String != "" {
		return user.StripeCustomerID.String, nil
	}
	customerID, err := s.payments.EnsureCustomer(ctx, user.Email, user.FirstName+" "+user.LastName)
	if err != nil {
		return "", fmt.Errorf("ensure customer: %w", err)
	}
	if err := st.SetUserStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

// resolveMembership walks resource -> site -> organisation -> membership with
// explicit lookups so the engines receive plain values, not entity graphs.
func (s *Service) resolveMembership(ctx context.Context, st *store.Store, userID, resourceID int64) (store.Resource, store.Organisation, store.MembershipTier, error) {
	var (
		resource store.Resource
		org      store.Organisation
		tier     store.MembershipTier
	)

	resource, err := st.GetResource(ctx, resourceID)
	if errors.Is(err, store.ErrNotFound) {
		return resource, org, tier, ErrCourtNotFound
	}
	if err != nil {
		return resource, org, tier, err
	}

	site, err := st.GetSite(ctx, resource.SiteID)
	if err != nil {
		return resource, org, tier, err
	}
	org, err = st.GetOrganisation(ctx, site.OrganisationID)
	if errors.Is(err, store.ErrNotFound) {
		return resource, org, tier, ErrCourtNotFound
	}
	if err != nil {
		return resource, org, tier, err
	}

	membership, err := st.GetActiveMembership(ctx, userID, org.ID)
	if errors.Is(err, store.ErrNotFound) {
		return resource, org, tier, ErrNotMember
	}
	if err != nil {
		return resource, org, tier, err
	}

	tier, err = st.GetMembershipTier(ctx, membership.TierID)
	if err != nil {
		return resource, org, tier, err
	}
	return resource, org, tier, nil
}

// tierPolicy maps a stored tier onto the rule engine's policy value.
func tierPolicy(tier store.MembershipTier) rules.Tier {
	var durations []int
	if err := json.Unmarshal([]byte(tier.SlotDurationsMinutes), &durations); err != nil {
		durations = nil
	}
	return rules.Tier{
		AdvanceBookingDays:        tier.AdvanceBookingDays,
		MaxConcurrentBookings:     tier.MaxConcurrentBookings,
		MaxDailyMinutes:           tier.MaxDailyMinutes,
		CancellationDeadlineHours: tier.CancellationDeadlineHours,
		SlotDurationsMinutes:      durations,
		BookingWindowTime:         tier.BookingWindowTime,
	}
}

func tierRates(tier store.MembershipTier) pricing.Rates {
	return pricing.Rates{
		EarlyPence:      tier.EarlyBookingFeePence,
		OffpeakPence:    tier.OffpeakBookingFeePence,
		PeakPence:       tier.PeakBookingFeePence,
		FloodlightPence: tier.FloodlightBookingFeePence,
	}
}

// storeReader adapts the store to the rule engine's reader interface.
type storeReader struct {
	st *store.Store
}

func (r storeReader) CountFutureConfirmedBookings(ctx context.Context, userID int64, fromDate string) (int, error) {
	return r.st.CountFutureConfirmedBookings(ctx, userID, fromDate)
}

func (r storeReader) SumConfirmedMinutesOnDate(ctx context.Context, userID int64, bookingDate string) (int, error) {
	return r.st.SumConfirmedMinutesOnDate(ctx, userID, bookingDate)
}

func (r storeReader) FindConfirmedOverlap(ctx context.Context, resourceID int64, bookingDate, startTime, endTime string) (*rules.Conflict, error) {
	bkg, err := r.st.FindConfirmedOverlap(ctx, resourceID, bookingDate, startTime, endTime)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rules.Conflict{StartTime: bkg.StartTime, EndTime: bkg.EndTime}, nil
}

func (s *Service) notifyConfirmation(bkg store.Booking) {
	if s.mailer == nil {
		return
	}
	user, err := s.db.Store.GetUser(context.Background(), bkg.UserID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", bkg.UserID).Msg("Failed to load user for confirmation email")
		return
	}
	subject, body := email.BookingConfirmation(bkg.BookingDate, bkg.StartTime, bkg.EndTime, bkg.AmountPence)
	email.SendAsync(s.mailer, user.Email, subject, body)
}

func (s *Service) notifyCancellation(bkg store.Booking) {
	if s.mailer == nil {
		return
	}
	user, err := s.db.Store.GetUser(context.Background(), bkg.UserID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", bkg.UserID).Msg("Failed to load user for cancellation email")
		return
	}
	subject, body := email.BookingCancellation(bkg.BookingDate, bkg.StartTime, bkg.AmountPence)
	email.SendAsync(s.mailer, user.Email, subject, body)
}
