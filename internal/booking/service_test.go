package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/hours"
	"github.com/courtbook/courtbook/internal/payments"
	"github.com/courtbook/courtbook/internal/store"
	"github.com/courtbook/courtbook/internal/testutil"
)

type fakeProvider struct {
	createErr   error
	customerErr error
	created     []payments.IntentRequest
	customers   []string
	cancelled   []string
	seq         int
}

func (f *fakeProvider) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	if f.customerErr != nil {
		return "", f.customerErr
	}
	id := fmt.Sprintf("cus_test_%d", len(f.customers)+1)
	f.customers = append(f.customers, id)
	return id, nil
}

func (f *fakeProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if f.createErr != nil {
		return payments.Intent{}, f.createErr
	}
	f.seq++
	f.created = append(f.created, req)
	id := fmt.Sprintf("pi_test_%d", f.seq)
	return payments.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeProvider) CancelIntent(ctx context.Context, intentID string) {
	f.cancelled = append(f.cancelled, intentID)
}

func (f *fakeProvider) VerifyWebhook(payload []byte, signature string) (payments.Event, error) {
	return payments.Event{}, errors.New("not implemented")
}

func fixedClock(t *testing.T, date, hhmm string) func() time.Time {
	t.Helper()
	d, err := hours.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	at := hours.CombineDateTime(d, hhmm)
	return func() time.Time { return at }
}

func pricedTier() testutil.TierOverrides {
	return testutil.TierOverrides{
		EarlyFeePence:      500,
		OffpeakFeePence:    800,
		PeakFeePence:       1200,
		FloodlightFeePence: 1500,
	}
}

func newTestService(t *testing.T, database *db.DB, provider payments.Provider) *Service {
	t.Helper()
	// Monday noon; bookings land on the Wednesday of the same week.
	return NewService(database, provider, nil, fixedClock(t, "2026-03-16", "12:00"))
}

func grant(t *testing.T, database *db.DB, f testutil.Facility, amount int64) {
	t.Helper()
	_, err := database.Store.AdjustMembershipBalance(context.Background(), f.UserID, f.OrganisationID, amount)
	if err != nil {
		t.Fatalf("grant credit: %v", err)
	}
}

func offpeakRequest(f testutil.Facility) CreateRequest {
	return CreateRequest{
		ResourceID:      f.CourtID,
		BookingDate:     "2026-03-18",
		StartTime:       "10:00",
		DurationMinutes: 60,
	}
}

func TestCreateFreeBooking(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{}) // zero rates
	provider := &fakeProvider{}
	svc := newTestService(t, database, provider)

	result, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bkg := result.Booking
	if bkg.AmountPence != 0 {
		t.Errorf("amount = %d, want 0", bkg.AmountPence)
	}
	if bkg.PaymentStatus != store.PaymentStatusNotRequired {
		t.Errorf("payment_status = %s, want not_required", bkg.PaymentStatus)
	}
	if bkg.Status != store.BookingStatusConfirmed {
		t.Errorf("status = %s, want confirmed", bkg.Status)
	}
	if result.ClientSecret != "" || len(provider.created) != 0 {
		t.Errorf("free booking must not touch the payment provider")
	}
	if bkg.Reference == "" {
		t.Errorf("booking has no reference")
	}
}

func TestCreateFullyCoveredByCredit(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	provider := &fakeProvider{}
	svc := newTestService(t, database, provider)

	grant(t, database, f, 1000)

	result, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bkg := result.Booking
	if bkg.AmountPence != 800 {
		t.Errorf("amount = %d, want 800 (offpeak hour)", bkg.AmountPence)
	}
	if !bkg.PriceBand.Valid || bkg.PriceBand.String != "offpeak" {
		t.Errorf("price_band = %v, want offpeak", bkg.PriceBand)
	}
	if bkg.PaymentStatus != store.PaymentStatusPaid {
		t.Errorf("payment_status = %s, want paid", bkg.PaymentStatus)
	}
	if len(provider.created) != 0 {
		t.Errorf("fully covered booking must not create an intent")
	}

	membership, err := database.Store.GetActiveMembership(context.Background(), f.UserID, f.OrganisationID)
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if membership.CreditBalancePence != 200 {
		t.Errorf("balance = %d, want 200", membership.CreditBalancePence)
	}
}

func TestCreatePartialCreditCreatesIntentForRemainder(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	provider := &fakeProvider{}
	svc := newTestService(t, database, provider)

	grant(t, database, f, 300)

	result, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(provider.created) != 1 {
		t.Fatalf("intents created = %d, want 1", len(provider.created))
	}
	if provider.created[0].AmountPence != 500 {
		t.Errorf("intent amount = %d, want 500 (800 fee - 300 credit)", provider.created[0].AmountPence)
	}
	if result.ClientSecret == "" {
		t.Errorf("expected a client secret for the remainder")
	}

	bkg := result.Booking
	if bkg.PaymentStatus != store.PaymentStatusPending {
		t.Errorf("payment_status = %s, want pending", bkg.PaymentStatus)
	}
	if !bkg.StripePaymentIntentID.Valid {
		t.Errorf("booking missing intent id")
	}

	membership, _ := database.Store.GetActiveMembership(context.Background(), f.UserID, f.OrganisationID)
	if membership.CreditBalancePence != 0 {
		t.Errorf("balance = %d, want 0", membership.CreditBalancePence)
	}
}

func TestCreateAttachesProviderCustomer(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	provider := &fakeProvider{}
	svc := newTestService(t, database, provider)

	first := offpeakRequest(f)
	if _, err := svc.Create(context.Background(), f.UserID, first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := offpeakRequest(f)
	second.StartTime = "11:00"
	if _, err := svc.Create(context.Background(), f.UserID, second); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if len(provider.customers) != 1 {
		t.Fatalf("customers created = %d, want 1 (second booking must reuse the cached id)", len(provider.customers))
	}
	if len(provider.created) != 2 {
		t.Fatalf("intents created = %d, want 2", len(provider.created))
	}
	for i, req := range provider.created {
		if req.CustomerID != "cus_test_1" {
			t.Errorf("intent %d customer = %q, want cus_test_1", i, req.CustomerID)
		}
	}

	user, err := database.Store.GetUser(context.Background(), f.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !user.StripeCustomerID.Valid || user.StripeCustomerID.String != "cus_test_1" {
		t.Errorf("cached customer id = %+v, want cus_test_1", user.StripeCustomerID)
	}
}

func TestCreateCustomerFailureRollsBack(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	provider := &fakeProvider{customerErr: errors.New("processor down")}
	svc := newTestService(t, database, provider)

	_, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err == nil {
		t.Fatalf("expected error when customer creation fails")
	}

	list, err := database.Store.ListUserBookings(context.Background(), f.UserID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("booking persisted despite rollback: %+v", list)
	}
	user, err := database.Store.GetUser(context.Background(), f.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.StripeCustomerID.Valid {
		t.Errorf("customer id cached despite rollback: %+v", user.StripeCustomerID)
	}
}

func TestCreateIntentFailureRollsBack(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	provider := &fakeProvider{createErr: errors.New("processor down")}
	svc := newTestService(t, database, provider)

	_, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err == nil {
		t.Fatalf("expected error when intent creation fails")
	}

	list, err := database.Store.ListUserBookings(context.Background(), f.UserID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("booking persisted despite rollback: %+v", list)
	}
	membership, _ := database.Store.GetActiveMembership(context.Background(), f.UserID, f.OrganisationID)
	if membership.CreditBalancePence != 0 {
		t.Errorf("balance = %d, want 0 after rollback", membership.CreditBalancePence)
	}
}

func TestCreateRejectedByRules(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	req := offpeakRequest(f)
	req.DurationMinutes = 90

	_, err := svc.Create(context.Background(), f.UserID, req)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(validationErr.Violations) == 0 {
		t.Errorf("no violations reported")
	}

	list, _ := database.Store.ListUserBookings(context.Background(), f.UserID, 10)
	if len(list) != 0 {
		t.Errorf("rejected booking persisted: %+v", list)
	}
}

func TestCreateConflictWithExistingBooking(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	other := testutil.SeedUser(t, database, "other@example.com")
	testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, other,
		"2026-03-18", "10:00", "11:00", 60)

	_, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("err = %v, want ValidationError with court_conflict", err)
	}
	found := false
	for _, v := range validationErr.Violations {
		if v.Rule == "court_conflict" {
			found = true
		}
	}
	if !found {
		t.Errorf("violations = %v, want court_conflict", validationErr.Violations)
	}
}

func TestCreateRequiresMembership(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	outsider := testutil.SeedUser(t, database, "outsider@example.com")
	_, err := svc.Create(context.Background(), outsider, offpeakRequest(f))
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("err = %v, want ErrNotMember", err)
	}

	_, err = svc.Create(context.Background(), f.UserID, CreateRequest{
		ResourceID: 9999, BookingDate: "2026-03-18", StartTime: "10:00", DurationMinutes: 60,
	})
	if !errors.Is(err, ErrCourtNotFound) {
		t.Errorf("err = %v, want ErrCourtNotFound", err)
	}
}

func TestCancelCreditsFullAmount(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	provider := &fakeProvider{}
	svc := newTestService(t, database, provider)

	grant(t, database, f, 300)
	result, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), f.UserID, result.Booking.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != store.BookingStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if !cancelled.CancelledAt.Valid {
		t.Errorf("cancelled_at not set")
	}

	// The pending intent is voided best-effort.
	if len(provider.cancelled) != 1 {
		t.Errorf("cancelled intents = %v, want 1", provider.cancelled)
	}

	// Full amount_pence comes back as credit, not just the deducted part.
	membership, _ := database.Store.GetActiveMembership(context.Background(), f.UserID, f.OrganisationID)
	if membership.CreditBalancePence != 800 {
		t.Errorf("balance = %d, want 800", membership.CreditBalancePence)
	}
}

func TestCancelPastDeadlineRejected(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	// Tomorrow 10:00 with a 24h deadline: already too late at Monday noon.
	bookingID := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-17", "10:00", "11:00", 60)

	_, err := svc.Cancel(context.Background(), f.UserID, bookingID)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCancelOwnershipAndState(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	bookingID := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-20", "10:00", "11:00", 60)

	other := testutil.SeedUser(t, database, "other@example.com")
	if _, err := svc.Cancel(context.Background(), other, bookingID); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("foreign cancel err = %v, want ErrBookingNotFound", err)
	}

	if _, err := svc.Cancel(context.Background(), f.UserID, bookingID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), f.UserID, bookingID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("double cancel err = %v, want ErrNotCancellable", err)
	}
}

func TestHandlePaymentSucceeded(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	result, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intentID := result.Booking.StripePaymentIntentID.String

	if err := svc.HandlePaymentSucceeded(context.Background(), intentID); err != nil {
		t.Fatalf("succeeded: %v", err)
	}
	bkg, _ := database.Store.GetBooking(context.Background(), result.Booking.ID)
	if bkg.PaymentStatus != store.PaymentStatusPaid {
		t.Errorf("payment_status = %s, want paid", bkg.PaymentStatus)
	}

	// Redelivery is a no-op.
	if err := svc.HandlePaymentSucceeded(context.Background(), intentID); err != nil {
		t.Fatalf("redelivered: %v", err)
	}

	// Unknown intents are acknowledged silently.
	if err := svc.HandlePaymentSucceeded(context.Background(), "pi_unknown"); err != nil {
		t.Fatalf("unknown intent: %v", err)
	}
}

func TestHandlePaymentFailedCancelsAndReverses(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	grant(t, database, f, 300)
	result, err := svc.Create(context.Background(), f.UserID, offpeakRequest(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intentID := result.Booking.StripePaymentIntentID.String

	if err := svc.HandlePaymentFailed(context.Background(), intentID); err != nil {
		t.Fatalf("failed: %v", err)
	}

	bkg, _ := database.Store.GetBooking(context.Background(), result.Booking.ID)
	if bkg.Status != store.BookingStatusCancelled {
		t.Errorf("status = %s, want cancelled", bkg.Status)
	}
	if bkg.PaymentStatus != store.PaymentStatusNotRequired {
		t.Errorf("payment_status = %s, want not_required", bkg.PaymentStatus)
	}

	// Only the deducted 300 comes back, not the uncaptured remainder.
	membership, _ := database.Store.GetActiveMembership(context.Background(), f.UserID, f.OrganisationID)
	if membership.CreditBalancePence != 300 {
		t.Errorf("balance = %d, want 300", membership.CreditBalancePence)
	}

	// Redelivery must not credit twice.
	if err := svc.HandlePaymentFailed(context.Background(), intentID); err != nil {
		t.Fatalf("redelivered: %v", err)
	}
	membership, _ = database.Store.GetActiveMembership(context.Background(), f.UserID, f.OrganisationID)
	if membership.CreditBalancePence != 300 {
		t.Errorf("balance after redelivery = %d, want 300", membership.CreditBalancePence)
	}

	// The slot is free again for someone else.
	other := testutil.SeedUser(t, database, "other@example.com")
	testutil.SeedMembership(t, database, other, f.OrganisationID, f.TierID, store.OrgRoleMember)
	if _, err := svc.Create(context.Background(), other, offpeakRequest(f)); err != nil {
		t.Errorf("rebooking freed slot: %v", err)
	}
}

func TestAvailabilityMarksBookedSlots(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-18", "10:00", "11:00", 60)

	slots, err := svc.Availability(context.Background(), f.CourtID, "2026-03-18")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("no slots generated")
	}
	for _, s := range slots {
		if s.StartTime == "10:00" && s.IsAvailable {
			t.Errorf("booked slot 10:00 reported available")
		}
		if s.StartTime == "11:00" && !s.IsAvailable {
			t.Errorf("free slot 11:00 reported unavailable")
		}
	}

	if _, err := svc.Availability(context.Background(), 9999, "2026-03-18"); !errors.Is(err, ErrCourtNotFound) {
		t.Errorf("err = %v, want ErrCourtNotFound", err)
	}
}

func TestCompletePastBookings(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, pricedTier())
	svc := newTestService(t, database, &fakeProvider{})

	past := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-15", "10:00", "11:00", 60)
	endedToday := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-16", "09:00", "10:00", 60)
	future := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-18", "10:00", "11:00", 60)

	n, err := svc.CompletePastBookings(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("completed = %d, want 2", n)
	}

	for _, tc := range []struct {
		id   int64
		want string
	}{
		{past, store.BookingStatusCompleted},
		{endedToday, store.BookingStatusCompleted},
		{future, store.BookingStatusConfirmed},
	} {
		bkg, err := database.Store.GetBooking(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("get booking: %v", err)
		}
		if bkg.Status != tc.want {
			t.Errorf("booking %d status = %s, want %s", tc.id, bkg.Status, tc.want)
		}
	}
}
