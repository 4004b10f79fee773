package rules

import (
	"context"
	"testing"
	"time"

	"github.com/courtbook/courtbook/internal/hours"
)

type fakeReader struct {
	futureCount int
	dailyBooked int
	conflict    *Conflict
}

func (f *fakeReader) CountFutureConfirmedBookings(ctx context.Context, userID int64, fromDate string) (int, error) {
	return f.futureCount, nil
}

func (f *fakeReader) SumConfirmedMinutesOnDate(ctx context.Context, userID int64, bookingDate string) (int, error) {
	return f.dailyBooked, nil
}

func (f *fakeReader) FindConfirmedOverlap(ctx context.Context, resourceID int64, bookingDate, startTime, endTime string) (*Conflict, error) {
	return f.conflict, nil
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

func standardTier() Tier {
	return Tier{
		AdvanceBookingDays:        7,
		MaxConcurrentBookings:     3,
		MaxDailyMinutes:           120,
		CancellationDeadlineHours: 24,
		SlotDurationsMinutes:      []int{60, 120},
		BookingWindowTime:         "21:00",
	}
}

func ruleSet(violations []Violation) map[string]bool {
	set := make(map[string]bool, len(violations))
	for _, v := range violations {
		set[v.Rule] = true
	}
	return set
}

func TestValidateBookingClean(t *testing.T) {
	engine := NewEngine(&fakeReader{}, fixedClock(t, "2026-03-16", "12:00"))

	violations, err := engine.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: "2026-03-18", StartTime: "10:00", DurationMinutes: 60,
	}, standardTier())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}

func TestValidateBookingCollectsAllViolations(t *testing.T) {
	reader := &fakeReader{
		futureCount: 3,
		dailyBooked: 120,
		conflict:    &Conflict{StartTime: "10:00", EndTime: "11:00"},
	}
	engine := NewEngine(reader, fixedClock(t, "2026-03-16", "12:00"))

	// 90 minutes is not an allowed duration and the date is past the window.
	violations, err := engine.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: "2026-03-30", StartTime: "10:00", DurationMinutes: 90,
	}, standardTier())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	got := ruleSet(violations)
	for _, want := range []string{
		RuleSlotDuration, RuleAdvanceWindow, RuleMaxConcurrent,
		RuleMaxDailyMinutes, RuleCourtConflict,
	} {
		if !got[want] {
			t.Errorf("missing violation %s in %v", want, violations)
		}
	}
	if got[RulePastBooking] {
		t.Errorf("future booking flagged as past: %v", violations)
	}
}

func TestAdvanceWindowOpensAtWindowTime(t *testing.T) {
	tier := standardTier()
	target := "2026-03-23" // today + 7

	// Before 21:00 the horizon is today+6: day 7 not yet bookable.
	before := NewEngine(&fakeReader{}, fixedClock(t, "2026-03-16", "20:59"))
	violations, err := before.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: target, StartTime: "10:00", DurationMinutes: 60,
	}, tier)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ruleSet(violations)[RuleAdvanceWindow] {
		t.Errorf("day 7 bookable at 20:59, want advance_window violation")
	}

	// From 21:00 the slots for today+7 are released.
	after := NewEngine(&fakeReader{}, fixedClock(t, "2026-03-16", "21:01"))
	violations, err = after.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: target, StartTime: "10:00", DurationMinutes: 60,
	}, tier)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ruleSet(violations)[RuleAdvanceWindow] {
		t.Errorf("day 7 not bookable at 21:01: %v", violations)
	}
}

func TestPastBookingRejected(t *testing.T) {
	engine := NewEngine(&fakeReader{}, fixedClock(t, "2026-03-16", "12:00"))

	violations, err := engine.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: "2026-03-16", StartTime: "11:00", DurationMinutes: 60,
	}, standardTier())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ruleSet(violations)[RulePastBooking] {
		t.Errorf("expected past_booking violation, got %v", violations)
	}

	// A slot starting exactly now is also past.
	violations, err = engine.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: "2026-03-16", StartTime: "12:00", DurationMinutes: 60,
	}, standardTier())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ruleSet(violations)[RulePastBooking] {
		t.Errorf("slot starting now must be past, got %v", violations)
	}
}

func TestMaxDailyMinutesCountsRequestedDuration(t *testing.T) {
	reader := &fakeReader{dailyBooked: 60}
	engine := NewEngine(reader, fixedClock(t, "2026-03-16", "12:00"))

	// 60 booked + 60 requested = 120, exactly at the limit: allowed.
	violations, err := engine.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: "2026-03-18", StartTime: "10:00", DurationMinutes: 60,
	}, standardTier())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ruleSet(violations)[RuleMaxDailyMinutes] {
		t.Errorf("120 total minutes is within the limit: %v", violations)
	}

	// 60 booked + 120 requested exceeds it.
	violations, err = engine.ValidateBooking(context.Background(), Request{
		UserID: 1, ResourceID: 1,
		BookingDate: "2026-03-18", StartTime: "10:00", DurationMinutes: 120,
	}, standardTier())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ruleSet(violations)[RuleMaxDailyMinutes] {
		t.Errorf("expected max_daily_minutes violation, got %v", violations)
	}
}

func TestValidateCancellationDeadline(t *testing.T) {
	tier := standardTier()

	// 48 hours out: fine.
	engine := NewEngine(&fakeReader{}, fixedClock(t, "2026-03-16", "10:00"))
	if v := engine.ValidateCancellation("2026-03-18", "10:00", tier); v != nil {
		t.Errorf("cancellation 48h out rejected: %v", v)
	}

	// 12 hours out: past the 24 hour deadline.
	if v := engine.ValidateCancellation("2026-03-16", "22:00", tier); v == nil {
		t.Errorf("cancellation 12h out must violate the deadline")
	} else if v.Rule != RuleCancellationDeadline {
		t.Errorf("rule = %s, want %s", v.Rule, RuleCancellationDeadline)
	}

	// Exactly at the deadline is still allowed.
	if v := engine.ValidateCancellation("2026-03-17", "10:00", tier); v != nil {
		t.Errorf("cancellation exactly at deadline rejected: %v", v)
	}
}
