// Package rules is the booking admission pipeline. Every rule is evaluated
// unconditionally and violations are aggregated, so a caller can report the
// complete list in one response instead of one problem per attempt.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/courtbook/courtbook/internal/hours"
)

// Rule identifiers, stable machine-readable names surfaced to callers.
const (
	RuleSlotDuration         = "slot_duration"
	RuleAdvanceWindow        = "advance_window"
	RulePastBooking          = "past_booking"
	RuleMaxConcurrent        = "max_concurrent"
	RuleMaxDailyMinutes      = "max_daily_minutes"
	RuleCourtConflict        = "court_conflict"
	RuleCancellationDeadline = "cancellation_deadline"
)

// Violation is a single failed rule with a human-readable explanation.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Tier carries the per-tier booking policy. The orchestrator builds it from
// the stored membership tier so the engine stays free of storage types.
type Tier struct {
	AdvanceBookingDays        int
	MaxConcurrentBookings     int
	MaxDailyMinutes           int
	CancellationDeadlineHours int
	SlotDurationsMinutes      []int
	BookingWindowTime         string // HH:MM; the daily slot-release time
}

// Conflict is an overlapping confirmed booking found by the reader.
type Conflict struct {
	StartTime string
	EndTime   string
}

// BookingReader supplies the three reads the rule pipeline needs. Only
// confirmed bookings count.
type BookingReader interface {
	CountFutureConfirmedBookings(ctx context.Context, userID int64, fromDate string) (int, error)
	SumConfirmedMinutesOnDate(ctx context.Context, userID int64, bookingDate string) (int, error)
	FindConfirmedOverlap(ctx context.Context, resourceID int64, bookingDate, startTime, endTime string) (*Conflict, error)
}

// Engine evaluates booking rules against an injected clock.
type Engine struct {
	reader BookingReader
	now    func() time.Time
}

func NewEngine(reader BookingReader, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{reader: reader, now: now}
}

// Request is a candidate reservation.
type Request struct {
	UserID          int64
	ResourceID      int64
	BookingDate     string // YYYY-MM-DD
	StartTime       string // HH:MM
	DurationMinutes int
}

// ValidateBooking runs every rule and returns all violations; an empty slice
// means the booking is admissible. Read errors abort the pipeline.
func (e *Engine) ValidateBooking(ctx context.Context, req Request, tier Tier) ([]Violation, error) {
	var violations []Violation

	if v := e.checkSlotDuration(tier, req.DurationMinutes); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkAdvanceWindow(tier, req.BookingDate); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkNotInPast(req.BookingDate, req.StartTime); v != nil {
		violations = append(violations, *v)
	}

	v, err := e.checkMaxConcurrent(ctx, req.UserID, tier)
	if err != nil {
		return nil, err
	}
	if v != nil {
		violations = append(violations, *v)
	}

	v, err = e.checkMaxDailyMinutes(ctx, req.UserID, tier, req.BookingDate, req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if v != nil {
		violations = append(violations, *v)
	}

	endTime := hours.AddMinutes(req.StartTime, req.DurationMinutes)
	v, err = e.checkCourtConflict(ctx, req.ResourceID, req.BookingDate, req.StartTime, endTime)
	if err != nil {
		return nil, err
	}
	if v != nil {
		violations = append(violations, *v)
	}

	return violations, nil
}

// checkSlotDuration: the requested duration must be in the tier's allowed set.
func (e *Engine) checkSlotDuration(tier Tier, durationMinutes int) *Violation {
	allowed := tier.SlotDurationsMinutes
	if len(allowed) == 0 {
		allowed = []int{60, 120}
	}
	for _, d := range allowed {
		if d == durationMinutes {
			return nil
		}
	}
	choices := ""
	for i, d := range allowed {
		if i > 0 {
			choices += ", "
		}
		choices += fmtDuration(d)
	}
	return &Violation{
		Rule:    RuleSlotDuration,
		Message: fmt.Sprintf("Duration %s not allowed. Choose from: %s.", fmtDuration(durationMinutes), choices),
	}
}

// checkAdvanceWindow: the window for day today+N opens at the tier's daily
// window time (default 21:00). Before that time, the horizon is one day
// shorter, which gives the nightly release of the next day's slots.
func (e *Engine) checkAdvanceWindow(tier Tier, bookingDate string) *Violation {
	now := e.now().In(hours.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, hours.Location())

	windowTime := tier.BookingWindowTime
	if windowTime == "" {
		windowTime = "21:00"
	}
	windowOpenToday := hours.CombineDateTime(today, windowTime)

	days := tier.AdvanceBookingDays
	if now.Before(windowOpenToday) {
		days--
	}
	maxDate := today.AddDate(0, 0, days).Format("2006-01-02")

	if bookingDate > maxDate {
		return &Violation{
			Rule: RuleAdvanceWindow,
			Message: fmt.Sprintf("Cannot book more than %d days in advance. %s becomes bookable at %s.",
				tier.AdvanceBookingDays, bookingDate, windowTime),
		}
	}
	return nil
}

// checkNotInPast: the slot must start strictly after now in the venue zone.
func (e *Engine) checkNotInPast(bookingDate, startTime string) *Violation {
	date, err := hours.ParseDate(bookingDate)
	if err != nil {
		return &Violation{Rule: RulePastBooking, Message: "Invalid booking date."}
	}
	slotStart := hours.CombineDateTime(date, startTime)
	if !slotStart.After(e.now().In(hours.Location())) {
		return &Violation{Rule: RulePastBooking, Message: "Cannot book a slot in the past."}
	}
	return nil
}

func (e *Engine) checkMaxConcurrent(ctx context.Context, userID int64, tier Tier) (*Violation, error) {
	today := e.now().In(hours.Location()).Format("2006-01-02")
	count, err := e.reader.CountFutureConfirmedBookings(ctx, userID, today)
	if err != nil {
		return nil, fmt.Errorf("count future bookings: %w", err)
	}
	if count >= tier.MaxConcurrentBookings {
		return &Violation{
			Rule: RuleMaxConcurrent,
			Message: fmt.Sprintf("You already have %d upcoming bookings. Maximum allowed: %d.",
				count, tier.MaxConcurrentBookings),
		}, nil
	}
	return nil, nil
}

func (e *Engine) checkMaxDailyMinutes(ctx context.Context, userID int64, tier Tier, bookingDate string, durationMinutes int) (*Violation, error) {
	booked, err := e.reader.SumConfirmedMinutesOnDate(ctx, userID, bookingDate)
	if err != nil {
		return nil, fmt.Errorf("sum daily minutes: %w", err)
	}
	if booked+durationMinutes > tier.MaxDailyMinutes {
		return &Violation{
			Rule: RuleMaxDailyMinutes,
			Message: fmt.Sprintf("You have %s booked on %s. Adding %s would exceed your daily limit of %s.",
				fmtDuration(booked), bookingDate, fmtDuration(durationMinutes), fmtDuration(tier.MaxDailyMinutes)),
		}, nil
	}
	return nil, nil
}

func (e *Engine) checkCourtConflict(ctx context.Context, resourceID int64, bookingDate, startTime, endTime string) (*Violation, error) {
	conflict, err := e.reader.FindConfirmedOverlap(ctx, resourceID, bookingDate, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("find overlap: %w", err)
	}
	if conflict != nil {
		return &Violation{
			Rule:    RuleCourtConflict,
			Message: fmt.Sprintf("Court already booked from %s to %s.", conflict.StartTime, conflict.EndTime),
		}, nil
	}
	return nil, nil
}

// ValidateCancellation checks the tier's cancellation deadline. There is no
// other cancellation rule; status checks belong to the orchestrator.
func (e *Engine) ValidateCancellation(bookingDate, startTime string, tier Tier) *Violation {
	date, err := hours.ParseDate(bookingDate)
	if err != nil {
		return &Violation{Rule: RuleCancellationDeadline, Message: "Invalid booking date."}
	}
	slotStart := hours.CombineDateTime(date, startTime)
	deadline := slotStart.Add(-time.Duration(tier.CancellationDeadlineHours) * time.Hour)

	if e.now().In(hours.Location()).After(deadline) {
		return &Violation{
			Rule: RuleCancellationDeadline,
			Message: fmt.Sprintf("Cancellation deadline was %d hours before the booking (%s). Too late to cancel.",
				tier.CancellationDeadlineHours, deadline.Format("Monday 02 January at 15:04")),
		}
	}
	return nil
}

// fmtDuration renders minutes as hours when evenly divisible, else minutes.
func fmtDuration(minutes int) string {
	if minutes == 0 {
		return "0 minutes"
	}
	if minutes%60 == 0 {
		h := minutes / 60
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", minutes)
}
