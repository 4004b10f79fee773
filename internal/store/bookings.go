package store

import (
	"context"
	"database/sql"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrSlotTaken means the no-double-booking unique index rejected the insert:
// another confirmed booking won the slot between pre-check and commit.
var ErrSlotTaken = errors.New("store: slot already booked")

const bookingCols = `id, reference, organisation_id, resource_id, user_id,
	booking_date, start_time, end_time, duration_minutes, status, source,
	cancelled_at, payment_status, amount_pence, price_band, stripe_payment_intent_id`

func scanBooking(row *sql.Row) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.Reference, &b.OrganisationID, &b.ResourceID, &b.UserID,
		&b.BookingDate, &b.StartTime, &b.EndTime, &b.DurationMinutes, &b.Status, &b.Source,
		&b.CancelledAt, &b.PaymentStatus, &b.AmountPence, &b.PriceBand, &b.StripePaymentIntentID)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

type CreateBookingParams struct {
	Reference       string
	OrganisationID  int64
	ResourceID      int64
	UserID          int64
	BookingDate     string
	StartTime       string
	EndTime         string
	DurationMinutes int
	Source          string
	AmountPence     int64
	PriceBand       string
}

func (s *Store) CreateBooking(ctx context.Context, p CreateBookingParams) (Booking, error) {
	source := p.Source
	if source == "" {
		source = BookingSourceMember
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO bookings (
		reference, organisation_id, resource_id, user_id, booking_date,
		start_time, end_time, duration_minutes, source, amount_pence, price_band
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Reference, p.OrganisationID, p.ResourceID, p.UserID, p.BookingDate,
		p.StartTime, p.EndTime, p.DurationMinutes, source, p.AmountPence, p.PriceBand)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return Booking{}, ErrSlotTaken
		}
		return Booking{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Booking{}, err
	}
	return s.GetBooking(ctx, id)
}

func (s *Store) GetBooking(ctx context.Context, id int64) (Booking, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookingCols+" FROM bookings WHERE id = ?", id)
	return scanBooking(row)
}

func (s *Store) GetBookingByIntentID(ctx context.Context, intentID string) (Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingCols+" FROM bookings WHERE stripe_payment_intent_id = ?", intentID)
	return scanBooking(row)
}

func (s *Store) ListUserBookings(ctx context.Context, userID int64, limit int) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+bookingCols+" FROM bookings WHERE user_id = ? ORDER BY booking_date DESC, start_time DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.Reference, &b.OrganisationID, &b.ResourceID, &b.UserID,
			&b.BookingDate, &b.StartTime, &b.EndTime, &b.DurationMinutes, &b.Status, &b.Source,
			&b.CancelledAt, &b.PaymentStatus, &b.AmountPence, &b.PriceBand, &b.StripePaymentIntentID); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CountFutureConfirmedBookings counts a user's confirmed bookings dated on or
// after fromDate. Dates compare lexically because they are zero-padded ISO.
func (s *Store) CountFutureConfirmedBookings(ctx context.Context, userID int64, fromDate string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE user_id = ? AND status = ? AND booking_date >= ?",
		userID, BookingStatusConfirmed, fromDate)
	var n int
	err := row.Scan(&n)
	return n, err
}

func (s *Store) SumConfirmedMinutesOnDate(ctx context.Context, userID int64, bookingDate string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(duration_minutes), 0) FROM bookings WHERE user_id = ? AND status = ? AND booking_date = ?",
		userID, BookingStatusConfirmed, bookingDate)
	var minutes int
	err := row.Scan(&minutes)
	return minutes, err
}

// FindConfirmedOverlap returns the first confirmed booking on the resource and
// date whose half-open [start, end) interval overlaps the given one, or
// ErrNotFound. HH:MM strings compare lexically.
func (s *Store) FindConfirmedOverlap(ctx context.Context, resourceID int64, bookingDate, startTime, endTime string) (Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingCols+` FROM bookings
		WHERE resource_id = ? AND booking_date = ? AND status = ?
		AND start_time < ? AND end_time > ? LIMIT 1`,
		resourceID, bookingDate, BookingStatusConfirmed, endTime, startTime)
	return scanBooking(row)
}

// BookedInterval is a confirmed booking's time span for slot generation.
type BookedInterval struct {
	StartTime string
	EndTime   string
}

func (s *Store) ListConfirmedIntervals(ctx context.Context, resourceID int64, bookingDate string) ([]BookedInterval, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT start_time, end_time FROM bookings WHERE resource_id = ? AND booking_date = ? AND status = ? ORDER BY start_time",
		resourceID, bookingDate, BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []BookedInterval
	for rows.Next() {
		var iv BookedInterval
		if err := rows.Scan(&iv.StartTime, &iv.EndTime); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

func (s *Store) SetBookingPaymentStatus(ctx context.Context, id int64, paymentStatus string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET payment_status = ?, updated_at = datetime('now') WHERE id = ?",
		paymentStatus, id)
	return err
}

func (s *Store) SetBookingPaymentIntent(ctx context.Context, id int64, intentID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET stripe_payment_intent_id = ?, payment_status = ?, updated_at = datetime('now') WHERE id = ?",
		intentID, PaymentStatusPending, id)
	return err
}

// CancelBooking transitions a booking to cancelled with the given payment
// status; the row is never deleted so the audit trail and credit reversal
// linkage survive.
func (s *Store) CancelBooking(ctx context.Context, id int64, paymentStatus, cancelledAt string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, payment_status = ?, cancelled_at = ?, updated_at = datetime('now') WHERE id = ?`,
		BookingStatusCancelled, paymentStatus, cancelledAt, id)
	return err
}

// CompletePastBookings marks confirmed bookings whose slot has fully elapsed
// as completed. Returns the number of rows swept.
func (s *Store) CompletePastBookings(ctx context.Context, today, nowTime string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = datetime('now')
		WHERE status = ? AND (booking_date < ? OR (booking_date = ? AND end_time <= ?))`,
		BookingStatusCompleted, BookingStatusConfirmed, today, today, nowTime)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
