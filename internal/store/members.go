package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// EncodeIntList renders a JSON array for the slot_durations_minutes column.
func EncodeIntList(values []int) string {
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

const tierCols = `id, organisation_id, name, slug, is_active, advance_booking_days,
	max_concurrent_bookings, max_daily_minutes, cancellation_deadline_hours,
	slot_durations_minutes, booking_window_time, annual_fee_pence,
	early_booking_fee_pence, offpeak_booking_fee_pence, peak_booking_fee_pence,
	floodlight_booking_fee_pence`

func scanTier(row *sql.Row) (MembershipTier, error) {
	var t MembershipTier
	err := row.Scan(&t.ID, &t.OrganisationID, &t.Name, &t.Slug, &t.IsActive,
		&t.AdvanceBookingDays, &t.MaxConcurrentBookings, &t.MaxDailyMinutes,
		&t.CancellationDeadlineHours, &t.SlotDurationsMinutes, &t.BookingWindowTime,
		&t.AnnualFeePence, &t.EarlyBookingFeePence, &t.OffpeakBookingFeePence,
		&t.PeakBookingFeePence, &t.FloodlightBookingFeePence)
	if errors.Is(err, sql.ErrNoRows) {
		return MembershipTier{}, ErrNotFound
	}
	return t, err
}

func (s *Store) GetMembershipTier(ctx context.Context, id int64) (MembershipTier, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tierCols+" FROM membership_tiers WHERE id = ?", id)
	return scanTier(row)
}

type CreateMembershipTierParams struct {
	OrganisationID            int64
	Name                      string
	Slug                      string
	AdvanceBookingDays        int
	MaxConcurrentBookings     int
	MaxDailyMinutes           int
	CancellationDeadlineHours int
	SlotDurationsMinutes      string
	BookingWindowTime         string
	AnnualFeePence            int64
	EarlyBookingFeePence      int64
	OffpeakBookingFeePence    int64
	PeakBookingFeePence       int64
	FloodlightBookingFeePence int64
}

func (s *Store) CreateMembershipTier(ctx context.Context, p CreateMembershipTierParams) (MembershipTier, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO membership_tiers (
		organisation_id, name, slug, advance_booking_days, max_concurrent_bookings,
		max_daily_minutes, cancellation_deadline_hours, slot_durations_minutes,
		booking_window_time, annual_fee_pence, early_booking_fee_pence,
		offpeak_booking_fee_pence, peak_booking_fee_pence, floodlight_booking_fee_pence
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrganisationID, p.Name, p.Slug, p.AdvanceBookingDays, p.MaxConcurrentBookings,
		p.MaxDailyMinutes, p.CancellationDeadlineHours, p.SlotDurationsMinutes,
		p.BookingWindowTime, p.AnnualFeePence, p.EarlyBookingFeePence,
		p.OffpeakBookingFeePence, p.PeakBookingFeePence, p.FloodlightBookingFeePence)
	if err != nil {
		return MembershipTier{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MembershipTier{}, err
	}
	return s.GetMembershipTier(ctx, id)
}

const membershipCols = "id, user_id, organisation_id, tier_id, role, is_active, credit_balance_pence"

// GetActiveMembership returns the single active membership for (user, org).
func (s *Store) GetActiveMembership(ctx context.Context, userID, organisationID int64) (OrgMembership, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+membershipCols+" FROM org_memberships WHERE user_id = ? AND organisation_id = ? AND is_active = 1",
		userID, organisationID)
	var m OrgMembership
	err := row.Scan(&m.ID, &m.UserID, &m.OrganisationID, &m.TierID, &m.Role, &m.IsActive, &m.CreditBalancePence)
	if errors.Is(err, sql.ErrNoRows) {
		return OrgMembership{}, ErrNotFound
	}
	return m, err
}

type CreateMembershipParams struct {
	UserID         int64
	OrganisationID int64
	TierID         int64
	Role           string
}

func (s *Store) CreateMembership(ctx context.Context, p CreateMembershipParams) (OrgMembership, error) {
	role := p.Role
	if role == "" {
		role = OrgRoleMember
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO org_memberships
		(user_id, organisation_id, tier_id, role, joined_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		p.UserID, p.OrganisationID, p.TierID, role)
	if err != nil {
		return OrgMembership{}, err
	}
	return s.GetActiveMembership(ctx, p.UserID, p.OrganisationID)
}

// AdjustMembershipBalance applies a signed delta to the cached credit balance
// and returns the new balance. The single UPDATE makes the read-modify-write
// atomic under SQLite's serialized writer, standing in for SELECT ... FOR
// UPDATE on stores that support row locks.
func (s *Store) AdjustMembershipBalance(ctx context.Context, userID, organisationID, deltaPence int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE org_memberships
		SET credit_balance_pence = credit_balance_pence + ?, updated_at = datetime('now')
		WHERE user_id = ? AND organisation_id = ? AND is_active = 1
		RETURNING credit_balance_pence`,
		deltaPence, userID, organisationID)
	var balance int64
	err := row.Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}
