package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/courtbook/courtbook/internal/db"
	"github.com/courtbook/courtbook/internal/store"
)

// Facility is a fully wired test fixture: one organisation with a site, an
// outdoor floodlit court, an indoor court, a tier, and a member.
type Facility struct {
	UserID          int64
	OrganisationID  int64
	SiteID          int64
	CourtID         int64
	FloodlitCourtID int64
	TierID          int64
	MembershipID    int64
}

// TierOverrides tweaks the seeded tier; zero values keep the defaults.
type TierOverrides struct {
	AdvanceBookingDays        int
	MaxConcurrentBookings     int
	MaxDailyMinutes           int
	CancellationDeadlineHours int
	SlotDurationsMinutes      string
	BookingWindowTime         string
	EarlyFeePence             int64
	OffpeakFeePence           int64
	PeakFeePence              int64
	FloodlightFeePence        int64
}

// SeedFacility inserts the standard fixture and returns the generated ids.
func SeedFacility(t *testing.T, database *db.DB, overrides TierOverrides) Facility {
	t.Helper()
	ctx := context.Background()

	var f Facility
	f.OrganisationID = mustInsert(t, database, ctx,
		`INSERT INTO organisations (name, slug) VALUES (?, ?)`,
		"Hackney Tennis", "hackney-tennis")
	f.SiteID = mustInsert(t, database, ctx,
		`INSERT INTO sites (organisation_id, name, slug) VALUES (?, ?, ?)`,
		f.OrganisationID, "London Fields", "london-fields")
	f.CourtID = mustInsert(t, database, ctx,
		`INSERT INTO resources (site_id, name, slug, is_indoor) VALUES (?, ?, ?, 1)`,
		f.SiteID, "Court 1", "court-1")
	f.FloodlitCourtID = mustInsert(t, database, ctx,
		`INSERT INTO resources (site_id, name, slug, has_floodlights) VALUES (?, ?, ?, 1)`,
		f.SiteID, "Court 2", "court-2")

	tier := applyTierDefaults(overrides)
	f.TierID = mustInsert(t, database, ctx,
		`INSERT INTO membership_tiers (
			organisation_id, name, slug, advance_booking_days, max_concurrent_bookings,
			max_daily_minutes, cancellation_deadline_hours, slot_durations_minutes,
			booking_window_time, early_booking_fee_pence, offpeak_booking_fee_pence,
			peak_booking_fee_pence, floodlight_booking_fee_pence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrganisationID, "Standard", "standard", tier.AdvanceBookingDays,
		tier.MaxConcurrentBookings, tier.MaxDailyMinutes, tier.CancellationDeadlineHours,
		tier.SlotDurationsMinutes, tier.BookingWindowTime, tier.EarlyFeePence,
		tier.OffpeakFeePence, tier.PeakFeePence, tier.FloodlightFeePence)

	f.UserID = SeedUser(t, database, "member@example.com")
	f.MembershipID = SeedMembership(t, database, f.UserID, f.OrganisationID, f.TierID, store.OrgRoleMember)

	return f
}

func applyTierDefaults(o TierOverrides) TierOverrides {
	if o.AdvanceBookingDays == 0 {
		o.AdvanceBookingDays = 7
	}
	if o.MaxConcurrentBookings == 0 {
		o.MaxConcurrentBookings = 3
	}
	if o.MaxDailyMinutes == 0 {
		o.MaxDailyMinutes = 120
	}
	if o.CancellationDeadlineHours == 0 {
		o.CancellationDeadlineHours = 24
	}
	if o.SlotDurationsMinutes == "" {
		o.SlotDurationsMinutes = "[60,120]"
	}
	if o.BookingWindowTime == "" {
		o.BookingWindowTime = "21:00"
	}
	return o
}

// SeedUser inserts an active user and returns its id.
func SeedUser(t *testing.T, database *db.DB, email string) int64 {
	t.Helper()
	return mustInsert(t, database, context.Background(),
		`INSERT INTO users (email, first_name, last_name) VALUES (?, ?, ?)`,
		email, "Test", "User")
}

// SeedMembership inserts an active membership and returns its id.
func SeedMembership(t *testing.T, database *db.DB, userID, orgID, tierID int64, role string) int64 {
	t.Helper()
	return mustInsert(t, database, context.Background(),
		`INSERT INTO org_memberships (user_id, organisation_id, tier_id, role, joined_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		userID, orgID, tierID, role)
}

// SetOrgConfig replaces the organisation's pricing/config JSON.
func SetOrgConfig(t *testing.T, database *db.DB, orgID int64, configJSON string) {
	t.Helper()
	mustExec(t, database, context.Background(),
		`UPDATE organisations SET config = ? WHERE id = ?`, configJSON, orgID)
}

// SeedBooking inserts a confirmed booking directly, bypassing validation.
func SeedBooking(t *testing.T, database *db.DB, orgID, resourceID, userID int64, date, start, end string, durationMinutes int) int64 {
	t.Helper()
	return mustInsert(t, database, context.Background(),
		`INSERT INTO bookings (reference, organisation_id, resource_id, user_id,
			booking_date, start_time, end_time, duration_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fmt.Sprintf("TEST-%d-%s-%s", resourceID, date, start),
		orgID, resourceID, userID, date, start, end, durationMinutes)
}

func mustInsert(t *testing.T, database *db.DB, ctx context.Context, query string, args ...any) int64 {
	t.Helper()
	res := mustExec(t, database, ctx, query, args...)
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

func mustExec(t *testing.T, database *db.DB, ctx context.Context, query string, args ...any) sql.Result {
	t.Helper()
	res, err := database.ExecContext(ctx, query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	return res
}
