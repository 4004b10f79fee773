package store

import "database/sql"

// Booking lifecycle states. Cancelled, no-show and completed are terminal.
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusNoShow    = "no_show"
	BookingStatusCompleted = "completed"
)

const (
	BookingSourceMember    = "member"
	BookingSourceAdmin     = "admin"
	BookingSourceFairness  = "fairness"
	BookingSourceProgramme = "programme"
	BookingSourceStanding  = "standing"
)

const (
	PaymentStatusNotRequired       = "not_required"
	PaymentStatusPending           = "pending"
	PaymentStatusPaid              = "paid"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
)

const (
	TxnTypeGrant              = "grant"
	TxnTypeBookingPayment     = "booking_payment"
	TxnTypeCancellationCredit = "cancellation_credit"
	TxnTypeAdminAdjustment    = "admin_adjustment"
	TxnTypePaymentReversal    = "payment_reversal"
)

const (
	OrgRoleMember    = "member"
	OrgRoleCoach     = "coach"
	OrgRoleAdmin     = "admin"
	OrgRoleTreasurer = "treasurer"
)

type User struct {
	ID               int64
	Email            string
	HashedPassword   sql.NullString
	FirstName        string
	LastName         string
	Phone            sql.NullString
	IsActive         bool
	Role             string
	StripeCustomerID sql.NullString
}

type Organisation struct {
	ID       int64
	Name     string
	Slug     string
	IsActive bool
	Email    sql.NullString
	Config   string
}

type Site struct {
	ID             int64
	OrganisationID int64
	Name           string
	Slug           string
	IsActive       bool
}

type Resource struct {
	ID             int64
	SiteID         int64
	Name           string
	Slug           string
	ResourceType   string
	IsActive       bool
	Surface        sql.NullString
	IsIndoor       bool
	HasFloodlights bool
}

type MembershipTier struct {
	ID                        int64
	OrganisationID            int64
	Name                      string
	Slug                      string
	IsActive                  bool
	AdvanceBookingDays        int
	MaxConcurrentBookings     int
	MaxDailyMinutes           int
	CancellationDeadlineHours int
	SlotDurationsMinutes      string // JSON array
	BookingWindowTime         string // HH:MM
	AnnualFeePence            int64
	EarlyBookingFeePence      int64
	OffpeakBookingFeePence    int64
	PeakBookingFeePence       int64
	FloodlightBookingFeePence int64
}

type OrgMembership struct {
	ID                 int64
	UserID             int64
	OrganisationID     int64
	TierID             int64
	Role               string
	IsActive           bool
	CreditBalancePence int64
}

type Booking struct {
	ID                    int64
	Reference             string
	OrganisationID        int64
	ResourceID            int64
	UserID                int64
	BookingDate           string // YYYY-MM-DD
	StartTime             string // HH:MM
	EndTime               string // HH:MM
	DurationMinutes       int
	Status                string
	Source                string
	CancelledAt           sql.NullString
	PaymentStatus         string
	AmountPence           int64
	PriceBand             sql.NullString
	StripePaymentIntentID sql.NullString
}

type CreditTransaction struct {
	ID                int64
	UserID            int64
	OrganisationID    int64
	AmountPence       int64
	BalanceAfterPence int64
	TransactionType   string
	BookingID         sql.NullInt64
	Description       string
	CreatedAt         string
}

type UserPreference struct {
	ID                 int64
	UserID             int64
	OrganisationID     int64
	Priority           int
	SiteID             sql.NullInt64
	ResourceID         sql.NullInt64
	DayOfWeek          sql.NullInt64
	PreferredStartTime sql.NullString
	DurationMinutes    int
}
