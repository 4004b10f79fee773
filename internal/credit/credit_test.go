package credit

import (
	"context"
	"testing"

	"github.com/courtbook/courtbook/internal/testutil"
)

func TestBalanceWithoutMembership(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{})
	ctx := context.Background()

	outsider := testutil.SeedUser(t, database, "outsider@example.com")
	balance, err := Balance(ctx, database.Store, outsider, f.OrganisationID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestGrantAndBalance(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{})
	ctx := context.Background()

	txn, err := Grant(ctx, database.Store, f.UserID, f.OrganisationID, 1000, "Welcome credit")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if txn.AmountPence != 1000 || txn.BalanceAfterPence != 1000 {
		t.Errorf("txn = %+v, want amount 1000 balance_after 1000", txn)
	}

	balance, err := Balance(ctx, database.Store, f.UserID, f.OrganisationID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1000 {
		t.Errorf("balance = %d, want 1000", balance)
	}
}

func TestGrantWithoutMembership(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{})
	ctx := context.Background()

	outsider := testutil.SeedUser(t, database, "outsider@example.com")
	_, err := Grant(ctx, database.Store, outsider, f.OrganisationID, 500, "x")
	if err != ErrNoMembership {
		t.Errorf("err = %v, want ErrNoMembership", err)
	}
}

func TestDeductNeverOverdraws(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{})
	ctx := context.Background()

	if _, err := Grant(ctx, database.Store, f.UserID, f.OrganisationID, 300, "top up"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	bookingID := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-18", "10:00", "11:00", 60)

	deducted, err := Deduct(ctx, database.Store, f.UserID, f.OrganisationID, 800, bookingID)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if deducted != 300 {
		t.Errorf("deducted = %d, want 300 (capped at balance)", deducted)
	}

	balance, err := Balance(ctx, database.Store, f.UserID, f.OrganisationID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}

	// Nothing left: a further deduction is a no-op with no transaction.
	deducted, err = Deduct(ctx, database.Store, f.UserID, f.OrganisationID, 100, bookingID)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if deducted != 0 {
		t.Errorf("deducted = %d, want 0", deducted)
	}
}

func TestLedgerConservation(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{})
	ctx := context.Background()

	bookingID := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-18", "10:00", "11:00", 60)

	if _, err := Grant(ctx, database.Store, f.UserID, f.OrganisationID, 2000, "top up"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := Deduct(ctx, database.Store, f.UserID, f.OrganisationID, 800, bookingID); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if _, err := CreditCancellation(ctx, database.Store, f.UserID, f.OrganisationID, 800, bookingID); err != nil {
		t.Fatalf("cancellation credit: %v", err)
	}

	// The cached balance must equal the transaction sum after any sequence.
	sum, err := database.Store.SumCreditTransactions(ctx, f.UserID, f.OrganisationID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	balance, err := Balance(ctx, database.Store, f.UserID, f.OrganisationID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if sum != balance || balance != 2000 {
		t.Errorf("sum = %d, balance = %d, want both 2000", sum, balance)
	}
}

func TestReverseDeduction(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{})
	ctx := context.Background()

	bookingID := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-18", "10:00", "11:00", 60)

	if _, err := Grant(ctx, database.Store, f.UserID, f.OrganisationID, 500, "top up"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := Deduct(ctx, database.Store, f.UserID, f.OrganisationID, 500, bookingID); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	txn, err := ReverseDeduction(ctx, database.Store, f.UserID, f.OrganisationID, bookingID)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if txn == nil || txn.AmountPence != 500 {
		t.Fatalf("reversal txn = %+v, want amount 500", txn)
	}

	balance, err := Balance(ctx, database.Store, f.UserID, f.OrganisationID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 500 {
		t.Errorf("balance = %d, want 500", balance)
	}

	// Reversing again is a no-op: the deduction is only credited back once.
	txn, err = ReverseDeduction(ctx, database.Store, f.UserID, f.OrganisationID, bookingID)
	if err != nil {
		t.Fatalf("second reverse: %v", err)
	}
	if txn != nil {
		t.Errorf("second reversal produced %+v, want nil", txn)
	}
	balance, _ = Balance(ctx, database.Store, f.UserID, f.OrganisationID)
	if balance != 500 {
		t.Errorf("balance after double reverse = %d, want 500", balance)
	}
}

func TestReverseDeductionWithoutDeduction(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.SeedFacility(t, database, testutil.TierOverrides{})
	ctx := context.Background()

	bookingID := testutil.SeedBooking(t, database, f.OrganisationID, f.CourtID, f.UserID,
		"2026-03-18", "10:00", "11:00", 60)

	txn, err := ReverseDeduction(ctx, database.Store, f.UserID, f.OrganisationID, bookingID)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if txn != nil {
		t.Errorf("reversal with no deduction produced %+v, want nil", txn)
	}
}
