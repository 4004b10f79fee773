// Package credit is the prepaid balance ledger. The cached balance on the
// membership row mirrors the sum of the credit_transactions audit trail; every
// mutation goes through apply, which updates both in one atomic step inside
// the caller's transaction.
package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/courtbook/courtbook/internal/store"
)

// ErrNoMembership means the (user, org) pair has no active membership to
// carry a balance.
var ErrNoMembership = errors.New("credit: no active membership")

// Balance reads the cached credit balance in pence. Returns 0 when the user
// has no active membership in the organisation.
func Balance(ctx context.Context, st *store.Store, userID, orgID int64) (int64, error) {
	membership, err := st.GetActiveMembership(ctx, userID, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return membership.CreditBalancePence, nil
}

// apply is the single mutation primitive: adjust the cached balance and record
// the immutable transaction with its balance_after snapshot. The balance
// adjustment is one atomic UPDATE, so two concurrent applies for the same
// (user, org) can never both read a stale balance.
func apply(ctx context.Context, st *store.Store, userID, orgID, amountPence int64, txnType string, bookingID sql.NullInt64, description string) (store.CreditTransaction, error) {
	newBalance, err := st.AdjustMembershipBalance(ctx, userID, orgID, amountPence)
	if errors.Is(err, store.ErrNotFound) {
		return store.CreditTransaction{}, ErrNoMembership
	}
	if err != nil {
		return store.CreditTransaction{}, fmt.Errorf("adjust balance: %w", err)
	}

	txn, err := st.InsertCreditTransaction(ctx, store.InsertCreditTransactionParams{
		UserID:            userID,
		OrganisationID:    orgID,
		AmountPence:       amountPence,
		BalanceAfterPence: newBalance,
		TransactionType:   txnType,
		BookingID:         bookingID,
		Description:       description,
	})
	if err != nil {
		return store.CreditTransaction{}, fmt.Errorf("record transaction: %w", err)
	}
	return txn, nil
}

// Deduct takes up to amountPence from the balance, never overdrawing, and
// returns the amount actually deducted. A zero balance or non-positive amount
// deducts nothing; the caller covers any shortfall another way.
//
// The clamp is computed from a read taken before the atomic UPDATE in apply.
// SQLite's serialized writer fails a concurrent deduct rather than letting it
// interleave, and the balance_after guard below turns any stale clamp into a
// rolled-back error instead of an overdraw.
func Deduct(ctx context.Context, st *store.Store, userID, orgID, amountPence, bookingID int64) (int64, error) {
	if amountPence <= 0 {
		return 0, nil
	}

	balance, err := Balance(ctx, st, userID, orgID)
	if err != nil {
		return 0, err
	}
	deduction := min(balance, amountPence)
	if deduction <= 0 {
		return 0, nil
	}

	txn, err := apply(ctx, st, userID, orgID, -deduction, store.TxnTypeBookingPayment,
		sql.NullInt64{Int64: bookingID, Valid: true},
		fmt.Sprintf("Payment for booking #%d", bookingID))
	if err != nil {
		return 0, err
	}
	if txn.BalanceAfterPence < 0 {
		return 0, fmt.Errorf("credit: deduction overdrew balance for user %d org %d", userID, orgID)
	}
	return deduction, nil
}

// Grant credits the balance (admin action). Amount positivity is enforced at
// the boundary, not here.
func Grant(ctx context.Context, st *store.Store, userID, orgID, amountPence int64, description string) (store.CreditTransaction, error) {
	return apply(ctx, st, userID, orgID, amountPence, store.TxnTypeGrant, sql.NullInt64{}, description)
}

// CreditCancellation credits the full booking amount back. Cancellations
// always yield credit, never a cash refund through this path.
func CreditCancellation(ctx context.Context, st *store.Store, userID, orgID, amountPence, bookingID int64) (store.CreditTransaction, error) {
	return apply(ctx, st, userID, orgID, amountPence, store.TxnTypeCancellationCredit,
		sql.NullInt64{Int64: bookingID, Valid: true},
		fmt.Sprintf("Cancellation credit for booking #%d", bookingID))
}

// ReverseDeduction undoes the booking_payment deduction for a booking, e.g.
// after an external payment failure. Returns nil when no deduction exists to
// reverse (the booking may have been fully covered externally) or when the
// deduction was already reversed.
func ReverseDeduction(ctx context.Context, st *store.Store, userID, orgID, bookingID int64) (*store.CreditTransaction, error) {
	original, err := st.FindBookingTransaction(ctx, userID, orgID, bookingID, store.TxnTypeBookingPayment)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	_, err = st.FindBookingTransaction(ctx, userID, orgID, bookingID, store.TxnTypePaymentReversal)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// The original amount is negative, so the negation credits it back.
	txn, err := apply(ctx, st, userID, orgID, -original.AmountPence, store.TxnTypePaymentReversal,
		sql.NullInt64{Int64: bookingID, Valid: true},
		fmt.Sprintf("Reversal of credit deduction for booking #%d", bookingID))
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
