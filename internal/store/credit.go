package store

import (
	"context"
	"database/sql"
	"errors"
)

const creditTxnCols = `id, user_id, organisation_id, amount_pence, balance_after_pence,
	transaction_type, booking_id, description, created_at`

type InsertCreditTransactionParams struct {
	UserID            int64
	OrganisationID    int64
	AmountPence       int64
	BalanceAfterPence int64
	TransactionType   string
	BookingID         sql.NullInt64
	Description       string
}

func (s *Store) InsertCreditTransaction(ctx context.Context, p InsertCreditTransactionParams) (CreditTransaction, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO credit_transactions
		(user_id, organisation_id, amount_pence, balance_after_pence, transaction_type, booking_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.OrganisationID, p.AmountPence, p.BalanceAfterPence,
		p.TransactionType, p.BookingID, p.Description)
	if err != nil {
		return CreditTransaction{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CreditTransaction{}, err
	}
	return s.getCreditTransaction(ctx, id)
}

func (s *Store) getCreditTransaction(ctx context.Context, id int64) (CreditTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+creditTxnCols+" FROM credit_transactions WHERE id = ?", id)
	return scanCreditTransaction(row)
}

func scanCreditTransaction(row *sql.Row) (CreditTransaction, error) {
	var t CreditTransaction
	err := row.Scan(&t.ID, &t.UserID, &t.OrganisationID, &t.AmountPence, &t.BalanceAfterPence,
		&t.TransactionType, &t.BookingID, &t.Description, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CreditTransaction{}, ErrNotFound
	}
	return t, err
}

// FindBookingTransaction locates a booking-linked transaction of the given
// type, if one exists. At most one booking_payment and one payment_reversal
// are ever written per booking, which is what makes reversal idempotent.
func (s *Store) FindBookingTransaction(ctx context.Context, userID, organisationID, bookingID int64, txnType string) (CreditTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+creditTxnCols+` FROM credit_transactions
		WHERE booking_id = ? AND user_id = ? AND organisation_id = ? AND transaction_type = ?
		LIMIT 1`,
		bookingID, userID, organisationID, txnType)
	return scanCreditTransaction(row)
}

func (s *Store) ListCreditTransactions(ctx context.Context, userID, organisationID int64, limit int) ([]CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+creditTxnCols+` FROM credit_transactions
		WHERE user_id = ? AND organisation_id = ? ORDER BY id DESC LIMIT ?`,
		userID, organisationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []CreditTransaction
	for rows.Next() {
		var t CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrganisationID, &t.AmountPence, &t.BalanceAfterPence,
			&t.TransactionType, &t.BookingID, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// SumCreditTransactions totals all signed movements for (user, org). Used by
// tests and integrity checks against the cached membership balance.
func (s *Store) SumCreditTransactions(ctx context.Context, userID, organisationID int64) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_pence), 0) FROM credit_transactions WHERE user_id = ? AND organisation_id = ?",
		userID, organisationID)
	var sum int64
	err := row.Scan(&sum)
	return sum, err
}
