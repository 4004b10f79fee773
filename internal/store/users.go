package store

import (
	"context"
	"database/sql"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrDuplicateEmail means a user with that email already exists.
var ErrDuplicateEmail = errors.New("store: email already registered")

const userCols = "id, email, hashed_password, first_name, last_name, phone, is_active, role, stripe_customer_id"

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.FirstName, &u.LastName,
		&u.Phone, &u.IsActive, &u.Role, &u.StripeCustomerID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE id = ? AND is_active = 1", id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE email = ? AND is_active = 1", email)
	return scanUser(row)
}

type CreateUserParams struct {
	Email          string
	HashedPassword string
	FirstName      string
	LastName       string
	Phone          string
}

func (s *Store) CreateUser(ctx context.Context, p CreateUserParams) (User, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, hashed_password, first_name, last_name, phone) VALUES (?, ?, ?, ?, ?)",
		p.Email, p.HashedPassword, p.FirstName, p.LastName, nullString(p.Phone))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) SetUserPassword(ctx context.Context, id int64, hashedPassword string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET hashed_password = ?, updated_at = datetime('now') WHERE id = ?",
		hashedPassword, id)
	return err
}

func (s *Store) SetUserStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET stripe_customer_id = ?, updated_at = datetime('now') WHERE id = ?",
		customerID, id)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
