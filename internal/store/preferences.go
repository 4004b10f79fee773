package store

import (
	"context"
	"database/sql"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrDuplicatePriority means the (user, org, priority) slot is already taken.
var ErrDuplicatePriority = errors.New("store: preference priority already used")

const preferenceCols = `id, user_id, organisation_id, priority, site_id, resource_id,
	day_of_week, preferred_start_time, duration_minutes`

type CreatePreferenceParams struct {
	UserID             int64
	OrganisationID     int64
	Priority           int
	SiteID             sql.NullInt64
	ResourceID         sql.NullInt64
	DayOfWeek          sql.NullInt64
	PreferredStartTime sql.NullString
	DurationMinutes    int
}

func (s *Store) CreatePreference(ctx context.Context, p CreatePreferenceParams) (UserPreference, error) {
	duration := p.DurationMinutes
	if duration == 0 {
		duration = 60
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO user_preferences
		(user_id, organisation_id, priority, site_id, resource_id, day_of_week, preferred_start_time, duration_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.OrganisationID, p.Priority, p.SiteID, p.ResourceID,
		p.DayOfWeek, p.PreferredStartTime, duration)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return UserPreference{}, ErrDuplicatePriority
		}
		return UserPreference{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return UserPreference{}, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+preferenceCols+" FROM user_preferences WHERE id = ?", id)
	return scanPreference(row)
}

func scanPreference(row *sql.Row) (UserPreference, error) {
	var p UserPreference
	err := row.Scan(&p.ID, &p.UserID, &p.OrganisationID, &p.Priority, &p.SiteID,
		&p.ResourceID, &p.DayOfWeek, &p.PreferredStartTime, &p.DurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return UserPreference{}, ErrNotFound
	}
	return p, err
}

func (s *Store) ListPreferences(ctx context.Context, userID, organisationID int64) ([]UserPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+preferenceCols+" FROM user_preferences WHERE user_id = ? AND organisation_id = ? ORDER BY priority",
		userID, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []UserPreference
	for rows.Next() {
		var p UserPreference
		if err := rows.Scan(&p.ID, &p.UserID, &p.OrganisationID, &p.Priority, &p.SiteID,
			&p.ResourceID, &p.DayOfWeek, &p.PreferredStartTime, &p.DurationMinutes); err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func (s *Store) DeletePreference(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM user_preferences WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
