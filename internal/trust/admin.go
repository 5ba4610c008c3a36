package trust

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// ListUsers returns every user with moderation summary counts, newest first.
// It backs the admin user table.
func (s *Store) ListUsers(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.is_admin, u.is_suspended, u.created_at,
		       (SELECT COUNT(*) FROM reports r WHERE r.reported_id = u.id),
		       (SELECT COUNT(*) FROM blocks b WHERE b.user_id = u.id)
		FROM users u
		ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer rows.Close()

	var users []UserSummary
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email, &u.IsAdmin, &u.IsSuspended,
			&u.CreatedAt, &u.ReportsCount, &u.BlockedUsersCount); err != nil {
			return nil, unavailable("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list users", err)
	}
	return users, nil
}

// UserDetail returns the full moderation view of one user: reports with
// reporter identity, the users they blocked, and the users who blocked them.
func (s *Store) UserDetail(ctx context.Context, userID uuid.UUID) (*UserDetail, error) {
	var d UserDetail
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.is_admin, u.is_suspended, u.created_at,
		       u.year, u.gender,
		       (SELECT COUNT(*) FROM reports r WHERE r.reported_id = u.id),
		       (SELECT COUNT(*) FROM blocks b WHERE b.user_id = u.id)
		FROM users u
		WHERE u.id = $1`, userID).Scan(
		&d.ID, &d.DisplayName, &d.Email, &d.IsAdmin, &d.IsSuspended, &d.CreatedAt,
		&d.Year, &d.Gender, &d.ReportsCount, &d.BlockedUsersCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, unavailable("user detail", err)
	}

	d.Reports, err = s.reportsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.BlockedUsers, err = s.relatedUsers(ctx, `
		SELECT u.id, u.display_name, u.email
		FROM blocks b JOIN users u ON u.id = b.blocked_id
		WHERE b.user_id = $1
		ORDER BY b.created_at`, userID)
	if err != nil {
		return nil, err
	}
	d.BlockedBy, err = s.relatedUsers(ctx, `
		SELECT u.id, u.display_name, u.email
		FROM blocks b JOIN users u ON u.id = b.user_id
		WHERE b.blocked_id = $1
		ORDER BY b.created_at`, userID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) reportsFor(ctx context.Context, userID uuid.UUID) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.reported_at, u.id, u.display_name, u.email
		FROM reports r JOIN users u ON u.id = r.reporter_id
		WHERE r.reported_id = $1
		ORDER BY r.reported_at`, userID)
	if err != nil {
		return nil, unavailable("list reports", err)
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.ReportedAt,
			&r.Reporter.ID, &r.Reporter.DisplayName, &r.Reporter.Email); err != nil {
			return nil, unavailable("scan report", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *Store) relatedUsers(ctx context.Context, query string, userID uuid.UUID) ([]BasicUser, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, unavailable("list related users", err)
	}
	defer rows.Close()

	users := []BasicUser{}
	for rows.Next() {
		var u BasicUser
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Email); err != nil {
			return nil, unavailable("scan related user", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
