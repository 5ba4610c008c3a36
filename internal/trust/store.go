// Package trust provides PostgreSQL-backed storage for per-user moderation
// state: abuse reports, directional blocks, and the report-driven suspension
// flag. Every mutation runs in a single transaction that locks the affected
// user row, so readers never observe a report count and a suspension flag
// from different moments.
package trust

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSuspendThreshold is the report count at which a user is suspended.
const DefaultSuspendThreshold = 3

var (
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("trust: user not found")

	// ErrReportNotFound is returned when removing a report that is absent.
	ErrReportNotFound = errors.New("trust: report not found")

	// ErrSelfBlock is returned when a user attempts to block themself.
	ErrSelfBlock = errors.New("trust: cannot block self")

	// ErrUnavailable wraps storage-layer failures. Callers should retry
	// with backoff; everything else in this package is a caller error.
	ErrUnavailable = errors.New("trust: storage unavailable")
)

// ReportOutcome is the post-mutation state returned by report mutators so
// the admin UI can reconcile counters without a second read.
type ReportOutcome struct {
	ReportsCount int  `json:"reportsCount"`
	Suspended    bool `json:"isSuspended"`
}

// BasicUser identifies a user in admin views (reporter, blocked, blocked-by).
type BasicUser struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"fullName"`
	Email       string    `json:"email"`
}

// Report is a single abuse report with its reporter's identity.
type Report struct {
	ID         uuid.UUID `json:"id"`
	Reporter   BasicUser `json:"reporter"`
	ReportedAt time.Time `json:"reportedAt"`
}

// UserSummary is one row of the admin user list.
type UserSummary struct {
	ID                uuid.UUID `json:"id"`
	DisplayName       string    `json:"fullName"`
	Email             string    `json:"email"`
	IsAdmin           bool      `json:"isAdmin"`
	IsSuspended       bool      `json:"isSuspended"`
	ReportsCount      int       `json:"reportsCount"`
	BlockedUsersCount int       `json:"blockedUsersCount"`
	CreatedAt         time.Time `json:"createdAt"`
}

// UserDetail is the full moderation view of one user.
type UserDetail struct {
	UserSummary
	Year         string      `json:"year"`
	Gender       string      `json:"gender"`
	Reports      []Report    `json:"reports"`
	BlockedUsers []BasicUser `json:"blockedUsers"`
	BlockedBy    []BasicUser `json:"blockedBy"`
}

// Store manages trust records in PostgreSQL.
type Store struct {
	db        *sql.DB
	threshold int
}

// NewStore creates a trust store backed by the given database handle.
// A threshold <= 0 falls back to DefaultSuspendThreshold.
func NewStore(db *sql.DB, threshold int) *Store {
	if threshold <= 0 {
		threshold = DefaultSuspendThreshold
	}
	return &Store{db: db, threshold: threshold}
}

// suspendedByCount is the single suspension rule. Every mutator applies it
// inside its transaction so the flag can never drift from the report count.
func suspendedByCount(count, threshold int) bool {
	return count >= threshold
}

// IsEligible reports whether a user may connect, enqueue, or hold a session.
// A user is eligible iff they are not suspended.
func (s *Store) IsEligible(ctx context.Context, userID uuid.UUID) (bool, error) {
	var suspended bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_suspended FROM users WHERE id = $1`, userID).Scan(&suspended)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, unavailable("is eligible", err)
	}
	return !suspended, nil
}

// AddReport records a report by reporterID against reportedID and recomputes
// suspension. A reporter has at most one outstanding report per target; a
// repeat call refreshes the timestamp instead of duplicating.
func (s *Store) AddReport(ctx context.Context, reportedID, reporterID uuid.UUID) (ReportOutcome, error) {
	var out ReportOutcome
	err := s.withUserTx(ctx, reportedID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reports (id, reported_id, reporter_id, reported_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (reported_id, reporter_id)
			DO UPDATE SET reported_at = NOW()`,
			uuid.New(), reportedID, reporterID)
		if err != nil {
			return unavailable("insert report", err)
		}
		out, err = s.recompute(ctx, tx, reportedID)
		return err
	})
	return out, err
}

// RemoveReport deletes a single report by id and recomputes suspension,
// which may un-suspend the user.
func (s *Store) RemoveReport(ctx context.Context, userID, reportID uuid.UUID) (ReportOutcome, error) {
	var out ReportOutcome
	err := s.withUserTx(ctx, userID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM reports WHERE id = $1 AND reported_id = $2`, reportID, userID)
		if err != nil {
			return unavailable("delete report", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrReportNotFound
		}
		out, err = s.recompute(ctx, tx, userID)
		return err
	})
	return out, err
}

// Unsuspend clears all reports and lifts the suspension unconditionally.
// It is an administrative override, not merely threshold-driven.
func (s *Store) Unsuspend(ctx context.Context, userID uuid.UUID) (ReportOutcome, error) {
	var out ReportOutcome
	err := s.withUserTx(ctx, userID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reports WHERE reported_id = $1`, userID); err != nil {
			return unavailable("clear reports", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET is_suspended = FALSE WHERE id = $1`, userID); err != nil {
			return unavailable("lift suspension", err)
		}
		out = ReportOutcome{ReportsCount: 0, Suspended: false}
		return nil
	})
	return out, err
}

// Block records that userID never wants to be paired with targetID again.
// The relation is directional and set-idempotent.
func (s *Store) Block(ctx context.Context, userID, targetID uuid.UUID) error {
	if userID == targetID {
		return ErrSelfBlock
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)
		    AND EXISTS (SELECT 1 FROM users WHERE id = $2)`,
		userID, targetID).Scan(&exists)
	if err != nil {
		return unavailable("block lookup", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blocks (user_id, blocked_id) VALUES ($1, $2)
		ON CONFLICT (user_id, blocked_id) DO NOTHING`, userID, targetID)
	if err != nil {
		return unavailable("insert block", err)
	}
	return nil
}

// ClearBlocks removes every outbound block of userID and returns the
// remaining count (always zero on success).
func (s *Store) ClearBlocks(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE user_id = $1`, userID); err != nil {
		return 0, unavailable("clear blocks", err)
	}
	return 0, nil
}

// IsBlockedEitherWay reports whether a blocks b or b blocks a. The pairing
// engine consults it at match time only.
func (s *Store) IsBlockedEitherWay(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (user_id = $1 AND blocked_id = $2)
			   OR (user_id = $2 AND blocked_id = $1)
		)`, a, b).Scan(&blocked)
	if err != nil {
		return false, unavailable("block check", err)
	}
	return blocked, nil
}

// recompute recounts reports for userID and applies the suspension rule
// inside the caller's transaction.
func (s *Store) recompute(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (ReportOutcome, error) {
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE reported_id = $1`, userID).Scan(&count); err != nil {
		return ReportOutcome{}, unavailable("count reports", err)
	}
	suspended := suspendedByCount(count, s.threshold)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET is_suspended = $2 WHERE id = $1`, userID, suspended); err != nil {
		return ReportOutcome{}, unavailable("apply suspension", err)
	}
	return ReportOutcome{ReportsCount: count, Suspended: suspended}, nil
}

// withUserTx runs fn in a transaction that holds a row lock on the user,
// serializing all trust mutations for that user.
func (s *Store) withUserTx(ctx context.Context, userID uuid.UUID, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	var locked uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return unavailable("lock user", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *Store) requireUser(ctx context.Context, userID uuid.UUID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return unavailable("user lookup", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
