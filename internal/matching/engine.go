package matching

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// TrustChecker is the slice of the trust store the engine consults at match
// time. Suspension and blocks are re-checked per candidate so a mutation is
// visible to the next scan at latest.
type TrustChecker interface {
	IsEligible(ctx context.Context, userID uuid.UUID) (bool, error)
	IsBlockedEitherWay(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// SessionOpener creates the paired session once both entries are claimed.
// It must refuse (with an error) if either user already holds an active
// session, so a claim race can never produce a second session for a user.
// ActiveSessionID lets the engine tell, after a refused open, which of the
// claimed users actually holds the conflicting session.
type SessionOpener interface {
	Open(ctx context.Context, a, b uuid.UUID) (string, error)
	ActiveSessionID(ctx context.Context, userID uuid.UUID) (string, error)
}

// Match is a formed pairing: a session plus the two consumed entries.
type Match struct {
	SessionID string
	A, B      *Entry
}

// Engine pairs waiting users. Candidate selection is oldest-waiting-first on
// both sides: the sweep visits entries FIFO, and among compatible candidates
// the earliest EnqueuedAt wins.
type Engine struct {
	pool   *Pool
	trust  TrustChecker
	opener SessionOpener
}

// NewEngine creates a pairing engine over the given pool.
func NewEngine(pool *Pool, trust TrustChecker, opener SessionOpener) *Engine {
	return &Engine{pool: pool, trust: trust, opener: opener}
}

// TryMatch attempts to pair entry with a compatible waiting user. It returns
// (nil, nil) when no candidate qualifies — the entry simply stays queued.
// Losing a concurrent claim on a candidate moves on to the next; losing the
// claim on entry itself aborts the attempt (someone else consumed it).
func (en *Engine) TryMatch(ctx context.Context, entry *Entry) (*Match, error) {
	for _, cand := range en.pool.Candidates(entry) {
		blocked, err := en.trust.IsBlockedEitherWay(ctx, entry.UserID, cand.UserID)
		if err != nil {
			return nil, err
		}
		if blocked {
			continue
		}

		eligible, err := en.trust.IsEligible(ctx, cand.UserID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			// Candidate was suspended while waiting: their entry is dead.
			en.pool.Cancel(cand.UserID)
			continue
		}

		if err := en.pool.Claim(entry.UserID, cand.UserID); err != nil {
			if !en.pool.Contains(entry.UserID) {
				// Our entry was consumed by a concurrent pairing or cancel.
				return nil, nil
			}
			continue // candidate vanished, keep scanning
		}

		sessionID, err := en.opener.Open(ctx, entry.UserID, cand.UserID)
		if err != nil {
			// No partial session exists. Re-queue only the users that are
			// genuinely session-free: a refused open means one of them
			// already holds an active session, and that user must never
			// hold a waiting entry at the same time.
			log.Printf("[matcher] open session %s/%s: %v", entry.UserID, cand.UserID, err)
			en.restoreIfSessionFree(ctx, entry)
			en.restoreIfSessionFree(ctx, cand)
			return nil, err
		}

		return &Match{SessionID: sessionID, A: entry, B: cand}, nil
	}
	return nil, nil
}

// restoreIfSessionFree puts a claimed entry back into the pool with its
// original position, unless its user already holds an active session. When
// the session lookup itself fails the entry is restored anyway; a repeat
// conflict re-runs the check.
func (en *Engine) restoreIfSessionFree(ctx context.Context, e *Entry) {
	active, err := en.opener.ActiveSessionID(ctx, e.UserID)
	if err == nil && active != "" {
		return
	}
	en.pool.Restore(e)
}

// Sweep runs one maintenance pass over the pool, oldest entries first:
// entries whose user became ineligible are evicted, and every surviving
// entry gets a match attempt (new arrivals may have made old entries
// matchable). Matches formed are returned for publication.
func (en *Engine) Sweep(ctx context.Context, stillOnline func(uuid.UUID) bool) []*Match {
	var matches []*Match
	for _, entry := range en.pool.Snapshot() {
		if !en.pool.Contains(entry.UserID) {
			continue // claimed earlier in this pass
		}
		if stillOnline != nil && !stillOnline(entry.UserID) {
			en.pool.Cancel(entry.UserID)
			continue
		}

		eligible, err := en.trust.IsEligible(ctx, entry.UserID)
		if err != nil {
			continue // transient storage error: entry stays queued
		}
		if !eligible {
			en.pool.Cancel(entry.UserID)
			continue
		}

		m, err := en.TryMatch(ctx, entry)
		if err != nil || m == nil {
			continue
		}
		matches = append(matches, m)
	}
	return matches
}
