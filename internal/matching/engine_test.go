package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/guftagu/campus-chat/internal/chat"
)

// stubTrust is an in-memory TrustChecker for engine tests. err simulates a
// storage outage on every call.
type stubTrust struct {
	suspended map[uuid.UUID]bool
	blocked   map[[2]uuid.UUID]bool
	err       error
}

func newStubTrust() *stubTrust {
	return &stubTrust{
		suspended: make(map[uuid.UUID]bool),
		blocked:   make(map[[2]uuid.UUID]bool),
	}
}

func (s *stubTrust) IsEligible(ctx context.Context, userID uuid.UUID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return !s.suspended[userID], nil
}

func (s *stubTrust) IsBlockedEitherWay(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.blocked[[2]uuid.UUID{a, b}] || s.blocked[[2]uuid.UUID{b, a}], nil
}

func (s *stubTrust) block(a, b uuid.UUID) {
	s.blocked[[2]uuid.UUID{a, b}] = true
}

// stubOpener counts sessions and can be forced to fail. inSession marks
// users that already hold an active session elsewhere.
type stubOpener struct {
	opened    int
	fail      error
	inSession map[uuid.UUID]string
	lookupErr error
}

func (o *stubOpener) Open(ctx context.Context, a, b uuid.UUID) (string, error) {
	if o.fail != nil {
		return "", o.fail
	}
	o.opened++
	return uuid.NewString(), nil
}

func (o *stubOpener) ActiveSessionID(ctx context.Context, userID uuid.UUID) (string, error) {
	if o.lookupErr != nil {
		return "", o.lookupErr
	}
	return o.inSession[userID], nil
}

func (o *stubOpener) CloseForUser(ctx context.Context, userID uuid.UUID, reason string) error {
	delete(o.inSession, userID)
	return nil
}

func TestEngine_TryMatchCompatiblePair(t *testing.T) {
	pool := NewPool()
	trust := newStubTrust()
	opener := &stubOpener{}
	en := NewEngine(pool, trust, opener)

	// B waits with wildcard preferences; A arrives wanting any 2nd-year.
	b := entry(YearSecond, GenderFemale, YearRandom, GenderAny)
	if err := pool.Enqueue(b); err != nil {
		t.Fatal(err)
	}
	a := entry(YearThird, GenderMale, YearSecond, GenderAny)
	if err := pool.Enqueue(a); err != nil {
		t.Fatal(err)
	}

	m, err := en.TryMatch(context.Background(), a)
	if err != nil {
		t.Fatalf("TryMatch failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.SessionID == "" {
		t.Error("match should carry a session ID")
	}
	if pool.Len() != 0 {
		t.Errorf("both entries should be consumed, pool has %d", pool.Len())
	}
}

func TestEngine_BlockPreventsPairing(t *testing.T) {
	pool := NewPool()
	trust := newStubTrust()
	en := NewEngine(pool, trust, &stubOpener{})

	b := entry(YearSecond, GenderFemale, YearRandom, GenderAny)
	a := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	trust.block(b.UserID, a.UserID)
	if err := pool.Enqueue(b); err != nil {
		t.Fatal(err)
	}
	if err := pool.Enqueue(a); err != nil {
		t.Fatal(err)
	}

	m, err := en.TryMatch(context.Background(), a)
	if err != nil {
		t.Fatalf("TryMatch failed: %v", err)
	}
	if m != nil {
		t.Fatal("blocked users must never be paired")
	}
	if pool.Len() != 2 {
		t.Errorf("unmatched entries should stay queued, pool has %d", pool.Len())
	}
}

func TestEngine_SuspendedCandidateEvicted(t *testing.T) {
	pool := NewPool()
	trust := newStubTrust()
	en := NewEngine(pool, trust, &stubOpener{})

	bad := entry(YearSecond, GenderFemale, YearRandom, GenderAny)
	trust.suspended[bad.UserID] = true
	if err := pool.Enqueue(bad); err != nil {
		t.Fatal(err)
	}
	a := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	if err := pool.Enqueue(a); err != nil {
		t.Fatal(err)
	}

	m, err := en.TryMatch(context.Background(), a)
	if err != nil {
		t.Fatalf("TryMatch failed: %v", err)
	}
	if m != nil {
		t.Fatal("suspended candidate must not be matched")
	}
	if pool.Contains(bad.UserID) {
		t.Error("suspended candidate should be evicted from the pool")
	}
	if !pool.Contains(a.UserID) {
		t.Error("the seeker should remain queued")
	}
}

func TestEngine_TieBreakOldestCandidate(t *testing.T) {
	pool := NewPool()
	en := NewEngine(pool, newStubTrust(), &stubOpener{})

	first := entry(YearSecond, GenderFemale, YearRandom, GenderAny)
	first.EnqueuedAt = time.Now().Add(-2 * time.Minute)
	second := entry(YearSecond, GenderFemale, YearRandom, GenderAny)
	second.EnqueuedAt = time.Now().Add(-1 * time.Minute)
	if err := pool.Enqueue(first); err != nil {
		t.Fatal(err)
	}
	if err := pool.Enqueue(second); err != nil {
		t.Fatal(err)
	}

	a := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	if err := pool.Enqueue(a); err != nil {
		t.Fatal(err)
	}

	m, err := en.TryMatch(context.Background(), a)
	if err != nil || m == nil {
		t.Fatalf("expected a match, got m=%v err=%v", m, err)
	}
	if m.B.UserID != first.UserID {
		t.Error("the longest-waiting compatible candidate should win")
	}
}

func TestEngine_OpenFailureRestoresBoth(t *testing.T) {
	pool := NewPool()
	opener := &stubOpener{fail: errors.New("session conflict")}
	en := NewEngine(pool, newStubTrust(), opener)

	b := entry(YearSecond, GenderFemale, YearRandom, GenderAny)
	b.EnqueuedAt = time.Now().Add(-time.Minute)
	a := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	if err := pool.Enqueue(b); err != nil {
		t.Fatal(err)
	}
	if err := pool.Enqueue(a); err != nil {
		t.Fatal(err)
	}

	if _, err := en.TryMatch(context.Background(), a); err == nil {
		t.Fatal("open failure should surface to the caller")
	}
	if !pool.Contains(a.UserID) || !pool.Contains(b.UserID) {
		t.Error("both entries must be restored after a failed open")
	}
	if pool.Snapshot()[0].UserID != b.UserID {
		t.Error("restored entries keep their original positions")
	}
}

func TestEngine_OpenConflictDropsInSessionUser(t *testing.T) {
	pool := NewPool()

	// stale holds an active session (e.g. a request raced past the admit
	// gate), so every open against them is refused.
	stale := entry(YearSecond, GenderFemale, YearRandom, GenderAny)
	stale.EnqueuedAt = time.Now().Add(-time.Minute)
	a := entry(YearSecond, GenderMale, YearRandom, GenderAny)

	opener := &stubOpener{
		fail:      chat.ErrConflict,
		inSession: map[uuid.UUID]string{stale.UserID: uuid.NewString()},
	}
	en := NewEngine(pool, newStubTrust(), opener)
	if err := pool.Enqueue(stale); err != nil {
		t.Fatal(err)
	}
	if err := pool.Enqueue(a); err != nil {
		t.Fatal(err)
	}

	if _, err := en.TryMatch(context.Background(), a); err == nil {
		t.Fatal("conflicting open should surface an error")
	}
	if pool.Contains(stale.UserID) {
		t.Error("a user holding an active session must not re-enter the pool")
	}
	if !pool.Contains(a.UserID) {
		t.Error("the session-free user should be queued again")
	}

	// The next sweep leaves the survivor waiting instead of re-claiming a
	// pair that can never open.
	if matches := en.Sweep(context.Background(), nil); len(matches) != 0 {
		t.Errorf("no matches expected, got %d", len(matches))
	}
	if opener.opened != 0 {
		t.Errorf("no session should have been opened, got %d", opener.opened)
	}
	if !pool.Contains(a.UserID) {
		t.Error("the waiting user should survive the sweep")
	}
}

func TestEngine_SweepPairsFloorHalf(t *testing.T) {
	pool := NewPool()
	opener := &stubOpener{}
	en := NewEngine(pool, newStubTrust(), opener)

	// Five mutually compatible users: exactly two pairs, one left over.
	for i := 0; i < 5; i++ {
		e := entry(YearSecond, GenderMale, YearRandom, GenderAny)
		e.EnqueuedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
		if err := pool.Enqueue(e); err != nil {
			t.Fatal(err)
		}
	}

	matches := en.Sweep(context.Background(), nil)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches from 5 users, got %d", len(matches))
	}
	if opener.opened != 2 {
		t.Errorf("expected 2 sessions opened, got %d", opener.opened)
	}
	if pool.Len() != 1 {
		t.Errorf("one user should remain waiting, got %d", pool.Len())
	}
}

func TestEngine_SweepEvictsOffline(t *testing.T) {
	pool := NewPool()
	en := NewEngine(pool, newStubTrust(), &stubOpener{})

	gone := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	if err := pool.Enqueue(gone); err != nil {
		t.Fatal(err)
	}

	matches := en.Sweep(context.Background(), func(id uuid.UUID) bool {
		return id != gone.UserID
	})
	if len(matches) != 0 {
		t.Errorf("no matches expected, got %d", len(matches))
	}
	if pool.Contains(gone.UserID) {
		t.Error("offline waiter should be evicted by the sweep")
	}
}
