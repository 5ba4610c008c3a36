package matching

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyWaiting is returned when a user already has a pool entry.
	ErrAlreadyWaiting = errors.New("matching: already waiting")

	// ErrAlreadyGone is returned by Claim when either entry was removed
	// first by a concurrent cancel, disconnect, or competing pairing.
	ErrAlreadyGone = errors.New("matching: entry already gone")
)

// Entry is one user waiting for a match. Entries are immutable once
// enqueued; removal from the pool is the single source of truth for
// cancellation.
type Entry struct {
	UserID     uuid.UUID
	Year       Year
	Gender     Gender
	YearPref   Year
	GenderPref Gender
	EnqueuedAt time.Time
}

// bucketKey groups entries by the waiter's own attributes, so a seeker with
// concrete preferences reads a single bucket instead of scanning the pool.
type bucketKey struct {
	year   Year
	gender Gender
}

// Pool is the concurrency-safe waiting pool. Claiming an entry is an atomic
// removal under the pool mutex — never copy-then-check — so a user can never
// be handed to two pairings.
type Pool struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	buckets map[bucketKey]map[uuid.UUID]*Entry
}

// NewPool creates an empty waiting pool.
func NewPool() *Pool {
	return &Pool{
		entries: make(map[uuid.UUID]*Entry),
		buckets: make(map[bucketKey]map[uuid.UUID]*Entry),
	}
}

// Enqueue adds an entry, stamping EnqueuedAt if unset. It fails with
// ErrAlreadyWaiting if the user already has an entry.
func (p *Pool) Enqueue(e *Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[e.UserID]; ok {
		return ErrAlreadyWaiting
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	p.insertLocked(e)
	return nil
}

// Restore re-adds an entry that lost a claim race, keeping its original
// EnqueuedAt so the user does not lose their place in line.
func (p *Pool) Restore(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[e.UserID]; ok {
		return
	}
	p.insertLocked(e)
}

// Cancel removes the user's entry if present. It is an idempotent no-op
// otherwise and reports whether an entry was removed.
func (p *Pool) Cancel(userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(userID)
}

// Claim atomically removes both entries, or neither. A pairing attempt that
// loses the race for either entry observes ErrAlreadyGone and must retry
// from candidate selection.
func (p *Pool) Claim(a, b uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[a]; !ok {
		return ErrAlreadyGone
	}
	if _, ok := p.entries[b]; !ok {
		return ErrAlreadyGone
	}
	p.removeLocked(a)
	p.removeLocked(b)
	return nil
}

// Contains reports whether the user currently has a waiting entry.
func (p *Pool) Contains(userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[userID]
	return ok
}

// Len returns the number of waiting entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Candidates returns the entries compatible with e on both axes in both
// directions, oldest first. Concrete preferences read only the matching
// buckets; Random/Any widen the scan. Block and eligibility checks are the
// caller's job — they need I/O and must not run under the pool lock.
func (p *Pool) Candidates(e *Entry) []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*Entry
	for key, bucket := range p.buckets {
		if !e.YearPref.Matches(key.year) || !e.GenderPref.Matches(key.gender) {
			continue
		}
		for id, cand := range bucket {
			if id == e.UserID {
				continue
			}
			if cand.YearPref.Matches(e.Year) && cand.GenderPref.Matches(e.Gender) {
				out = append(out, cand)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// Snapshot returns all entries ordered by enqueue time (oldest first). The
// slice is safe to iterate without the lock; entries may be claimed away
// concurrently, which Claim detects.
func (p *Pool) Snapshot() []*Entry {
	p.mu.Lock()
	out := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

func (p *Pool) insertLocked(e *Entry) {
	p.entries[e.UserID] = e
	key := bucketKey{year: e.Year, gender: e.Gender}
	bucket, ok := p.buckets[key]
	if !ok {
		bucket = make(map[uuid.UUID]*Entry)
		p.buckets[key] = bucket
	}
	bucket[e.UserID] = e
}

func (p *Pool) removeLocked(userID uuid.UUID) bool {
	e, ok := p.entries[userID]
	if !ok {
		return false
	}
	delete(p.entries, userID)
	key := bucketKey{year: e.Year, gender: e.Gender}
	if bucket, ok := p.buckets[key]; ok {
		delete(bucket, userID)
		if len(bucket) == 0 {
			delete(p.buckets, key)
		}
	}
	return true
}
