// Package chat manages one-to-one chat sessions between paired users. State
// lives in Redis so any wsserver instance can serve either participant:
//
//	Key: chatsession:<session_id>     -> Hash {user_a, user_b, status, created_at, closed_at, close_reason}
//	Key: chatsession:user:<user_id>   -> active session ID for the user
//
// A user holds at most one active session; the open script enforces this
// atomically on the user index keys.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	SessionPrefix   = "chatsession:"
	UserIndexPrefix = "chatsession:user:"

	// SessionTTL bounds abandoned sessions whose close path never ran.
	SessionTTL = 2 * time.Hour

	StatusActive = "active"
	StatusClosed = "closed"
)

var (
	// ErrConflict is returned by Open when either user already holds an
	// active session.
	ErrConflict = errors.New("chat: user already in an active session")

	// ErrSessionNotFound is returned when the session ID resolves to nothing.
	ErrSessionNotFound = errors.New("chat: session not found")
)

// Session is a chat session record.
type Session struct {
	ID          string
	UserA       uuid.UUID
	UserB       uuid.UUID
	Status      string
	CreatedAt   int64
	ClosedAt    int64
	CloseReason string
}

// Partner returns the other participant's ID, or uuid.Nil for non-participants.
func (s *Session) Partner(userID uuid.UUID) uuid.UUID {
	switch userID {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	}
	return uuid.Nil
}

// IsParticipant reports whether the user belongs to this session.
func (s *Session) IsParticipant(userID uuid.UUID) bool {
	return userID == s.UserA || userID == s.UserB
}

// Store manages chat session state in Redis.
type Store struct {
	rdb         *redis.Client
	openScript  *redis.Script
	closeScript *redis.Script
}

// NewStore creates a chat store backed by Redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:         rdb,
		openScript:  redis.NewScript(openSessionLua),
		closeScript: redis.NewScript(closeSessionLua),
	}
}

// Open atomically creates an active session for two users. It fails with
// ErrConflict if either user already has an active session, leaving no
// partial state behind.
func (s *Store) Open(ctx context.Context, a, b uuid.UUID) (string, error) {
	sessionID := uuid.NewString()
	keys := []string{
		SessionPrefix + sessionID,
		UserIndexPrefix + a.String(),
		UserIndexPrefix + b.String(),
	}
	res, err := s.openScript.Run(ctx, s.rdb,
		keys,
		sessionID, a.String(), b.String(),
		time.Now().Unix(), int(SessionTTL.Seconds()),
	).Int()
	if err != nil {
		return "", fmt.Errorf("chat: open session: %w", err)
	}
	if res != 1 {
		return "", ErrConflict
	}
	return sessionID, nil
}

// Close transitions the session to closed with the given reason and clears
// both user index entries. Closing an already-closed or missing session is
// an idempotent no-op; the bool reports whether this call did the closing.
func (s *Store) Close(ctx context.Context, sessionID, reason string) (bool, error) {
	res, err := s.closeScript.Run(ctx, s.rdb,
		[]string{SessionPrefix + sessionID},
		reason, time.Now().Unix(), UserIndexPrefix,
	).Int()
	if err != nil {
		return false, fmt.Errorf("chat: close session: %w", err)
	}
	return res == 1, nil
}

// Get retrieves a session. Returns ErrSessionNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	result, err := s.rdb.HGetAll(ctx, SessionPrefix+sessionID).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrSessionNotFound
	}

	userA, err := uuid.Parse(result["user_a"])
	if err != nil {
		return nil, fmt.Errorf("chat: corrupt session %s: %w", sessionID, err)
	}
	userB, err := uuid.Parse(result["user_b"])
	if err != nil {
		return nil, fmt.Errorf("chat: corrupt session %s: %w", sessionID, err)
	}
	createdAt, _ := strconv.ParseInt(result["created_at"], 10, 64)
	closedAt, _ := strconv.ParseInt(result["closed_at"], 10, 64)

	return &Session{
		ID:          sessionID,
		UserA:       userA,
		UserB:       userB,
		Status:      result["status"],
		CreatedAt:   createdAt,
		ClosedAt:    closedAt,
		CloseReason: result["close_reason"],
	}, nil
}

// ActiveSessionID returns the user's active session ID, or "" if none.
func (s *Store) ActiveSessionID(ctx context.Context, userID uuid.UUID) (string, error) {
	id, err := s.rdb.Get(ctx, UserIndexPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// openSessionLua creates the session hash and both user index entries only
// if neither user currently has an active session. Returns 1 on success,
// 0 on conflict.
const openSessionLua = `
local session_key = KEYS[1]
local user_a_key = KEYS[2]
local user_b_key = KEYS[3]
local session_id = ARGV[1]
local user_a = ARGV[2]
local user_b = ARGV[3]
local now = ARGV[4]
local ttl = tonumber(ARGV[5])

if redis.call('EXISTS', user_a_key) == 1 then return 0 end
if redis.call('EXISTS', user_b_key) == 1 then return 0 end

redis.call('HSET', session_key,
    'user_a', user_a,
    'user_b', user_b,
    'status', 'active',
    'created_at', now,
    'closed_at', 0,
    'close_reason', '')
redis.call('EXPIRE', session_key, ttl)
redis.call('SET', user_a_key, session_id, 'EX', ttl)
redis.call('SET', user_b_key, session_id, 'EX', ttl)
return 1
`

// closeSessionLua marks the session closed and deletes both user index
// entries. Returns 1 if this call closed it, 0 if it was already closed
// or missing. The first close reason wins.
const closeSessionLua = `
local session_key = KEYS[1]
local reason = ARGV[1]
local now = ARGV[2]
local user_prefix = ARGV[3]

local status = redis.call('HGET', session_key, 'status')
if not status or status ~= 'active' then return 0 end

redis.call('HSET', session_key, 'status', 'closed', 'closed_at', now, 'close_reason', reason)

local user_a = redis.call('HGET', session_key, 'user_a')
local user_b = redis.call('HGET', session_key, 'user_b')
redis.call('DEL', user_prefix .. user_a)
redis.call('DEL', user_prefix .. user_b)
return 1
`
