// Package presence tracks which verified users currently hold an open
// connection and their lobby status, backed by Redis so every wsserver
// instance sees the same view:
//
//	Key: presence:online           -> Set of user IDs
//	Key: presence:user:<user_id>   -> Hash {status, server, connected_at, last_active}
//	TTL: 1 hour, refreshed on activity
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	onlineKey  = "presence:online"
	userPrefix = "presence:user:"

	// presenceTTL expires records of crashed servers that never ran
	// their disconnect path.
	presenceTTL = 1 * time.Hour

	// Lobby status values pushed to the client.
	StatusIdle      = "idle"
	StatusSearching = "searching"
	StatusPaired    = "paired"
)

// ErrSuspended is returned by Connect when the trust store marks the user
// ineligible. A suspended user's connection must not be admitted at all.
var ErrSuspended = errors.New("presence: user is suspended")

// Eligibility is the trust-store gate consulted on connect.
type Eligibility interface {
	IsEligible(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Registry manages online state in Redis for one wsserver instance.
type Registry struct {
	client     *redis.Client
	trust      Eligibility
	serverName string
}

// NewRegistry creates a presence registry using the given Redis client and
// eligibility gate. serverName identifies this wsserver instance.
func NewRegistry(client *redis.Client, trust Eligibility, serverName string) *Registry {
	return &Registry{client: client, trust: trust, serverName: serverName}
}

// Connect admits a user's connection: it fails with ErrSuspended for
// ineligible users, otherwise adds them to the online set with idle status.
func (r *Registry) Connect(ctx context.Context, userID uuid.UUID) error {
	eligible, err := r.trust.IsEligible(ctx, userID)
	if err != nil {
		return fmt.Errorf("presence: connect eligibility: %w", err)
	}
	if !eligible {
		return ErrSuspended
	}

	now := time.Now().Unix()
	key := userPrefix + userID.String()

	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, onlineKey, userID.String())
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":       StatusIdle,
		"server":       r.serverName,
		"connected_at": now,
		"last_active":  now,
	})
	pipe.Expire(ctx, key, presenceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Disconnect removes the user from the online set and deletes their record.
// The caller is responsible for cancelling any waiting entry and closing any
// active session afterwards.
func (r *Registry) Disconnect(ctx context.Context, userID uuid.UUID) error {
	pipe := r.client.Pipeline()
	pipe.SRem(ctx, onlineKey, userID.String())
	pipe.Del(ctx, userPrefix+userID.String())
	_, err := pipe.Exec(ctx)
	return err
}

// IsOnline reports whether the user currently holds an open connection.
func (r *Registry) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r.client.SIsMember(ctx, onlineKey, userID.String()).Result()
}

// OnlineCount returns the number of connected users across all servers.
func (r *Registry) OnlineCount(ctx context.Context) (int64, error) {
	return r.client.SCard(ctx, onlineKey).Result()
}

// SetStatus updates the user's lobby status and refreshes the record TTL.
func (r *Registry) SetStatus(ctx context.Context, userID uuid.UUID, status string) error {
	key := userPrefix + userID.String()
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, "status", status, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Status returns the user's lobby status, or StatusIdle if no record exists.
func (r *Registry) Status(ctx context.Context, userID uuid.UUID) (string, error) {
	status, err := r.client.HGet(ctx, userPrefix+userID.String(), "status").Result()
	if errors.Is(err, redis.Nil) {
		return StatusIdle, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// RefreshTTL extends the user's presence record, called on heartbeat.
func (r *Registry) RefreshTTL(ctx context.Context, userID uuid.UUID) error {
	return r.client.Expire(ctx, userPrefix+userID.String(), presenceTTL).Err()
}
