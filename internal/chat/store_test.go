package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestStore connects to a local Redis instance and clears chat session
// keys. Tests that call this helper require a running Redis on
// localhost:6379.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cleanup := func() {
		iter := client.Scan(ctx, 0, SessionPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})

	return NewStore(client)
}

func TestOpenAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	sessionID, err := s.Open(ctx, a, b)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != StatusActive {
		t.Errorf("status = %q, want active", sess.Status)
	}
	if !sess.IsParticipant(a) || !sess.IsParticipant(b) {
		t.Error("both users should be participants")
	}
	if sess.Partner(a) != b || sess.Partner(b) != a {
		t.Error("Partner should return the other participant")
	}
	if sess.Partner(uuid.New()) != uuid.Nil {
		t.Error("Partner for a stranger should be Nil")
	}

	for _, u := range []uuid.UUID{a, b} {
		id, err := s.ActiveSessionID(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		if id != sessionID {
			t.Errorf("ActiveSessionID(%s) = %q, want %q", u, id, sessionID)
		}
	}
}

func TestOpen_ConflictLeavesNoPartialState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	first, err := s.Open(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}

	// b is busy: opening b/c must fail and must not index c.
	if _, err := s.Open(ctx, c, b); !errors.Is(err, ErrConflict) {
		t.Fatalf("second open: got %v, want ErrConflict", err)
	}

	id, err := s.ActiveSessionID(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Error("failed open must not leave an index entry for the free user")
	}
	id, err = s.ActiveSessionID(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if id != first {
		t.Error("failed open must not disturb the existing session")
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	sessionID, err := s.Open(ctx, a, b)
	if err != nil {
		t.Fatal(err)
	}

	closed, err := s.Close(ctx, sessionID, ReasonPeerLeft)
	if err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Fatal("first close should report having closed the session")
	}

	// The first reason wins; later closes are no-ops.
	closed, err = s.Close(ctx, sessionID, ReasonPeerDisconnected)
	if err != nil {
		t.Fatal(err)
	}
	if closed {
		t.Error("second close should be a no-op")
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != StatusClosed {
		t.Errorf("status = %q, want closed", sess.Status)
	}
	if sess.CloseReason != ReasonPeerLeft {
		t.Errorf("close reason = %q, want %q", sess.CloseReason, ReasonPeerLeft)
	}

	// Both users are free to pair again.
	for _, u := range []uuid.UUID{a, b} {
		id, err := s.ActiveSessionID(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		if id != "" {
			t.Errorf("closed session should clear the index for %s", u)
		}
	}
}

func TestGet_Missing(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get(context.Background(), uuid.NewString()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get on missing session: got %v, want ErrSessionNotFound", err)
	}
}
