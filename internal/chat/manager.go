package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotActive is returned when sending into a closed session.
	ErrNotActive = errors.New("chat: session is not active")

	// ErrNotParticipant is returned when a user acts on a session they
	// do not belong to.
	ErrNotParticipant = errors.New("chat: user is not a participant")
)

// Publisher delivers chat events to both participants' servers.
type Publisher interface {
	PublishChatEvent(sessionID string, data []byte) error
}

// Manager layers relay and close semantics over the session store.
type Manager struct {
	store *Store
	pub   Publisher
}

// NewManager creates a chat manager over the given store and publisher.
func NewManager(store *Store, pub Publisher) *Manager {
	return &Manager{store: store, pub: pub}
}

// Open creates an active session for two users. See Store.Open.
func (m *Manager) Open(ctx context.Context, a, b uuid.UUID) (string, error) {
	return m.store.Open(ctx, a, b)
}

// Get retrieves a session record.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Get(ctx, sessionID)
}

// ActiveSessionID returns the user's active session ID, or "" if none.
func (m *Manager) ActiveSessionID(ctx context.Context, userID uuid.UUID) (string, error) {
	return m.store.ActiveSessionID(ctx, userID)
}

// Send validates and relays a message from a participant into their active
// session. Delivery to both ends (sender echo included) goes through the
// chat subject.
func (m *Manager) Send(ctx context.Context, sessionID string, from uuid.UUID, text string) error {
	if err := ValidateMessage(text); err != nil {
		return err
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsParticipant(from) {
		return ErrNotParticipant
	}
	if sess.Status != StatusActive {
		return ErrNotActive
	}

	return m.publish(sessionID, &Event{
		Type: "message",
		From: from.String(),
		Text: text,
		Ts:   time.Now().Unix(),
	})
}

// Close ends a session with the given reason and notifies both participants.
// byID identifies the initiator (uuid.Nil for system-initiated closes) and is
// carried in the event so each wsserver can tell its own user's stop apart
// from the peer's. Closing twice is a no-op; only the first close publishes.
func (m *Manager) Close(ctx context.Context, sessionID string, byID uuid.UUID, reason string) error {
	closed, err := m.store.Close(ctx, sessionID, reason)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}

	var from string
	if byID != uuid.Nil {
		from = byID.String()
	}
	return m.publish(sessionID, &Event{
		Type:   "closed",
		From:   from,
		Reason: reason,
		Ts:     time.Now().Unix(),
	})
}

// CloseForUser closes the user's active session, if any, with the given
// reason. Used when a participant disconnects or is suspended.
func (m *Manager) CloseForUser(ctx context.Context, userID uuid.UUID, reason string) error {
	sessionID, err := m.store.ActiveSessionID(ctx, userID)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	return m.Close(ctx, sessionID, userID, reason)
}

func (m *Manager) publish(sessionID string, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("chat: marshal event: %w", err)
	}
	if err := m.pub.PublishChatEvent(sessionID, data); err != nil {
		log.Printf("[chat] publish %s event for session %s: %v", ev.Type, sessionID, err)
		return err
	}
	return nil
}
