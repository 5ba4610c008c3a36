// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the Guftagu services. It handles connection lifecycle, subject
// subscriptions, and convenience methods for the matchmaking, chat, and
// trust event channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across Guftagu services.
const (
	SubjectMatchRequest  = "match.request"
	SubjectMatchCancel   = "match.cancel"
	SubjectMatchFound    = "match.found"    // + .<user_id>
	SubjectMatchRejected = "match.rejected" // + .<user_id>
	SubjectChat          = "chat"           // + .<session_id>
	SubjectSuspended     = "trust.suspended"
)

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "guftagu",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishMatchRequest publishes a match request from a wsserver.
func (c *Client) PublishMatchRequest(data []byte) error {
	return c.Publish(SubjectMatchRequest, data)
}

// SubscribeMatchRequest subscribes to match requests (used by the matcher).
func (c *Client) SubscribeMatchRequest(handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchRequest, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishMatchCancel publishes a match cancellation request.
func (c *Client) PublishMatchCancel(data []byte) error {
	return c.Publish(SubjectMatchCancel, data)
}

// SubscribeMatchCancel subscribes to match cancellations (used by the matcher).
func (c *Client) SubscribeMatchCancel(handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchCancel, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishMatchFound publishes a match result to one user's subject.
func (c *Client) PublishMatchFound(userID string, data []byte) error {
	return c.Publish(SubjectMatchFound+"."+userID, data)
}

// SubscribeMatchFound subscribes to match results for a user.
func (c *Client) SubscribeMatchFound(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchFound+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeMatchFound drops the match result subscription for a user.
func (c *Client) UnsubscribeMatchFound(userID string) error {
	return c.unsubscribe(SubjectMatchFound + "." + userID)
}

// PublishMatchRejected tells one user why their match request was refused.
func (c *Client) PublishMatchRejected(userID string, data []byte) error {
	return c.Publish(SubjectMatchRejected+"."+userID, data)
}

// SubscribeMatchRejected subscribes to match rejections for a user.
func (c *Client) SubscribeMatchRejected(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchRejected+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeMatchRejected drops the match rejection subscription for a user.
func (c *Client) UnsubscribeMatchRejected(userID string) error {
	return c.unsubscribe(SubjectMatchRejected + "." + userID)
}

// PublishChatEvent publishes an event to the chat.<sessionID> subject.
func (c *Client) PublishChatEvent(sessionID string, data []byte) error {
	return c.Publish(SubjectChat+"."+sessionID, data)
}

// SubscribeToChat subscribes to the chat.<sessionID> subject for a specific
// user. The subscription is keyed by userID so both participants can be
// served by the same wsserver without overwriting each other.
func (c *Client) SubscribeToChat(sessionID, userID string, handler func(data []byte)) error {
	subject := SubjectChat + "." + sessionID
	key := "chatsub:" + userID
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeFromChat drops a user's chat subscription.
func (c *Client) UnsubscribeFromChat(userID string) error {
	return c.unsubscribe("chatsub:" + userID)
}

// PublishSuspended broadcasts that a user's suspension took effect, so the
// matcher can evict them from the pool and close their active session.
func (c *Client) PublishSuspended(data []byte) error {
	return c.Publish(SubjectSuspended, data)
}

// SubscribeSuspended subscribes to suspension broadcasts.
func (c *Client) SubscribeSuspended(handler func(data []byte)) error {
	return c.Subscribe(SubjectSuspended, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *Client) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
