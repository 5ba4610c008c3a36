// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeStartChat = "start_chat"
	TypeStopChat  = "stop_chat"
	TypeMessage   = "message"
	TypeReport    = "report"
	TypeBlock     = "block"
	TypePing      = "ping"
)

// Server -> Client message types.
const (
	TypeReady       = "ready"
	TypeOnlineCount = "online_count"
	TypeStatus      = "status"
	TypeMatchFound  = "match_found"
	TypeChatEnded   = "chat_ended"
	TypeRateLimited = "rate_limited"
	TypeSuspended   = "suspended"
	TypeError       = "error"
	TypePong        = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// StartChatMsg is sent by the client to enter the waiting pool with their
// lobby preferences. Dual semantics: while searching it restates the current
// preferences; the server treats a repeat as already_waiting.
type StartChatMsg struct {
	Type       string `json:"type"`
	YearPref   string `json:"year_pref"`
	GenderPref string `json:"gender_pref"`
}

// StopChatMsg is sent by the client to leave the waiting pool, or to end
// the active chat session when one exists.
type StopChatMsg struct {
	Type string `json:"type"`
}

// ChatMsg is a text message sent by the client within a chat session.
type ChatMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ReportMsg is sent by the client to report the current chat partner.
type ReportMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// BlockMsg is sent by the client to block the current chat partner.
type BlockMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ReadyMsg is sent by the server once the connection is admitted.
type ReadyMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// OnlineCountMsg carries the current online user count across all servers.
type OnlineCountMsg struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// StatusMsg reflects the user's lobby status transition.
type StatusMsg struct {
	Type   string `json:"type"`
	Status string `json:"status"` // idle | searching | paired
}

// MatchFoundMsg is sent by the server when a compatible partner has been
// found and the chat session opened. Only the partner's attributes are
// revealed, never their identity.
type MatchFoundMsg struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	PartnerYear   string `json:"partner_year"`
	PartnerGender string `json:"partner_gender"`
}

// ServerChatMsg is a text message relayed by the server. Self is true on the
// sender's own echo.
type ServerChatMsg struct {
	Type string `json:"type"`
	Self bool   `json:"self,omitempty"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// ChatEndedMsg is sent by the server when the chat session closed. Reason is
// one of self_stop, peer_left, peer_disconnected, peer_suspended.
type ChatEndedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// SuspendedMsg is sent by the server before closing the connection of a user
// whose account got suspended.
type SuspendedMsg struct {
	Type string `json:"type"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeStartChat:
		var m StartChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopChat:
		var m StopChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeBlock:
		var m BlockMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
