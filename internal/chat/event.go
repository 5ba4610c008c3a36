package chat

// Close reasons recorded on a session and relayed to both participants.
// The wsserver rewrites peer_left to self_stop on the side that initiated
// the close, so a participant never sees their own stop as a peer event.
const (
	ReasonPeerLeft         = "peer_left"
	ReasonPeerDisconnected = "peer_disconnected"
	ReasonPeerSuspended    = "peer_suspended"
	ReasonSelfStop         = "self_stop"
)

// Event is the payload published to NATS chat.<session_id> subjects
// for real-time communication between paired users.
type Event struct {
	Type   string `json:"type"`             // "message", "closed"
	From   string `json:"from"`             // sender's user ID ("" for sweeps)
	Text   string `json:"text,omitempty"`   // for message events
	Ts     int64  `json:"ts,omitempty"`     // unix timestamp for messages
	Reason string `json:"reason,omitempty"` // for closed events
}
