package matching

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guftagu/campus-chat/internal/chat"
	"github.com/guftagu/campus-chat/internal/messaging"
	"github.com/guftagu/campus-chat/internal/metrics"
	"github.com/guftagu/campus-chat/internal/presence"
)

const sweepInterval = 2 * time.Second

// Rejection codes published on match.rejected.<user_id>.
const (
	RejectSuspended        = "suspended"
	RejectAlreadyWaiting   = "already_waiting"
	RejectAlreadyInSession = "already_in_session"
	RejectInvalidRequest   = "invalid_request"
	RejectUnavailable      = "unavailable"
)

// SessionManager is the slice of the chat manager the matching actor uses:
// opening sessions for formed pairs and force-closing them on suspension.
type SessionManager interface {
	SessionOpener
	CloseForUser(ctx context.Context, userID uuid.UUID, reason string) error
}

// MatchRequest is the NATS payload sent by wsserver when a user starts
// searching. Attributes come from the verified identity; preferences from
// the lobby form.
type MatchRequest struct {
	UserID     string `json:"user_id"`
	Year       string `json:"year"`
	Gender     string `json:"gender"`
	YearPref   string `json:"year_pref"`
	GenderPref string `json:"gender_pref"`
}

// CancelRequest is the NATS payload sent by wsserver when a user stops
// searching or disconnects while waiting.
type CancelRequest struct {
	UserID string `json:"user_id"`
}

// MatchResult is published on match.found.<user_id> to each matched user.
type MatchResult struct {
	SessionID     string `json:"session_id"`
	PartnerID     string `json:"partner_id"`
	PartnerYear   string `json:"partner_year"`
	PartnerGender string `json:"partner_gender"`
}

// MatchRejected is published on match.rejected.<user_id> when a request
// cannot enter the pool.
type MatchRejected struct {
	Code string `json:"code"`
}

// SuspendedNotice is the trust.suspended broadcast payload.
type SuspendedNotice struct {
	UserID string `json:"user_id"`
}

// Service is the matching actor. It owns the waiting pool exclusively: all
// request handling and the periodic sweep run under one mutex, so pairing
// decisions are serialized and the pool never needs cross-process locking.
type Service struct {
	mu       sync.Mutex
	pool     *Pool
	engine   *Engine
	trust    TrustChecker
	chats    SessionManager
	presence *presence.Registry
	nats     *messaging.Client
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewService creates the matching actor.
func NewService(trust TrustChecker, chats SessionManager, reg *presence.Registry, nats *messaging.Client) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool()
	return &Service{
		pool:     pool,
		engine:   NewEngine(pool, trust, chats),
		trust:    trust,
		chats:    chats,
		presence: reg,
		nats:     nats,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to NATS subjects and starts the sweep loop.
func (s *Service) Start() error {
	if err := s.nats.SubscribeMatchRequest(s.handleMatchRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribeMatchCancel(s.handleCancelRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribeSuspended(s.handleSuspended); err != nil {
		return err
	}

	go s.sweepLoop()

	log.Println("[matcher] service started")
	return nil
}

// Stop gracefully shuts down the matching actor.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[matcher] service stopped")
}

func (s *Service) handleMatchRequest(data []byte) {
	var req MatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid match request: %v", err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		log.Printf("[matcher] invalid user id %q: %v", req.UserID, err)
		return
	}

	entry, code := s.buildEntry(userID, &req)
	if code == "" {
		code = s.admit(entry)
	}
	if code != "" {
		s.publishRejected(userID, code)
		return
	}

	s.mu.Lock()
	m, err := s.engine.TryMatch(s.ctx, entry)
	s.mu.Unlock()
	if err != nil {
		log.Printf("[matcher] match attempt for %s: %v", userID, err)
		return
	}
	if m != nil {
		s.publishMatch(m)
	} else {
		log.Printf("[matcher] enqueued %s (pool size: %d)", userID, s.pool.Len())
	}
	metrics.WaitingPoolSize.Set(float64(s.pool.Len()))
}

// buildEntry validates the request payload into a pool entry. A non-empty
// code means rejection.
func (s *Service) buildEntry(userID uuid.UUID, req *MatchRequest) (*Entry, string) {
	year, err := ParseYearAttr(req.Year)
	if err != nil {
		return nil, RejectInvalidRequest
	}
	gender, err := ParseGenderAttr(req.Gender)
	if err != nil {
		return nil, RejectInvalidRequest
	}
	yearPref, err := ParseYearPref(req.YearPref)
	if err != nil {
		return nil, RejectInvalidRequest
	}
	genderPref, err := ParseGenderPref(req.GenderPref)
	if err != nil {
		return nil, RejectInvalidRequest
	}
	return &Entry{
		UserID:     userID,
		Year:       year,
		Gender:     gender,
		YearPref:   yearPref,
		GenderPref: genderPref,
	}, ""
}

// admit runs the entry gates and enqueues. A non-empty code means rejection.
// Storage outages reject as unavailable, so the client can retry instead of
// treating the request as malformed.
func (s *Service) admit(entry *Entry) string {
	eligible, err := s.trust.IsEligible(s.ctx, entry.UserID)
	if err != nil {
		log.Printf("[matcher] eligibility check %s: %v", entry.UserID, err)
		return RejectUnavailable
	}
	if !eligible {
		return RejectSuspended
	}

	active, err := s.chats.ActiveSessionID(s.ctx, entry.UserID)
	if err != nil {
		log.Printf("[matcher] session check %s: %v", entry.UserID, err)
		return RejectUnavailable
	}
	if active != "" {
		return RejectAlreadyInSession
	}

	if err := s.pool.Enqueue(entry); err != nil {
		return RejectAlreadyWaiting
	}
	return ""
}

func (s *Service) handleCancelRequest(data []byte) {
	var req CancelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid cancel request: %v", err)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return
	}
	if s.pool.Cancel(userID) {
		log.Printf("[matcher] cancelled %s (pool size: %d)", userID, s.pool.Len())
	}
	metrics.WaitingPoolSize.Set(float64(s.pool.Len()))
}

// handleSuspended evicts a newly suspended user from the pool and closes
// their active session as peer_suspended.
func (s *Service) handleSuspended(data []byte) {
	var notice SuspendedNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		log.Printf("[matcher] invalid suspension notice: %v", err)
		return
	}
	userID, err := uuid.Parse(notice.UserID)
	if err != nil {
		return
	}

	s.pool.Cancel(userID)
	if err := s.chats.CloseForUser(s.ctx, userID, chat.ReasonPeerSuspended); err != nil {
		log.Printf("[matcher] close session for suspended %s: %v", userID, err)
	}
	log.Printf("[matcher] evicted suspended user %s", userID)
}

// sweepLoop re-scans the pool periodically: new arrivals may unlock old
// entries, and offline or suspended waiters get evicted.
func (s *Service) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("[matcher] sweep loop stopped")
			return
		case <-ticker.C:
			s.mu.Lock()
			matches := s.engine.Sweep(s.ctx, s.stillOnline)
			s.mu.Unlock()
			for _, m := range matches {
				s.publishMatch(m)
			}
			metrics.WaitingPoolSize.Set(float64(s.pool.Len()))
		}
	}
}

func (s *Service) stillOnline(userID uuid.UUID) bool {
	online, err := s.presence.IsOnline(s.ctx, userID)
	if err != nil {
		return true // transient Redis error: keep the entry
	}
	return online
}

// publishMatch notifies both matched users on their match.found subjects.
func (s *Service) publishMatch(m *Match) {
	publish := func(to, partner *Entry) {
		res := MatchResult{
			SessionID:     m.SessionID,
			PartnerID:     partner.UserID.String(),
			PartnerYear:   string(partner.Year),
			PartnerGender: string(partner.Gender),
		}
		data, err := json.Marshal(res)
		if err != nil {
			log.Printf("[matcher] marshal result for %s: %v", to.UserID, err)
			return
		}
		if err := s.nats.PublishMatchFound(to.UserID.String(), data); err != nil {
			log.Printf("[matcher] publish match.found for %s: %v", to.UserID, err)
		}
	}
	publish(m.A, m.B)
	publish(m.B, m.A)

	metrics.MatchesFormed.Inc()
	log.Printf("[matcher] match published: session=%s a=%s b=%s", m.SessionID, m.A.UserID, m.B.UserID)
}

func (s *Service) publishRejected(userID uuid.UUID, code string) {
	data, err := json.Marshal(MatchRejected{Code: code})
	if err != nil {
		return
	}
	if err := s.nats.PublishMatchRejected(userID.String(), data); err != nil {
		log.Printf("[matcher] publish match.rejected for %s: %v", userID, err)
	}
	log.Printf("[matcher] rejected %s: %s", userID, code)
}
