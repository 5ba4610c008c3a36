package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/guftagu/campus-chat/internal/chat"
	"github.com/guftagu/campus-chat/internal/config"
	"github.com/guftagu/campus-chat/internal/identity"
	"github.com/guftagu/campus-chat/internal/matching"
	"github.com/guftagu/campus-chat/internal/messaging"
	"github.com/guftagu/campus-chat/internal/metrics"
	"github.com/guftagu/campus-chat/internal/migrate"
	"github.com/guftagu/campus-chat/internal/presence"
	"github.com/guftagu/campus-chat/internal/protocol"
	"github.com/guftagu/campus-chat/internal/ratelimit"
	"github.com/guftagu/campus-chat/internal/trust"
	"github.com/guftagu/campus-chat/internal/ws"
)

const onlineCountInterval = 10 * time.Second

func main() {
	cfg := config.Load()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open Postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := migrate.Up(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "guftagu-wsserver-" + cfg.ServerName
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Domain services ---
	trustStore := trust.NewStore(db, cfg.SuspendThreshold)
	registry := presence.NewRegistry(rdb, trustStore, cfg.ServerName)
	chats := chat.NewManager(chat.NewStore(rdb), natsClient)
	limiter := ratelimit.NewLimiter(rdb)
	verifier := identity.NewVerifier(cfg.AuthSecret)

	wsConfig := ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}

	log.Printf("Guftagu WebSocket server starting")
	log.Printf("  listen_addr:     %s", wsConfig.ListenAddr)
	log.Printf("  worker_pool:     %d", wsConfig.WorkerPoolSize)
	log.Printf("  max_connections: %d", wsConfig.MaxConnections)
	log.Printf("  nats_url:        %s", cfg.NATSURL)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)
	log.Printf("  server_name:     %s", cfg.ServerName)

	// Declare server early so closures can capture it.
	var server *ws.Server

	send := func(userID string, msgType string, payload interface{}) {
		data, err := protocol.NewServerMessage(msgType, payload)
		if err != nil {
			log.Printf("[send] build %s for user=%s: %v", msgType, userID, err)
			return
		}
		if err := server.SendMessage(userID, data); err != nil {
			log.Printf("[send] %s to user=%s: %v", msgType, userID, err)
		}
	}

	setStatus := func(userID uuid.UUID, status string) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := registry.SetStatus(ctx, userID, status); err != nil {
			log.Printf("[presence] set status %s for %s: %v", status, userID, err)
		}
		send(userID.String(), protocol.TypeStatus, protocol.StatusMsg{Status: status})
	}

	// subscribeToChat wires a user into their session's chat subject. Message
	// events relay with a self flag; a closed event ends the chat, with
	// peer_left rewritten to self_stop on the initiator's own side.
	subscribeToChat := func(userID uuid.UUID, sessionID string) {
		uid := userID.String()
		if err := natsClient.SubscribeToChat(sessionID, uid, func(data []byte) {
			var event chat.Event
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("[chat-sub] unmarshal error for user=%s: %v", uid, err)
				return
			}

			switch event.Type {
			case "message":
				send(uid, protocol.TypeMessage, protocol.ServerChatMsg{
					Self: event.From == uid,
					Text: event.Text,
					Ts:   event.Ts,
				})
				metrics.MessagesTotal.WithLabelValues("received").Inc()

			case "closed":
				reason := event.Reason
				if reason == chat.ReasonPeerLeft && event.From == uid {
					reason = chat.ReasonSelfStop
				}
				send(uid, protocol.TypeChatEnded, protocol.ChatEndedMsg{Reason: reason})
				_ = natsClient.UnsubscribeFromChat(uid)
				setStatus(userID, presence.StatusIdle)
				metrics.PairedUsers.Dec()
			}
		}); err != nil {
			log.Printf("[chat-sub] subscribe session=%s for user=%s: %v", sessionID, uid, err)
		}
	}

	dispatcher := ws.NewMessageDispatcher(nil)

	// Client pings keep the presence record alive between reconnects.
	dispatcher.SetOnPing(func(conn *ws.Connection) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := registry.RefreshTTL(ctx, conn.Identity.UserID); err != nil {
			log.Printf("[presence] refresh ttl user=%s: %v", conn.ID, err)
		}
	})

	// -----------------------------------------------------------------------
	// start_chat — enter the waiting pool with lobby preferences
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeStartChat, func(conn *ws.Connection, msg interface{}) {
		startMsg, ok := msg.(protocol.StartChatMsg)
		if !ok {
			return
		}
		uid := conn.Identity.UserID
		ctx := context.Background()

		if allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleMatch); !allowed {
			send(conn.ID, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: 60})
			return
		}

		req := matching.MatchRequest{
			UserID:     conn.ID,
			Year:       conn.Identity.Year,
			Gender:     conn.Identity.Gender,
			YearPref:   startMsg.YearPref,
			GenderPref: startMsg.GenderPref,
		}
		data, _ := json.Marshal(req)
		if err := natsClient.PublishMatchRequest(data); err != nil {
			log.Printf("start_chat publish for user=%s: %v", conn.ID, err)
			dispatcher.SendError(conn, "internal", "could not start search")
			return
		}

		setStatus(uid, presence.StatusSearching)
		log.Printf("start_chat from user=%s year_pref=%s gender_pref=%s",
			conn.ID, startMsg.YearPref, startMsg.GenderPref)
	})

	// -----------------------------------------------------------------------
	// stop_chat — leave the pool, or end the active chat session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeStopChat, func(conn *ws.Connection, msg interface{}) {
		uid := conn.Identity.UserID
		ctx := context.Background()

		sessionID, err := chats.ActiveSessionID(ctx, uid)
		if err != nil {
			log.Printf("stop_chat lookup for user=%s: %v", conn.ID, err)
			return
		}

		if sessionID != "" {
			// The closed event comes back through the chat subscription,
			// which handles status and notification for both sides.
			if err := chats.Close(ctx, sessionID, uid, chat.ReasonPeerLeft); err != nil {
				log.Printf("stop_chat close session=%s: %v", sessionID, err)
			}
			log.Printf("stop_chat from user=%s ended session=%s", conn.ID, sessionID)
			return
		}

		data, _ := json.Marshal(matching.CancelRequest{UserID: conn.ID})
		_ = natsClient.PublishMatchCancel(data)
		setStatus(uid, presence.StatusIdle)
		log.Printf("stop_chat from user=%s left pool", conn.ID)
	})

	// -----------------------------------------------------------------------
	// message — relay a chat message into the active session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMessage, func(conn *ws.Connection, msg interface{}) {
		chatMsg, ok := msg.(protocol.ChatMsg)
		if !ok {
			return
		}
		uid := conn.Identity.UserID
		ctx := context.Background()

		if allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleMessage); !allowed {
			send(conn.ID, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: 10})
			metrics.MessagesTotal.WithLabelValues("blocked").Inc()
			return
		}

		start := time.Now()
		err := chats.Send(ctx, chatMsg.SessionID, uid, chatMsg.Text)
		switch {
		case err == nil:
			metrics.MessagesTotal.WithLabelValues("sent").Inc()
			metrics.MessageLatency.Observe(time.Since(start).Seconds())
		case errors.Is(err, chat.ErrSessionNotFound),
			errors.Is(err, chat.ErrNotActive),
			errors.Is(err, chat.ErrNotParticipant):
			dispatcher.SendError(conn, "invalid_chat", "not in an active chat")
		default:
			dispatcher.SendError(conn, "invalid_message", err.Error())
		}
	})

	// -----------------------------------------------------------------------
	// report — report the current chat partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeReport, func(conn *ws.Connection, msg interface{}) {
		reportMsg, ok := msg.(protocol.ReportMsg)
		if !ok {
			return
		}
		uid := conn.Identity.UserID
		ctx := context.Background()

		if allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleReport); !allowed {
			send(conn.ID, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: 60})
			return
		}

		partner, ok := sessionPartner(ctx, chats, reportMsg.SessionID, uid)
		if !ok {
			dispatcher.SendError(conn, "invalid_chat", "not a participant of this chat")
			return
		}

		outcome, err := trustStore.AddReport(ctx, partner, uid)
		if err != nil {
			log.Printf("report by user=%s against=%s: %v", uid, partner, err)
			dispatcher.SendError(conn, "internal", "could not record report")
			return
		}

		if outcome.Suspended {
			// Threshold flip: broadcast so the matcher evicts the user and
			// any wsserver holding their connection drops it.
			notice, _ := json.Marshal(matching.SuspendedNotice{UserID: partner.String()})
			if err := natsClient.PublishSuspended(notice); err != nil {
				log.Printf("report suspension broadcast for %s: %v", partner, err)
			}
			metrics.ReportsTotal.WithLabelValues("suspended").Inc()
		} else {
			metrics.ReportsTotal.WithLabelValues("recorded").Inc()
		}
		log.Printf("report by user=%s against=%s (count=%d suspended=%v)",
			uid, partner, outcome.ReportsCount, outcome.Suspended)
	})

	// -----------------------------------------------------------------------
	// block — never pair with the current chat partner again
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeBlock, func(conn *ws.Connection, msg interface{}) {
		blockMsg, ok := msg.(protocol.BlockMsg)
		if !ok {
			return
		}
		uid := conn.Identity.UserID
		ctx := context.Background()

		partner, ok := sessionPartner(ctx, chats, blockMsg.SessionID, uid)
		if !ok {
			dispatcher.SendError(conn, "invalid_chat", "not a participant of this chat")
			return
		}

		if err := trustStore.Block(ctx, uid, partner); err != nil {
			log.Printf("block by user=%s against=%s: %v", uid, partner, err)
			dispatcher.SendError(conn, "internal", "could not record block")
			return
		}
		log.Printf("block by user=%s against=%s", uid, partner)
	})

	// --- Server wiring ---

	server = ws.NewServer(wsConfig, func(r *http.Request) (*identity.Identity, error) {
		token := r.URL.Query().Get("token")
		return verifier.Verify(token)
	}, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	server.Handle("/metrics", metrics.Handler())

	// Suspended accounts are refused before the upgrade (403); connection
	// churn is throttled (429).
	server.SetConnectGate(func(ctx context.Context, id *identity.Identity) error {
		if allowed, _ := limiter.Allow(ctx, id.UserID.String(), ratelimit.RuleConnect); !allowed {
			return ws.ErrRateLimited
		}
		eligible, err := trustStore.IsEligible(ctx, id.UserID)
		if err != nil {
			return err
		}
		if !eligible {
			return presence.ErrSuspended
		}
		return nil
	})

	server.SetOnConnect(func(conn *ws.Connection) {
		uid := conn.Identity.UserID
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := registry.Connect(ctx, uid); err != nil {
			log.Printf("[connect] presence for user=%s: %v", conn.ID, err)
			server.RemoveConnection(conn)
			return
		}

		// Per-user match notifications live for the connection's lifetime.
		_ = natsClient.SubscribeMatchFound(conn.ID, func(data []byte) {
			var result matching.MatchResult
			if err := json.Unmarshal(data, &result); err != nil {
				return
			}
			subscribeToChat(uid, result.SessionID)
			setStatus(uid, presence.StatusPaired)
			send(conn.ID, protocol.TypeMatchFound, protocol.MatchFoundMsg{
				SessionID:     result.SessionID,
				PartnerYear:   result.PartnerYear,
				PartnerGender: result.PartnerGender,
			})
			metrics.PairedUsers.Inc()
		})
		_ = natsClient.SubscribeMatchRejected(conn.ID, func(data []byte) {
			var rej matching.MatchRejected
			if err := json.Unmarshal(data, &rej); err != nil {
				return
			}
			if rej.Code == matching.RejectSuspended {
				send(conn.ID, protocol.TypeSuspended, protocol.SuspendedMsg{})
			} else {
				msg := "match request rejected"
				if rej.Code == matching.RejectUnavailable {
					msg = "service temporarily unavailable, try again"
				}
				data, _ := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
					Code: rej.Code, Message: msg,
				})
				_ = server.SendMessage(conn.ID, data)
			}
			setStatus(uid, presence.StatusIdle)
		})

		// A reconnecting user may still hold an active session.
		if sessionID, err := chats.ActiveSessionID(ctx, uid); err == nil && sessionID != "" {
			subscribeToChat(uid, sessionID)
			setStatus(uid, presence.StatusPaired)
			metrics.PairedUsers.Inc()
		}

		send(conn.ID, protocol.TypeReady, protocol.ReadyMsg{UserID: conn.ID})
		if count, err := registry.OnlineCount(ctx); err == nil {
			send(conn.ID, protocol.TypeOnlineCount, protocol.OnlineCountMsg{Count: count})
		}
	})

	server.SetOnDisconnect(func(conn *ws.Connection) {
		uid := conn.Identity.UserID
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		data, _ := json.Marshal(matching.CancelRequest{UserID: conn.ID})
		_ = natsClient.PublishMatchCancel(data)

		// This user's own closed-event handler is torn down below, so the
		// paired gauge is balanced here instead.
		if sessionID, err := chats.ActiveSessionID(ctx, uid); err == nil && sessionID != "" {
			metrics.PairedUsers.Dec()
		}
		if err := chats.CloseForUser(ctx, uid, chat.ReasonPeerDisconnected); err != nil {
			log.Printf("[disconnect] close session for user=%s: %v", conn.ID, err)
		}

		_ = natsClient.UnsubscribeMatchFound(conn.ID)
		_ = natsClient.UnsubscribeMatchRejected(conn.ID)
		_ = natsClient.UnsubscribeFromChat(conn.ID)

		if err := registry.Disconnect(ctx, uid); err != nil {
			log.Printf("[disconnect] presence for user=%s: %v", conn.ID, err)
		}
	})

	// Drop the live connection of anyone suspended mid-session.
	_ = natsClient.SubscribeSuspended(func(data []byte) {
		var notice matching.SuspendedNotice
		if err := json.Unmarshal(data, &notice); err != nil {
			return
		}
		if conn := server.Connections().Get(notice.UserID); conn != nil {
			send(notice.UserID, protocol.TypeSuspended, protocol.SuspendedMsg{})
			server.RemoveConnection(conn)
		}
	})

	server.StartHeartbeat(ws.DefaultHeartbeatConfig())

	// Periodic online count broadcast for the lobby header.
	go func() {
		ticker := time.NewTicker(onlineCountInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			count, err := registry.OnlineCount(ctx)
			cancel()
			if err != nil {
				continue
			}
			data, err := protocol.NewServerMessage(protocol.TypeOnlineCount, protocol.OnlineCountMsg{Count: count})
			if err != nil {
				continue
			}
			server.Connections().Broadcast(data)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		natsClient.Close()
		rdb.Close()
		db.Close()
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// sessionPartner resolves the other participant of a session, verifying the
// caller is a participant.
func sessionPartner(ctx context.Context, chats *chat.Manager, sessionID string, userID uuid.UUID) (uuid.UUID, bool) {
	sess, err := chats.Get(ctx, sessionID)
	if err != nil {
		return uuid.Nil, false
	}
	partner := sess.Partner(userID)
	if partner == uuid.Nil {
		return uuid.Nil, false
	}
	return partner, true
}
