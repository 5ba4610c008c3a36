package ws

import (
	"log"
	"time"
)

// HeartbeatConfig tunes the keepalive sweep.
type HeartbeatConfig struct {
	Interval time.Duration // ping cadence
	Timeout  time.Duration // grace period beyond Interval before eviction
}

// DefaultHeartbeatConfig returns the defaults used by the chat server.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// StartHeartbeat launches the keepalive sweep: every Interval each live
// connection is pinged at the WebSocket protocol level, and connections with
// no activity for longer than Interval+Timeout are evicted. The goroutine
// exits when the server shuts down.
func (s *Server) StartHeartbeat(cfg HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.sweepStale(cfg.Interval + cfg.Timeout)
			}
		}
	}()
}

// sweepStale evicts connections silent past the deadline and pings the rest.
// A failed ping write evicts too. The ping frame (opcode 0x9) is answered by
// the client automatically, so an alive but quiet connection keeps its
// LastPing fresh through the read loop.
func (s *Server) sweepStale(deadline time.Duration) {
	now := time.Now()

	for _, c := range s.conns.All() {
		idle := now.Sub(c.LastPing)
		if idle > deadline {
			log.Printf("ws: heartbeat timeout user=%s idle=%s", c.ID, idle.Round(time.Second))
			s.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed user=%s: %v", c.ID, err)
			s.RemoveConnection(c)
		}
	}
}
