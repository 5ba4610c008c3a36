package ws

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestSweepStaleEvictsSilentConnections(t *testing.T) {
	s := NewServer(DefaultServerConfig(), nil, nil)
	ep, err := NewEpoll()
	if err != nil {
		t.Fatalf("epoll: %v", err)
	}
	s.epoll = ep
	defer ep.Close()

	staleClient, staleSrv := net.Pipe()
	defer staleClient.Close()
	s.conns.Add(&Connection{
		ID:       "stale",
		Conn:     staleSrv,
		Fd:       1,
		LastPing: time.Now().Add(-time.Hour),
	})

	liveClient, liveSrv := net.Pipe()
	defer liveClient.Close()
	go io.Copy(io.Discard, liveClient) // drain the ping frame
	s.conns.Add(&Connection{
		ID:       "live",
		Conn:     liveSrv,
		Fd:       2,
		LastPing: time.Now(),
	})

	s.sweepStale(40 * time.Second)

	if s.conns.Get("stale") != nil {
		t.Error("silent connection should be evicted by the sweep")
	}
	if s.conns.Get("live") == nil {
		t.Error("live connection must survive the sweep")
	}
}
