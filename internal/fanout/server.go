package fanout

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/betflow/betflow/internal/events"
	"github.com/betflow/betflow/internal/telemetry"
)

const (
	clientSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type peer struct {
	topics map[events.Topic]bool // empty = all topics
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

// Server fans out bus events to connected peer processes over WebSocket.
// Together with Client it forms the cross-process transport: both sides
// expose the same Publish/Subscribe contract through their local bus.
type Server struct {
	mu    sync.Mutex
	peers map[*peer]struct{}
	subs  []*events.Subscription
	srv   *http.Server
}

func NewServer(bus *events.Bus) *Server {
	s := &Server{peers: make(map[*peer]struct{})}
	for _, t := range []events.Topic{
		events.TopicParlayRequests, events.TopicParlayResponses,
		events.TopicRiskAlerts, events.TopicRiskResponses,
		events.TopicSimResponses, events.TopicUserActivity,
		events.TopicFeedback, events.TopicMarketMovements,
		events.TopicUIUpdates,
	} {
		s.subs = append(s.subs, bus.Subscribe(t, s.forward))
	}
	return s
}

// forward is called on the publisher's goroutine. It serializes the event
// and enqueues it to matching peers' send channels (non-blocking).
func (s *Server) forward(evt events.Event) error {
	data, err := MarshalEvent(evt)
	if err != nil {
		telemetry.Warnf("fanout: marshal error: %v", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range s.peers {
		if len(p.topics) > 0 && !p.topics[evt.Topic] {
			continue
		}
		select {
		case p.send <- data:
		default:
			telemetry.Warnf("fanout: dropping %s for slow peer", evt.Topic)
		}
	}
	return nil
}

// HandleWS upgrades a peer connection. Peers narrow their stream with
// ?topics=risk.alerts,user.activity; no param means every topic.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	topics := make(map[events.Topic]bool)
	if q := r.URL.Query().Get("topics"); q != "" {
		for _, t := range strings.Split(q, ",") {
			topics[events.Topic(strings.TrimSpace(t))] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("fanout: upgrade failed: %v", err)
		return
	}

	p := &peer{
		topics: topics,
		conn:   conn,
		send:   make(chan []byte, clientSendBuf),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()

	telemetry.Infof("fanout: peer connected (%d topics)", len(topics))

	go s.writePump(p)
	go s.readPump(p)
}

// writePump drains the peer's send channel and writes to the connection.
// It owns the peer lifecycle: on exit it removes the peer from the map
// (so forward never sends to a stale channel) and closes the connection.
func (s *Server) writePump(p *peer) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removePeer(p)
		p.conn.Close()
	}()

	for {
		select {
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				telemetry.Warnf("fanout: write error: %v", err)
				return
			}
		case <-p.done:
			return
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive by reading pongs / close frames.
// On exit it signals writePump via p.done (never closes p.send).
func (s *Server) readPump(p *peer) {
	defer close(p.done)

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) removePeer(p *peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	telemetry.Infof("fanout: peer disconnected")
}

// StartListening serves the fanout WebSocket endpoint until ctx is done.
func (s *Server) StartListening(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)

	s.srv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		telemetry.Plainf("fanout: server listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.StopListening()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// StopListening closes the HTTP listener and all peer connections.
func (s *Server) StopListening() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
