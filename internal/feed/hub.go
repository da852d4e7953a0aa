// Package feed streams processed transactions to websocket subscribers.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message is the JSON document sent for every transaction.
type Message struct {
	Command  string `json:"command"`
	Name     string `json:"name,omitempty"`
	Quantity uint64 `json:"quantity"`
	Outcome  string `json:"outcome"`
	Result   string `json:"result,omitempty"`
	At       string `json:"at"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans out transactions to connected subscribers. A subscriber whose
// buffer is full is disconnected rather than slowing down publishers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	buffer   int

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewHub creates a Hub with a per-subscriber buffer of buffer messages.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		buffer: buffer,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish implements service.Publisher.
func (h *Hub) Publish(ev domain.TradeEvent) {
	payload, err := json.Marshal(Message{
		Command:  string(ev.Command),
		Name:     ev.Name,
		Quantity: ev.Quantity,
		Outcome:  string(ev.Outcome),
		Result:   ev.Result,
		At:       ev.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		h.logger.Error("failed to encode feed message", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- payload:
		default:
			delete(h.subs, s)
			s.close()
			h.logger.Warn("dropping slow feed subscriber", slog.String("remote", s.conn.RemoteAddr().String()))
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams messages until
// the peer goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an error response.
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("feed subscriber connected", slog.String("remote", conn.RemoteAddr().String()))
	go h.writeLoop(s)
	h.readLoop(s)
}

// readLoop discards inbound frames; it exists to process control frames
// and notice when the peer disconnects.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		s.close()
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.close()
	}
}
