// Package livefeed fans session events out to WebSocket dashboards.
package livefeed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/groutine"
	"github.com/srg/mazelink/internal/ringchan"
	"github.com/srg/mazelink/internal/session"
)

const (
	// ClientBuffer is how many frames a slow client may lag before the oldest are dropped
	ClientBuffer = 64

	pingInterval = 20 * time.Second
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboards are served from other origins on the local network
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	id    uint64
	queue *ringchan.Channel[Message]
}

// Hub is an http.Handler that upgrades requests to WebSocket and streams
// every published event to each connected client as JSON.
type Hub struct {
	logger *logrus.Logger
	now    func() time.Time

	mu        sync.Mutex
	clients   map[uint64]*client
	nextID    uint64
	sessionID string
	deviceID  string
	closed    bool
}

// NewHub creates an empty hub. A nil logger uses logrus.New().
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		logger:  logger,
		now:     time.Now,
		clients: make(map[uint64]*client),
	}
}

// SetSession labels subsequent frames with the game session and device.
func (h *Hub) SetSession(sessionID, deviceID string) {
	h.mu.Lock()
	h.sessionID, h.deviceID = sessionID, deviceID
	h.mu.Unlock()
}

// Publish converts ev and broadcasts it.
func (h *Hub) Publish(ev session.Event) {
	h.Broadcast(NewMessage(ev, h.now()))
}

// Broadcast queues msg for every connected client. It never blocks:
// a client that falls behind loses its oldest frames.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.SessionID == "" {
		msg.SessionID = h.sessionID
	}
	if msg.DeviceID == "" {
		msg.DeviceID = h.deviceID
	}
	for _, c := range h.clients {
		if c.queue.Send(msg) {
			h.logger.WithFields(logrus.Fields{
				"client": c.id,
				"type":   msg.Type,
			}).Debug("Live feed client lagging; dropped oldest frame")
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		c.queue.Close()
		delete(h.clients, id)
	}
}

func (h *Hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.nextID++
	c := &client{id: h.nextID, queue: ringchan.New[Message](ClientBuffer)}
	h.clients[c.id] = c
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		c.queue.Close()
	}
}

// ServeHTTP upgrades the request and streams frames until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := h.register()
	if !ok {
		http.Error(w, "live feed closed", http.StatusServiceUnavailable)
		return
	}
	defer h.unregister(c)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Live feed upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithFields(logrus.Fields{"client": c.id, "remote": r.RemoteAddr})
	log.Info("Live feed client connected")
	defer log.Info("Live feed client disconnected")

	// The read side only drains control frames; it ends when the peer closes.
	gone := groutine.Start(r.Context(), "livefeed-reader", func(ctx context.Context) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.queue.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("Live feed write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
