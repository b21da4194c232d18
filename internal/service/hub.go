package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/systemtwo/research/internal/protocol"
)

var ErrTooManyConnections = errors.New("too many websocket connections")

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
)

type client struct {
	conn  *websocket.Conn
	hub   *Hub
	topic string
	send  chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.Unsubscribe(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// topic is one session's event stream.
type topic struct {
	clients  map[*client]bool
	backlog  [][]byte
	seq      uint64
	evicted  uint64
	released bool
}

// Hub fans session events out to the websocket clients subscribed to that
// session. Each topic keeps a backlog of its newest events that is replayed
// to clients that subscribe after the run started. Past the cap the oldest
// events are evicted; a late client sees the gap in seq.
type Hub struct {
	mu         sync.Mutex
	topics     map[string]*topic
	count      int
	backlog    int
	maxClients int
	metrics    *Metrics
	log        *slog.Logger
}

// NewHub creates a hub. maxClients of zero means unlimited.
func NewHub(backlog, maxClients int, m *Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = NewMetrics()
	}
	return &Hub{
		topics:     make(map[string]*topic),
		backlog:    backlog,
		maxClients: maxClients,
		metrics:    m,
		log:        log.With("component", "hub"),
	}
}

func (h *Hub) topicLocked(sessionID string) *topic {
	t, ok := h.topics[sessionID]
	if !ok {
		t = &topic{clients: make(map[*client]bool)}
		h.topics[sessionID] = t
	}
	return t
}

// Subscribe attaches conn to sessionID's topic and replays its backlog.
func (h *Hub) Subscribe(sessionID string, conn *websocket.Conn) (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxClients > 0 && h.count >= h.maxClients {
		return nil, ErrTooManyConnections
	}

	t := h.topicLocked(sessionID)
	c := &client{
		conn:  conn,
		hub:   h,
		topic: sessionID,
		send:  make(chan []byte, clientBuffer+len(t.backlog)),
	}
	for _, msg := range t.backlog {
		c.send <- msg
	}
	t.clients[c] = true
	h.count++
	h.metrics.channels.Inc()
	go c.writePump()

	h.log.Debug("client subscribed", "session", sessionID, "replayed", len(t.backlog))
	return c, nil
}

// Unsubscribe detaches c and closes its send queue. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	t, ok := h.topics[c.topic]
	if !ok || !t.clients[c] {
		return
	}
	delete(t.clients, c)
	close(c.send)
	h.count--
	h.metrics.channels.Dec()
	// A topic that never carried an event holds nothing worth keeping.
	if len(t.clients) == 0 && (t.released || t.seq == 0) {
		delete(h.topics, c.topic)
	}
}

// Publish sends an event to every subscriber of sessionID and records it in
// the topic's backlog.
func (h *Hub) Publish(sessionID string, typ protocol.MessageType, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(sessionID)
	t.seq++
	env, err := protocol.NewEnvelope(typ, sessionID, t.seq, payload)
	if err != nil {
		h.log.Error("publish", "session", sessionID, "err", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("publish marshal", "session", sessionID, "err", err)
		return
	}

	if h.backlog > 0 {
		t.backlog = append(t.backlog, data)
		if over := len(t.backlog) - h.backlog; over > 0 {
			if t.evicted == 0 {
				h.log.Warn("session backlog full, evicting oldest events", "session", sessionID, "cap", h.backlog)
			}
			t.evicted += uint64(over)
			h.metrics.evicted.Add(float64(over))
			t.backlog = t.backlog[over:]
		}
	}

	for c := range t.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("ws client too slow, disconnecting", "session", sessionID)
			h.metrics.dropped.Inc()
			h.removeLocked(c)
		}
	}
}

// Release forgets sessionID's topic once its last subscriber leaves.
func (h *Hub) Release(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[sessionID]
	if !ok {
		return
	}
	t.released = true
	if len(t.clients) == 0 {
		delete(h.topics, sessionID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Hub) TopicCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}
