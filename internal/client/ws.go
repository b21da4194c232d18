package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/systemtwo/research/internal/analysis"
	"github.com/systemtwo/research/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	closeTimeout = 250 * time.Millisecond
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// WSChannel is the event channel for one analysis session. It never
// reconnects: a failed dial is reported once as a ConnectionFault, and a
// connection that drops mid-stream leaves the session as it is.
type WSChannel struct {
	url       string
	token     string
	sessionID string
	dialer    *websocket.Dialer
	log       *slog.Logger

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises pings against the close frame
	conn       *websocket.Conn
	handlers   *analysis.Handlers
	connecting bool
	closed     bool // Disconnect was called
	done       bool // terminal event delivered; nothing else goes out
	cancel     context.CancelFunc
}

var _ analysis.Channel = (*WSChannel)(nil)

// NewWSChannel creates a channel for sessionID on the service websocket
// endpoint wsURL (e.g. "ws://127.0.0.1:5000/ws").
func NewWSChannel(wsURL, token, sessionID string, log *slog.Logger) *WSChannel {
	if log == nil {
		log = slog.Default()
	}
	return &WSChannel{
		url:       SessionURL(wsURL, sessionID),
		token:     token,
		sessionID: sessionID,
		dialer:    websocket.DefaultDialer,
		log:       log.With("component", "channel", "session", sessionID),
	}
}

// ChannelFactory binds NewWSChannel to one endpoint for the coordinator.
func ChannelFactory(wsURL, token string, log *slog.Logger) analysis.ChannelFactory {
	return func(sessionID string) analysis.Channel {
		return NewWSChannel(wsURL, token, sessionID, log)
	}
}

// SessionURL appends the session query parameter to a websocket URL.
func SessionURL(wsURL, sessionID string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	q := u.Query()
	q.Set(protocol.SessionParam, sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *WSChannel) Subscribe(h analysis.Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers != nil {
		return analysis.ErrAlreadySubscribed
	}
	c.handlers = &h
	return nil
}

func (c *WSChannel) Unsubscribe() {
	c.mu.Lock()
	c.handlers = nil
	c.mu.Unlock()
}

// Connect dials the service and starts the read loop. It returns once the
// channel is open or the dial has failed.
func (c *WSChannel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.done || c.connecting || c.conn != nil {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.log.Warn("event channel dial failed", "err", err)
		c.deliverTerminal(func(h analysis.Handlers) {
			if h.OnError != nil {
				h.OnError(analysis.NewFault(analysis.ConnectionFault, fmt.Sprintf("could not open event channel: %v", err), err))
			}
		})
		return
	}
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.log.Debug("event channel open")
	c.deliver(func(h analysis.Handlers) {
		if h.OnOpen != nil {
			h.OnOpen()
		}
	})
	go c.pingLoop(ctx, conn)
	go c.readLoop(conn)
}

// Disconnect closes the channel. Event suppression takes effect before it
// returns; the close handshake finishes in the background.
func (c *WSChannel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.done = true
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return
	}
	go func() {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		c.writeMu.Unlock()
		conn.Close()
		c.log.Debug("event channel closed")
	}()
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			quiet := c.closed || c.done
			c.mu.Unlock()
			if !quiet {
				// No terminal event is synthesized: the session stays where it is.
				c.log.Warn("event channel lost", "err", err)
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("malformed event", "err", err)
			c.deliverTerminal(func(h analysis.Handlers) {
				if h.OnError != nil {
					h.OnError(analysis.NewFault(analysis.RemoteAnalysisFault, analysis.MalformedEventDetail, err))
				}
			})
			return
		}
		if ev.SessionID != "" && ev.SessionID != c.sessionID {
			continue
		}

		switch ev.Type {
		case protocol.MsgProgress:
			c.deliver(func(h analysis.Handlers) {
				if h.OnProgress != nil {
					h.OnProgress(ev.Progress)
				}
			})
		case protocol.MsgComplete:
			c.deliverTerminal(func(h analysis.Handlers) {
				if h.OnComplete != nil {
					h.OnComplete(ev.Result)
				}
			})
			return
		case protocol.MsgError:
			c.deliverTerminal(func(h analysis.Handlers) {
				if h.OnError != nil {
					h.OnError(analysis.NewFault(analysis.RemoteAnalysisFault, ev.Error, nil))
				}
			})
			return
		}
	}
}

// deliver hands an event to the subscriber unless the channel is done.
func (c *WSChannel) deliver(fn func(analysis.Handlers)) {
	c.mu.Lock()
	if c.done || c.handlers == nil {
		c.mu.Unlock()
		return
	}
	h := *c.handlers
	c.mu.Unlock()
	fn(h)
}

// deliverTerminal latches the channel done, hands over the terminal event and
// releases the connection.
func (c *WSChannel) deliverTerminal(fn func(analysis.Handlers)) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	var h *analysis.Handlers
	if c.handlers != nil {
		copied := *c.handlers
		h = &copied
	}
	c.mu.Unlock()

	if h != nil {
		fn(*h)
	}
	c.Disconnect()
}

func (c *WSChannel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
