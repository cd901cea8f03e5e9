// internal/notify/websocket.go
package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Peers only send control frames; anything larger is a protocol error.
	maxMessageSize = 4096
)

// Client is one websocket subscriber.
type Client struct {
	id        string
	wsManager *WSManager
	conn      *websocket.Conn
	send      chan []byte
}

// readPump keeps the read side alive so pings, pongs and close frames are
// processed. Peers are listeners; their messages are discarded.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.wsManager.unregister <- c:
		case <-c.wsManager.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.wsManager.logger.Warn("Websocket client read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		c.wsManager.logger.Debug("Ignoring message from notification listener.",
			zap.String("client_id", c.id), zap.Int("bytes", len(message)))
	}
}

// writePump sends one notification per websocket frame, plus periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Subscriber is the part of Hub the websocket manager consumes.
type Subscriber interface {
	Subscribe(kinds ...schemas.NotificationKind) (<-chan schemas.Notification, func())
}

// WSManager streams hub notifications to websocket clients as JSON.
type WSManager struct {
	logger     *zap.Logger
	hub        Subscriber
	upgrader   websocket.Upgrader
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWSManager creates a manager. allowedOrigins of nil or containing "*"
// accepts any origin.
func NewWSManager(logger *zap.Logger, hub Subscriber, allowedOrigins []string) *WSManager {
	m := &WSManager{
		logger:     logger.Named("ws_manager"),
		hub:        hub,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return m
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run pumps notifications to clients until ctx is done or the hub closes.
// It must be called once.
func (m *WSManager) Run(ctx context.Context) {
	events, unsubscribe := m.hub.Subscribe()
	defer unsubscribe()
	defer close(m.done)

	m.logger.Info("WebSocket Manager started.")
	defer m.logger.Info("WebSocket Manager stopped.")

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			m.mu.Unlock()
			m.logger.Info("New WebSocket client connected.", zap.String("client_id", client.id))
		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				m.logger.Info("WebSocket client disconnected.", zap.String("client_id", client.id))
			}
			m.mu.Unlock()
		case n, ok := <-events:
			if !ok {
				m.closeAll()
				return
			}
			m.broadcast(n)
		}
	}
}

func (m *WSManager) broadcast(n schemas.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		m.logger.Error("Failed to marshal notification", zap.String("kind", string(n.Kind)), zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; drop the connection rather than the ordering.
			close(client.send)
			delete(m.clients, client)
			m.logger.Warn("Dropping slow WebSocket client.", zap.String("client_id", client.id))
		}
	}
}

func (m *WSManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		close(client.send)
		delete(m.clients, client)
	}
}

// ClientCount reports the number of connected clients.
func (m *WSManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// HandleWS upgrades the request and registers the connection. Run must be active.
func (m *WSManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	client := &Client{
		id:        uuid.New().String(),
		wsManager: m,
		conn:      conn,
		send:      make(chan []byte, 256),
	}
	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
