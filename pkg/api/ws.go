package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
	"github.com/sipeed/picocrud/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			return true
		}
		logger.WarnCF("ws", "Rejected WebSocket from disallowed origin", map[string]interface{}{"origin": origin})
		return false
	},
}

const maxFrameBytes = 1 << 20

// WSEvent is pushed to every connected client.
type WSEvent struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WSRequest is a command frame sent by a client.
type WSRequest struct {
	ID      string      `json:"id"`
	Command app.Command `json:"command"`
}

// WSResponse answers one WSRequest on the same connection.
type WSResponse struct {
	Type   string     `json:"type"`
	ID     string     `json:"id"`
	Status int        `json:"status"`
	Reply  *app.Reply `json:"reply,omitempty"`
	Error  *APIError  `json:"error,omitempty"`
}

// CommandExecutor runs child commands for WebSocket clients.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd app.Command, user domain.User) (app.Reply, error)
	Kinds() []child.Kind
}

// ResourceCounter reports the number of stored parents for the initial state.
type ResourceCounter interface {
	CountResources(ctx context.Context) (int, error)
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *WSHub
	user   domain.User
	mu     sync.Mutex
	closed bool
}

// WSHub manages WebSocket connections, broadcasts events and answers
// command frames.
type WSHub struct {
	exec       CommandExecutor
	counter    ResourceCounter
	startTime  time.Time
	clients    map[*WSClient]bool
	broadcast  chan WSEvent
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
	ctx        context.Context
}

// NewWSHub creates a new WebSocket hub. counter may be nil.
func NewWSHub(exec CommandExecutor, counter ResourceCounter, startTime time.Time) *WSHub {
	return &WSHub{
		exec:       exec,
		counter:    counter,
		startTime:  startTime,
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSEvent, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		ctx:        context.Background(),
	}
}

// Run starts the hub's main loop.
func (h *WSHub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	statusTicker := time.NewTicker(5 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.DebugCF("ws", "Client connected", map[string]interface{}{"user": client.user.ID})
			h.sendInitialState(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			logger.DebugC("ws", "Client disconnected")

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if !client.enqueue(data) {
					// Client too slow, drop
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-statusTicker.C:
			h.broadcastStatus()
		}
	}
}

// Broadcast sends an event to all connected clients.
func (h *WSHub) Broadcast(eventType string, data interface{}) {
	event := WSEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	select {
	case h.broadcast <- event:
	default:
		// Channel full, drop event
	}
}

// ClientCount returns the number of registered clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request. The caller was authenticated by the
// upgrade request itself; frames carry no credentials.
func (h *WSHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCF("ws", "WebSocket upgrade failed", map[string]interface{}{
			"error": err,
		})
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		user: userFrom(c),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *WSHub) sendInitialState(ctx context.Context, client *WSClient) {
	state := map[string]interface{}{
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"user":           client.user.ID,
	}
	if h.exec != nil {
		state["kinds"] = h.exec.Kinds()
	}
	if h.counter != nil {
		if n, err := h.counter.CountResources(ctx); err == nil {
			state["resources"] = n
		}
	}

	data, err := json.Marshal(WSEvent{
		Type:      "initial_state",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      state,
	})
	if err != nil {
		return
	}
	client.enqueue(data)
}

func (h *WSHub) broadcastStatus() {
	clientCount := h.ClientCount()
	if clientCount == 0 {
		return
	}
	h.Broadcast("status_update", map[string]interface{}{
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"clients":        clientCount,
	})
}

func (h *WSHub) done() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx.Done()
}

// answer runs one command frame and replies to the sender only.
func (h *WSHub) answer(client *WSClient, raw []byte) {
	var req WSRequest
	resp := WSResponse{Type: "reply"}
	if err := json.Unmarshal(raw, &req); err != nil {
		resp.Status = http.StatusBadRequest
		resp.Error = &APIError{Message: "invalid frame: " + err.Error(), Code: "bad_request"}
	} else {
		resp.ID = req.ID
		h.mu.RLock()
		ctx := h.ctx
		h.mu.RUnlock()

		reply, err := h.exec.Execute(ctx, req.Command, client.user)
		if err != nil {
			resp.Status = domain.StatusOf(err)
			resp.Error = &APIError{Message: err.Error(), Code: domain.CodeOf(err)}
		} else {
			resp.Status = reply.Status
			resp.Reply = &reply
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logger.ErrorCF("ws", "Encode reply failed", map[string]interface{}{"error": err})
		return
	}
	client.enqueue(data)
}

// --- Client methods ---

// enqueue reports false when the client is closed or its buffer is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.hub.answer(c, message)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
