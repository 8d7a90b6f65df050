package ws

import (
	"sync"
	"time"

	"impostor_relay/internal/logger"
	"impostor_relay/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 4096
)

// Client - одно websocket соединение. Адрес появляется после authenticate.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	hub     *Hub
	limiter *rate.Limiter

	mu       sync.Mutex
	address  string
	room     *Room
	observer bool

	sendMu sync.Mutex
	closed bool
	Done   chan struct{}
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	cfg := hub.cfg
	return &Client{
		ID:      uuid.NewString(),
		Conn:    conn,
		Send:    make(chan []byte, cfg.SendBuffer),
		hub:     hub,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst),
		Done:    make(chan struct{}),
	}
}

func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

func (c *Client) setAddress(addr string) {
	c.mu.Lock()
	c.address = addr
	c.mu.Unlock()
}

// Room возвращает комнату, к которой привязан клиент
func (c *Client) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) IsObserver() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observer
}

func (c *Client) bind(r *Room, observer bool) {
	c.mu.Lock()
	c.room = r
	c.observer = observer
	c.mu.Unlock()
}

// unbind отвязывает клиента, только если он все еще в комнате r
func (c *Client) unbind(r *Room) {
	c.mu.Lock()
	if c.room == r {
		c.room = nil
		c.observer = false
	}
	c.mu.Unlock()
}

// enqueue - неблокирующая постановка в очередь. При полном буфере
// событие для этого клиента теряется.
func (c *Client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		metrics.MessagesDropped.Inc()
		logger.Warn("Client.enqueue: send buffer full, dropping event", "conn", c.ID)
		return false
	}
}

// SendEvent кодирует и ставит в очередь одно событие
func (c *Client) SendEvent(evt Event) {
	data, err := Encode(evt)
	if err != nil {
		logger.Error("Client.SendEvent: marshal error", "type", evt.EventType(), "error", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(err error) {
	c.SendEvent(errorEvent(err))
}

// closeSend закрывает очередь; writePump после этого отправит close frame
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Run запускает насосы и блокируется до разрыва соединения
func (c *Client) Run() {
	go c.writePump()
	c.hub.Register(c)
	c.readPump()
	close(c.Done)
}

// read
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Client.readPump: read error", "conn", c.ID, "error", err)
			}
			return
		}
		if !c.limiter.Allow() {
			c.sendError(ErrRateLimited)
			continue
		}
		c.hub.Dispatch(c, msg)
	}
}

// write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Client.writePump: write error", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
