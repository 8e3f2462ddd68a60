package api

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 2 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 4 * 1024
	clientSendQueue = 16
)

// StreamMessage 推送给前端的一条消息，Type 为 snapshot 或 news
type StreamMessage struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Hub 维护所有 websocket 连接；新连接先收到每种类型的最新一条消息
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan StreamMessage

	clients map[*client]struct{}
	latest  map[string]StreamMessage
	count   atomic.Int64
	done    chan struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan StreamMessage
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan StreamMessage, 64),
		clients:    make(map[*client]struct{}),
		latest:     make(map[string]StreamMessage),
		done:       make(chan struct{}),
	}
}

// Run 主循环，所有 map 只在这里读写
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Add(1)
			for _, msg := range h.latest {
				c.send <- msg
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case msg := <-h.broadcast:
			h.latest[msg.Type] = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 消费太慢的连接直接断开，避免阻塞主循环
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

// Broadcast 非阻塞投递；队列满时丢弃并记录日志
func (h *Hub) Broadcast(typ string, data any) {
	msg := StreamMessage{Type: typ, Time: time.Now().UTC(), Data: data}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("stream: broadcast queue full, drop %s message", typ)
	}
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("stream: upgrade failed: %v", err)
		return
	}
	cl := &client{hub: h, conn: conn, send: make(chan StreamMessage, clientSendQueue)}
	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

// readPump 只用于检测断线与处理 pong，客户端发来的内容被忽略
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("stream: read error: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("stream: write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
