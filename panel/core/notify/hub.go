package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"smspanel/panel/common/logx"
)

var hubLog = logx.New(logx.WithPrefix("notify"))

// 推送频道
const (
	ChanConnectors = "connectors"
	ChanCampaigns  = "campaigns"
	ChanMessages   = "messages"
	ChanSystem     = "system"
)

type Event struct {
	Channel string `json:"channel"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload,omitempty"`
	Time    int64  `json:"time"`
}

type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// Hub：面板页面的 WebSocket 推送中心。广播永不阻塞业务路径：
// 客户端发送缓冲满了直接断开（页面会重连，丢几条状态无所谓）。
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	closed bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 面板同源部署，前面有 JWT 中间件挡着
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve：升级连接并接管生命周期（由 gin 处理器调用）
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hubLog.Warnf("upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, out: make(chan []byte, 64)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	hubLog.Debugf("client connected (%d total)", n)

	go h.writeLoop(c)
	h.readLoop(c) // 只为探活/收 close，阻塞到断开
}

// Broadcast：向某频道的所有客户端推一条事件（非阻塞）
func (h *Hub) Broadcast(channel, kind string, payload any) {
	ev := Event{Channel: channel, Kind: kind, Payload: payload, Time: time.Now().UnixMilli()}
	b, err := json.Marshal(ev)
	if err != nil {
		hubLog.Errorf("marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- b:
		default:
			// 写不进去：慢客户端，关掉让它重连
			hubLog.Debugf("slow client, dropping")
			go h.drop(c)
		}
	}
}

func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		close(c.out)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	hubLog.Infof("hub shut down")
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.out)
	}
	h.mu.Unlock()
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	defer c.conn.Close()
	for {
		select {
		case b, ok := <-c.out:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
