package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024

	RoleTracker = "tracker" // 只读
	RolePicker  = "picker"  // 可以推进订单状态
)

// PushGateway 把 Hub 的快照通过 websocket 推给订单追踪屏和拣货端
type PushGateway struct {
	hub      *hub.Hub
	nodeID   string
	upgrader websocket.Upgrader
}

func NewPushGateway(h *hub.Hub) *PushGateway {
	return &PushGateway{
		hub:    h,
		nodeID: "order-hub-" + uuid.New().String()[:8],
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
				return true
			},
		},
	}
}

// NodeID 返回网关节点标识
func (g *PushGateway) NodeID() string { return g.nodeID }

// Client 是一个 websocket 连接的代表
type Client struct {
	gateway *PushGateway
	conn    *websocket.Conn
	send    chan ServerMessage
	role    string
	sub     *hub.Subscription

	done      chan struct{}
	closeOnce sync.Once
}

// ServeWs 处理 GET /ws?role=tracker|picker
func (g *PushGateway) ServeWs(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = RoleTracker
	}
	if role != RoleTracker && role != RolePicker {
		http.Error(w, "role must be tracker or picker", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		gateway: g,
		conn:    conn,
		send:    make(chan ServerMessage, 16),
		role:    role,
		done:    make(chan struct{}),
	}

	sub, err := g.hub.Subscribe(hub.SubscriberFunc(client.onSnapshot))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	client.sub = sub
	logger.L().Info().Str("node", g.nodeID).Str("role", role).Str("subscription", sub.ID()).Msg("websocket client connected")

	go client.writePump()
	go client.readPump()
}

// onSnapshot 在 Hub 的投递 goroutine 中执行。这里阻塞只会让 Hub 合并快照，不会阻塞 Hub 本身。
func (c *Client) onSnapshot(s domain.Snapshot) {
	c.enqueue(snapshotMessage(s))
}

func (c *Client) enqueue(msg ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sub.Unsubscribe()
		c.conn.Close()
		logger.L().Info().Str("subscription", c.sub.ID()).Msg("websocket client disconnected")
	})
}

// readPump 读取拣货指令和心跳
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.L().Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(ServerMessage{Type: MsgError, Error: "malformed message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMessage) {
	if msg.Type != MsgTransition {
		c.enqueue(ServerMessage{Type: MsgError, OrderID: msg.OrderID, Error: "unsupported message type " + msg.Type})
		return
	}
	if c.role != RolePicker {
		c.enqueue(ServerMessage{Type: MsgError, OrderID: msg.OrderID, Error: "tracker connections are read-only"})
		return
	}

	state, err := applyTransition(context.Background(), c.gateway.hub, msg.OrderID, msg.State)
	if err != nil {
		c.enqueue(ServerMessage{Type: MsgError, OrderID: msg.OrderID, Error: err.Error()})
		return
	}
	c.enqueue(ServerMessage{Type: MsgAck, OrderID: msg.OrderID, State: state})
}

// writePump 把 send 中的消息写入 websocket，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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

// applyTransition 是拣货指令的公共入口：state 为空时推进到下一个状态
func applyTransition(ctx context.Context, h *hub.Hub, orderID int64, raw string) (domain.State, error) {
	if raw == "" {
		return h.Advance(ctx, orderID)
	}
	to, err := domain.ParseState(raw)
	if err != nil {
		return "", err
	}
	if err := h.Transition(ctx, orderID, to); err != nil {
		return "", err
	}
	return to, nil
}
