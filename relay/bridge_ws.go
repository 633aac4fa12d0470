package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	uiWriteWait      = 10 * time.Second
	uiPongWait       = 60 * time.Second
	uiPingPeriod     = (uiPongWait * 9) / 10
	uiMaxMessageSize = 4096
)

// UIEvent 推送给渲染层的事件
// 示例：{"type":"move","x":1,"y":2,"texturePath":"res://cross.png"}
type UIEvent struct {
	Type        string   `json:"type"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	TexturePath string   `json:"texturePath,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// UICommand 渲染层发来的指令
// 示例：{"type":"move","x":1,"y":2} / {"type":"connect","host":"127.0.0.1","port":7800} / {"type":"restart"}
type UICommand struct {
	Type        string   `json:"type"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	TexturePath string   `json:"texturePath,omitempty"`
	Host        string   `json:"host,omitempty"`
	Port        int      `json:"port,omitempty"`
}

// Bridge 把节点回调转换为 WebSocket 事件，把渲染层指令转换为节点调用
// 进程外的渲染器（如游戏引擎客户端）通过 /ws 接入
type Bridge struct {
	ctx context.Context

	mu      sync.RWMutex
	clients map[*uiClient]struct{}
	node    *Node
}

// uiClient 一个渲染层连接；send 队列由独立写协程消费
type uiClient struct {
	ws   *websocket.Conn
	send chan []byte
}

// NewBridge 创建桥接器；ctx 用于渲染层发起的拨号
func NewBridge(ctx context.Context) *Bridge {
	return &Bridge{ctx: ctx, clients: make(map[*uiClient]struct{})}
}

// Attach 绑定节点（节点创建时需要 Bridge 作为 Callbacks，因此分两步）
func (b *Bridge) Attach(n *Node) {
	b.mu.Lock()
	b.node = n
	b.mu.Unlock()
}

func (b *Bridge) attached() *Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.node
}

// OnRemoteMove 远端落子推送给所有渲染层
func (b *Bridge) OnRemoteMove(m MoveMessage) {
	x, y := m.X, m.Y
	b.publish(UIEvent{Type: "move", X: &x, Y: &y, TexturePath: m.TexturePath})
}

// OnGameStart 通知渲染层隐藏等待画面
func (b *Bridge) OnGameStart() {
	b.publish(UIEvent{Type: "start"})
}

// Clients 当前渲染层连接数
func (b *Bridge) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Bridge) publish(ev UIEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		Log.Warnf("marshal ui event: %v", err)
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		c.enqueue(data)
	}
}

// reply 只发给某一个渲染层（如拨号失败）
func (b *Bridge) reply(c *uiClient, ev UIEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.clients[c]; ok {
		c.enqueue(data)
	}
}

// enqueue 非阻塞入队，满则丢弃（渲染层慢不能拖住对端读协程）
// 调用方须持有 Bridge 的读锁，保证 send 未被关闭
func (c *uiClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (b *Bridge) register(c *uiClient) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
}

// unregister 移除并关闭发送队列以结束写协程
func (b *Bridge) unregister(c *uiClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 渲染层运行在本机，接受任意来源
		return true
	},
}

// HandleWS 渲染层 WebSocket 接入
func (b *Bridge) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("ui upgrade error: %v", err)
		return
	}
	c := &uiClient{ws: ws, send: make(chan []byte, 64)}
	b.register(c)
	Log.Infof("ui client connected: %s", ws.RemoteAddr())

	if n := b.attached(); n != nil && n.State().Started() {
		b.reply(c, UIEvent{Type: "start"})
	}

	go c.writePump()
	go b.readPump(c)
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *uiClient) writePump() {
	ticker := time.NewTicker(uiPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(uiWriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(uiWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取渲染层指令并调用节点
func (b *Bridge) readPump(c *uiClient) {
	defer func() {
		b.unregister(c)
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(uiMaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(uiPongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(uiPongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Warnf("ui read error: %v", err)
			}
			return
		}
		var cmd UICommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			continue
		}
		b.dispatch(c, cmd)
	}
}

func (b *Bridge) dispatch(c *uiClient, cmd UICommand) {
	n := b.attached()
	if n == nil {
		return
	}
	switch strings.ToLower(cmd.Type) {
	case "move":
		if cmd.X == nil || cmd.Y == nil {
			return
		}
		m := MoveMessage{X: *cmd.X, Y: *cmd.Y, TexturePath: cmd.TexturePath}
		if err := n.SendLocalMove(m); err != nil {
			Log.Debugf("local move partially delivered: %v", err)
		}
	case "connect":
		if cmd.Host == "" || cmd.Port <= 0 {
			b.reply(c, UIEvent{Type: "error", Error: "connect requires host and port"})
			return
		}
		go func() {
			if _, err := n.Connect(b.ctx, cmd.Host, cmd.Port); err != nil {
				b.reply(c, UIEvent{Type: "error", Error: err.Error()})
			}
		}()
	case "restart":
		// 仍有对端在线时直接开新局，否则等下一次连接
		n.State().Reset()
		if in, out := n.Registry().Len(); in+out > 0 {
			n.State().Start()
		}
		Log.Infof("round restarted by ui")
	}
}
