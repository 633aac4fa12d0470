package relay

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridgeServer(t *testing.T) (*Node, *Bridge, *websocket.Conn) {
	t.Helper()
	bridge := NewBridge(context.Background())
	n := newTestNode(t, testConfig(), bridge)
	bridge.Attach(n)

	srv := httptest.NewServer(NewAdminMux(n, bridge))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	waitFor(t, func() bool { return bridge.Clients() == 1 }, "ui client registered")
	return n, bridge, ws
}

func readEvent(t *testing.T, ws *websocket.Conn) UIEvent {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev UIEvent
	require.NoError(t, ws.ReadJSON(&ev))
	return ev
}

func TestBridge_PushesRemoteMoves(t *testing.T) {
	_, bridge, ws := newBridgeServer(t)

	bridge.OnGameStart()
	assert.Equal(t, "start", readEvent(t, ws).Type)

	bridge.OnRemoteMove(MoveMessage{X: 64, Y: 32, TexturePath: "res://circle.png"})
	ev := readEvent(t, ws)
	assert.Equal(t, "move", ev.Type)
	require.NotNil(t, ev.X)
	require.NotNil(t, ev.Y)
	assert.Equal(t, 64.0, *ev.X)
	assert.Equal(t, 32.0, *ev.Y)
	assert.Equal(t, "res://circle.png", ev.TexturePath)
}

func TestBridge_MoveCommandBroadcasts(t *testing.T) {
	n, _, ws := newBridgeServer(t)
	peer := &fakeConn{}
	n.Registry().RegisterOutbound("peer", NewPeerConn(peer, 0))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"move","x":3,"y":4,"texturePath":"res://cross.png"}`)))
	waitFor(t, func() bool { return len(peer.getWritten()) == 1 }, "local move sent to peer")

	m, err := Decode(peer.getWritten()[0])
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.X)
	assert.Equal(t, 4.0, m.Y)
	assert.Equal(t, "res://cross.png", m.TexturePath)
	assert.Equal(t, n.ID(), m.Origin)
}

func TestBridge_IgnoresMalformedCommands(t *testing.T) {
	n, _, ws := newBridgeServer(t)
	peer := &fakeConn{}
	n.Registry().RegisterOutbound("peer", NewPeerConn(peer, 0))

	for _, raw := range []string{`not json`, `{"type":"move","x":1}`, `{"type":"jump"}`} {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
	}
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"move","x":9,"y":9}`)))

	waitFor(t, func() bool { return len(peer.getWritten()) == 1 }, "only the valid move is sent")
	m, err := Decode(peer.getWritten()[0])
	require.NoError(t, err)
	assert.Equal(t, 9.0, m.X)
}

func TestBridge_ConnectCommand(t *testing.T) {
	n, _, ws := newBridgeServer(t)

	remote := newTestNode(t, testConfig(), nil)
	port := serveLoopback(t, remote)

	cmd := `{"type":"connect","host":"127.0.0.1","port":` + strconv.Itoa(port) + `}`
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(cmd)))

	// 连接成功后 OnGameStart 经桥接推送给渲染层
	assert.Equal(t, "start", readEvent(t, ws).Type)
	_, ok := n.Registry().Lookup(Outbound, "127.0.0.1:"+strconv.Itoa(port))
	assert.True(t, ok)
}

func TestBridge_ConnectFailureReported(t *testing.T) {
	_, _, ws := newBridgeServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cmd, err := json.Marshal(UICommand{Type: "connect", Host: "127.0.0.1", Port: port})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, cmd))

	ev := readEvent(t, ws)
	assert.Equal(t, "error", ev.Type)
	assert.Contains(t, ev.Error, "dial")
}

func TestBridge_Restart(t *testing.T) {
	n, bridge, ws := newBridgeServer(t)
	n.Registry().RegisterOutbound("peer", NewPeerConn(&fakeConn{}, 0))

	n.State().Start()
	assert.Equal(t, "start", readEvent(t, ws).Type)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"restart"}`)))
	assert.Equal(t, "start", readEvent(t, ws).Type, "new round starts while a peer is connected")
	assert.True(t, n.State().Started())
	assert.Equal(t, 1, bridge.Clients())
}

func TestBridge_UnregisterOnClose(t *testing.T) {
	_, bridge, ws := newBridgeServer(t)
	require.NoError(t, ws.Close())
	waitFor(t, func() bool { return bridge.Clients() == 0 }, "ui client removed")

	assert.NotPanics(t, func() { bridge.OnRemoteMove(MoveMessage{X: 1, Y: 1}) })
}
