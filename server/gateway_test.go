package server

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"battl3ship/protocol"
)

func dialGateway(t *testing.T, s *Server, addr string) *websocket.Conn {
	t.Helper()
	hs := httptest.NewServer(NewRouter(s, NewGateway(addr, s.Config().Stream)))
	t.Cleanup(hs.Close)
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func wsSend(t *testing.T, ws *websocket.Conn, m protocol.Message) {
	t.Helper()
	body, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

func wsRecv(t *testing.T, ws *websocket.Conn) protocol.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	m, err := protocol.Decode(payload)
	if err != nil {
		t.Fatalf("decode %s: %v", payload, err)
	}
	return m
}

func TestGatewayBridgesSession(t *testing.T) {
	s, addr := startServer(t, nil)
	ws := dialGateway(t, s, addr)

	wsSend(t, ws, &protocol.Hello{Name: "webby"})
	hello, ok := wsRecv(t, ws).(*protocol.Hello)
	if !ok || hello.Name != "webby" {
		t.Fatalf("expected hello echo through the gateway, got %#v", hello)
	}
	webID := *hello.ID
	if _, ok := wsRecv(t, ws).(*protocol.PlayerList); !ok {
		t.Fatalf("expected player list")
	}

	tcp, tcpID := join(t, addr, "tcp")
	if h := wsRecv(t, ws).(*protocol.Hello); *h.ID != tcpID {
		t.Fatalf("web client should see the tcp player join, got %+v", h)
	}

	wsSend(t, ws, &protocol.Chat{Text: "from the web"})
	chat := tcp.recv().(*protocol.Chat)
	if chat.Text != "from the web" || *chat.OriginID != webID {
		t.Fatalf("unexpected chat %+v", chat)
	}

	tcp.send(&protocol.Chat{Text: "from tcp", RecipientID: protocol.Int(webID)})
	if c := wsRecv(t, ws).(*protocol.Chat); c.Text != "from tcp" {
		t.Fatalf("unexpected chat %+v", c)
	}

	_ = ws.Close()
	tcp.expectBye(webID, "Player quit")
}

func TestGatewayRequiresHelloFirst(t *testing.T) {
	s, addr := startServer(t, nil)
	ws := dialGateway(t, s, addr)
	wsSend(t, ws, &protocol.Chat{Text: "no hello"})
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatalf("gateway should drop a session that does not start with hello")
	}
	if n := s.Registry().Stats().Players; n != 0 {
		t.Fatalf("nothing should reach the server, players = %d", n)
	}
}

func TestGatewayDialRetries(t *testing.T) {
	_, addr := startServer(t, nil)
	gw := NewGateway(addr, testConfig().Stream)
	attempts := 0
	dial := gw.dial
	gw.dial = func(ctx context.Context, a string) (net.Conn, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return dial(ctx, a)
	}
	conn, err := gw.dialUpstream(context.Background(), "test")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close()
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}

	gw.maxRetries = 1
	gw.dial = func(context.Context, string) (net.Conn, error) { return nil, errors.New("down") }
	if _, err := gw.dialUpstream(context.Background(), "test"); err == nil {
		t.Fatalf("expected dial to give up")
	}
}
