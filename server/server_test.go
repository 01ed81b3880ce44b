package server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"battl3ship/protocol"
)

func startServer(t *testing.T, mutate func(*Config)) (*Server, string) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewServer(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		_ = s.Close()
		if err := <-errc; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return s, ln.Addr().String()
}

type client struct {
	t       *testing.T
	conn    net.Conn
	stream  *protocol.Stream
	pending []byte
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, stream: protocol.NewStream(conn, testConfig().Stream)}
}

// join 连接并完成握手，返回分配到的身份
func join(t *testing.T, addr, name string) (*client, int) {
	t.Helper()
	c := dial(t, addr)
	c.send(&protocol.Hello{Name: name})
	hello, ok := c.recv().(*protocol.Hello)
	if !ok || hello.ID == nil {
		t.Fatalf("%s: expected hello echo, got %#v", name, hello)
	}
	if _, ok := c.recv().(*protocol.PlayerList); !ok {
		t.Fatalf("%s: expected player list", name)
	}
	return c, *hello.ID
}

func (c *client) send(m protocol.Message) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.stream.Send(ctx, m); err != nil {
		c.t.Fatalf("send %s: %v", m.Kind(), err)
	}
}

func (c *client) receive() (protocol.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, pending, err := c.stream.ReceiveOne(ctx, c.pending)
	c.pending = pending
	return m, err
}

func (c *client) recv() protocol.Message {
	c.t.Helper()
	m, err := c.receive()
	if err != nil {
		c.t.Fatalf("receive: %v", err)
	}
	return m
}

func (c *client) expectBye(id int, info string) {
	c.t.Helper()
	bye, ok := c.recv().(*protocol.Bye)
	if !ok {
		c.t.Fatalf("expected bye")
	}
	if bye.ID != id || bye.Info() != info {
		c.t.Fatalf("bye = (%d, %q), want (%d, %q)", bye.ID, bye.Info(), id, info)
	}
}

func (c *client) expectClosed() {
	c.t.Helper()
	if m, err := c.receive(); err == nil && m != nil {
		c.t.Fatalf("expected the server to close the connection, got %s", m.Kind())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerHandshakeAndChat(t *testing.T) {
	s, addr := startServer(t, nil)
	alice, aliceID := join(t, addr, "alice")
	bob, bobID := join(t, addr, "bob")
	if aliceID == bobID {
		t.Fatalf("identities must be distinct")
	}
	if h := alice.recv().(*protocol.Hello); *h.ID != bobID || h.Name != "bob" {
		t.Fatalf("alice should be told about bob, got %+v", h)
	}

	bob.send(&protocol.Chat{Text: "hello there"})
	chat, ok := alice.recv().(*protocol.Chat)
	if !ok || chat.Text != "hello there" || *chat.OriginID != bobID {
		t.Fatalf("unexpected chat %#v", chat)
	}
	if n := s.Registry().Stats().Players; n != 2 {
		t.Fatalf("players = %d", n)
	}
}

func TestServerRejectsBadHandshake(t *testing.T) {
	_, addr := startServer(t, func(c *Config) { c.Password = "pw" })

	c := dial(t, addr)
	c.send(&protocol.Hello{Name: "mallory"})
	c.expectBye(int(UnknownIdentity), "Wrong user/pass!")
	c.expectClosed()

	c = dial(t, addr)
	c.send(&protocol.Chat{Text: "let me in"})
	c.expectBye(int(UnknownIdentity), "Protocol violation!")
	c.expectClosed()

	c = dial(t, addr)
	c.send(&protocol.Hello{Name: "carol", Password: protocol.String("pw")})
	if _, ok := c.recv().(*protocol.Hello); !ok {
		t.Fatalf("correct password should be admitted")
	}
}

func TestServerKicksAndDisconnects(t *testing.T) {
	s, addr := startServer(t, nil)
	alice, aliceID := join(t, addr, "alice")
	bob, bobID := join(t, addr, "bob")
	alice.recv() // bob's hello

	bob.send(&protocol.Challenge{OriginID: aliceID})
	bob.expectBye(bobID, "Are you spoofing me?")
	bob.expectClosed()
	alice.expectBye(bobID, "Player quit")

	carol, carolID := join(t, addr, "carol")
	alice.recv() // carol's hello
	_ = carol.conn.Close()
	alice.expectBye(carolID, "Player quit")
	waitFor(t, "roster to shrink", func() bool { return s.Registry().Stats().Players == 1 })
	if n := atomic.LoadInt64(&s.Metrics().Kicks); n != 1 {
		t.Fatalf("kicks = %d", n)
	}
}

func TestServerGarbageFrame(t *testing.T) {
	s, addr := startServer(t, nil)
	alice, aliceID := join(t, addr, "alice")
	if _, err := alice.conn.Write([]byte("12x456")); err != nil {
		t.Fatalf("write: %v", err)
	}
	alice.expectBye(aliceID, "Protocol violation!")
	alice.expectClosed()
	waitFor(t, "alice to leave", func() bool { return s.Registry().Stats().Players == 0 })
}

func TestServerMatchOverTCP(t *testing.T) {
	_, addr := startServer(t, nil)
	alice, aliceID := join(t, addr, "alice")
	bob, bobID := join(t, addr, "bob")
	alice.recv()

	alice.send(&protocol.Challenge{OriginID: aliceID, RecipientID: protocol.Int(bobID)})
	alice.recv()
	if ch := bob.recv().(*protocol.Challenge); ch.OriginID != aliceID {
		t.Fatalf("bob got %+v", ch)
	}
	bob.send(&protocol.AcceptChallenge{OriginID: aliceID, RecipientID: protocol.Int(bobID)})
	start := alice.recv().(*protocol.StartGame)
	if got := bob.recv().(*protocol.StartGame); got.StartingID != start.StartingID || got.PlayerAID != aliceID || got.PlayerBID != bobID {
		t.Fatalf("both sides should get the same StartGame")
	}

	clients := map[int]*client{aliceID: alice, bobID: bob}
	first := clients[start.StartingID]
	second := bob
	if first == bob {
		second = alice
	}
	first.send(fleetPlacement())
	second.send(fleetPlacement())
	if shot := first.recv().(*protocol.Shot); !shot.Prompt() {
		t.Fatalf("expected a shot prompt")
	}

	first.send(&protocol.Shot{Shots: fleetShots()[0]})
	res := first.recv().(*protocol.ShotResult)
	if len(res.Hit) != 1 || res.Finished {
		t.Fatalf("unexpected result %+v", res)
	}
	if fwd := second.recv().(*protocol.Shot); len(fwd.Shots) != 3 {
		t.Fatalf("opponent should see the volley, got %+v", fwd)
	}
}
