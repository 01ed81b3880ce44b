package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"battl3ship/protocol"
)

// outbound 邮箱中的一项
type outbound struct {
	msg        protocol.Message
	closeAfter bool
}

// ClientConn 一条 TCP 连接：帧流加上按序发送的邮箱
type ClientConn struct {
	conn    net.Conn
	stream  *protocol.Stream
	mailbox *Queue[outbound]
	wait    time.Duration
	once    sync.Once
}

func NewClientConn(conn net.Conn, cfg protocol.StreamConfig, wait time.Duration) *ClientConn {
	return &ClientConn{
		conn:    conn,
		stream:  protocol.NewStream(conn, cfg),
		mailbox: NewQueue[outbound](),
		wait:    wait,
	}
}

// Enqueue 压入邮箱（不阻塞）。邮箱已关闭时丢弃。
func (c *ClientConn) Enqueue(m protocol.Message, closeAfter bool) bool {
	return c.mailbox.Push(outbound{msg: m, closeAfter: closeAfter})
}

// CloseMailbox 关闭邮箱，写协程发完剩余消息后退出并关闭连接
func (c *ClientConn) CloseMailbox() { c.mailbox.Close() }

// Close 关闭底层连接，可重复调用
func (c *ClientConn) Close() {
	c.once.Do(func() { _ = c.conn.Close() })
}

// writePump 独立协程，按序把邮箱写出到连接。
// 空等只是重试，邮箱关闭、踢人或写失败时退出。
func (c *ClientConn) writePump(ctx context.Context, metrics *Metrics) error {
	defer c.Close()
	for {
		out, err := c.mailbox.Pop(c.wait)
		switch {
		case errors.Is(err, ErrQueueEmpty):
			if ctx.Err() != nil {
				return nil
			}
			continue
		case errors.Is(err, ErrQueueClosed):
			return nil
		}
		if err := c.stream.Send(ctx, out.msg); err != nil {
			return err
		}
		metrics.IncOut()
		if out.closeAfter {
			return nil
		}
	}
}

// readPump 读取玩家消息交给调度器；结束时（任何原因）提交离开事件
func (c *ClientConn) readPump(ctx context.Context, p *Participant, pending []byte, submit func(event)) error {
	_, err := c.stream.ReceiveLoop(ctx, func(m protocol.Message) error {
		submit(event{from: p, msg: m})
		return nil
	}, pending)
	submit(event{from: p, gone: true, err: err})
	return nil
}

// handleConn 一条连接的完整生命周期：容量检查、握手、收发泵
func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	addr := remoteIP(nc)
	c := NewClientConn(nc, s.cfg.Stream, s.cfg.MailboxWait)
	defer c.Close()

	if err := s.registry.CheckCapacity(addr); err != nil {
		s.reject(ctx, c, addr, err)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	first, pending, err := c.stream.ReceiveOne(hctx, nil)
	cancel()
	if err != nil {
		if protocol.IsConnectionError(err) {
			Log.Debugf("connection from %s closed during handshake: %v", addr, err)
			return
		}
		if protocol.IsProtocolError(err) {
			s.metrics.IncProtocolErrors()
		}
		s.reject(ctx, c, addr, ErrProtocolViolation)
		return
	}
	hello, ok := first.(*protocol.Hello)
	if !ok {
		s.reject(ctx, c, addr, ErrProtocolViolation)
		return
	}
	p, err := s.registry.Admit(hello, addr, c)
	if err != nil {
		s.reject(ctx, c, addr, err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writePump(gctx, s.metrics) })
	g.Go(func() error { return c.readPump(gctx, p, pending, s.submit) })
	if err := g.Wait(); err != nil {
		Log.Debugf("connection of %v ended: %v", p, err)
	}
}

// reject 握手失败：直接写 Bye 后关闭，不经过名册
func (s *Server) reject(ctx context.Context, c *ClientConn, addr string, err error) {
	s.metrics.IncRejected()
	reason := ErrProtocolViolation.Reason
	var ae *AdmissionError
	if errors.As(err, &ae) {
		reason = ae.Reason
	}
	Log.Warnf("rejecting connection from %s: %v", addr, err)
	bye := &protocol.Bye{ID: int(UnknownIdentity)}
	bye.From(int(ServerIdentity))
	bye.ExtraInfo = protocol.String(reason)
	wctx, cancel := context.WithTimeout(ctx, s.cfg.Stream.WriteTimeout)
	defer cancel()
	if err := c.stream.Send(wctx, bye); err != nil {
		Log.Debugf("bye to %s: %v", addr, err)
	}
}

func remoteIP(c net.Conn) string {
	addr := c.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
