package server

import (
	"context"
	"errors"

	"battl3ship/protocol"
)

// event 入站事件：一条消息，或者连接结束（gone）
type event struct {
	from *Participant
	msg  protocol.Message
	gone bool
	err  error
}

func (s *Server) submit(ev event) {
	if !s.incoming.Push(ev) {
		Log.Debugf("dropping event from %v: server closed", ev.from)
	}
}

// dispatchLoop 单线程按到达顺序处理所有入站事件。登录（Admit）在连接协程里持锁完成，其余名册修改都经过这里
func (s *Server) dispatchLoop(ctx context.Context) error {
	for {
		ev, err := s.incoming.Pop(s.cfg.MailboxWait)
		switch {
		case errors.Is(err, ErrQueueEmpty):
			if ctx.Err() != nil {
				return nil
			}
			continue
		case errors.Is(err, ErrQueueClosed):
			return nil
		}
		if ev.gone {
			s.registry.Disconnect(ev.from, ev.err)
			continue
		}
		s.registry.Handle(ev.from, ev.msg)
	}
}

// distributeLoop 把共享出站漏斗按收件人分发到各自邮箱，保持入队顺序
func (s *Server) distributeLoop(ctx context.Context) error {
	for {
		d, err := s.outgoing.Pop(s.cfg.MailboxWait)
		switch {
		case errors.Is(err, ErrQueueEmpty):
			if ctx.Err() != nil {
				return nil
			}
			continue
		case errors.Is(err, ErrQueueClosed):
			return nil
		}
		if d.to == nil || d.to.conn == nil {
			continue
		}
		if d.closeBox {
			d.to.conn.CloseMailbox()
			continue
		}
		d.to.conn.Enqueue(d.msg, d.closeAfter)
	}
}
