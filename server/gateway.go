package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"battl3ship/protocol"
)

var errSessionEnded = errors.New("gateway: session ended")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 浏览器客户端与静态页面可能不同源
		return true
	},
}

// Gateway 把 WebSocket 会话 1:1 转成一条上游 TCP 连接。
// 每个文本帧对应一条消息，不合并、不重排、不自造消息。
type Gateway struct {
	upstream   string
	cfg        protocol.StreamConfig
	helloWait  time.Duration
	maxRetries uint64
	dial       func(ctx context.Context, addr string) (net.Conn, error)
}

func NewGateway(upstream string, cfg protocol.StreamConfig) *Gateway {
	var d net.Dialer
	return &Gateway{
		upstream:   upstream,
		cfg:        cfg,
		helloWait:  30 * time.Second,
		maxRetries: 5,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// ServeHTTP 处理 /ws：升级、等待 Hello、拨号上游、双向转码
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}
	defer ws.Close()
	sid := uuid.NewString()
	ws.SetReadLimit(int64(g.cfg.MaxBodyLen))

	// 首帧必须是 Hello，拿到后才拨号
	_ = ws.SetReadDeadline(time.Now().Add(g.helloWait))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		Log.Debugf("gateway %s: no hello: %v", sid, err)
		return
	}
	_ = ws.SetReadDeadline(time.Time{})
	first, err := protocol.Decode(payload)
	if err != nil {
		Log.Warnf("gateway %s: %v", sid, err)
		return
	}
	if _, ok := first.(*protocol.Hello); !ok {
		Log.Warnf("gateway %s: first message is %s, want hello", sid, first.Kind())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	up, err := g.dialUpstream(ctx, sid)
	if err != nil {
		Log.Errorf("gateway %s: upstream %s: %v", sid, g.upstream, err)
		return
	}
	defer up.Close()
	Log.Infof("gateway %s: %s bridged to %s", sid, r.RemoteAddr, g.upstream)

	stream := protocol.NewStream(up, g.cfg)
	if err := stream.Send(ctx, first); err != nil {
		Log.Warnf("gateway %s: forward hello: %v", sid, err)
		return
	}

	eg, ectx := errgroup.WithContext(ctx)
	// 任一方向结束即关闭两端，另一方向随之退出
	eg.Go(func() error {
		<-ectx.Done()
		_ = ws.Close()
		_ = up.Close()
		return nil
	})
	eg.Go(func() error {
		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				return fmt.Errorf("websocket read: %w", err)
			}
			m, err := protocol.Decode(payload)
			if err != nil {
				return err
			}
			if err := stream.Send(ectx, m); err != nil {
				return err
			}
		}
	})
	eg.Go(func() error {
		_, err := stream.ReceiveLoop(ectx, func(m protocol.Message) error {
			body, err := protocol.Encode(m)
			if err != nil {
				return err
			}
			_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			return ws.WriteMessage(websocket.TextMessage, body)
		}, nil)
		if err == nil {
			err = errSessionEnded
		}
		return err
	})
	err = eg.Wait()
	Log.Infof("gateway %s closed: %v", sid, err)
}

// dialUpstream 指数退避重试拨号
func (g *Gateway) dialUpstream(ctx context.Context, sid string) (net.Conn, error) {
	var conn net.Conn
	op := func() error {
		c, err := g.dial(ctx, g.upstream)
		if err != nil {
			Log.Debugf("gateway %s: dial %s: %v", sid, g.upstream, err)
			return err
		}
		conn = c
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, g.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}
