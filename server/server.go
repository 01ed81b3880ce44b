package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"battl3ship/game"
)

// Server 游戏服：监听、名册、调度器和出站分发
type Server struct {
	cfg      Config
	registry *Registry
	metrics  *Metrics
	incoming *Queue[event]
	outgoing *Queue[delivery]

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	metrics := NewMetrics()
	outgoing := NewQueue[delivery]()
	s := &Server{
		cfg:      cfg,
		metrics:  metrics,
		incoming: NewQueue[event](),
		outgoing: outgoing,
		registry: NewRegistry(cfg, game.DefaultRules(), metrics, outgoing, time.Now().UnixNano()),
		conns:    make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}
	metrics.ObserveRegistry(s.registry)
	return s
}

func (s *Server) Registry() *Registry { return s.registry }
func (s *Server) Metrics() *Metrics   { return s.metrics }
func (s *Server) Config() Config      { return s.cfg }

// Addr 实际监听地址，Serve 之前为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe 监听 cfg.Addr 并服务，直到 ctx 取消或 Close
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上接受连接，每条连接一个处理协程
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server closed")
	}
	s.ln = ln
	s.cancel = cancel
	s.mu.Unlock()
	Log.Infof("Battl3ship listening on %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dispatchLoop(gctx) })
	g.Go(func() error { return s.distributeLoop(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.Close()
		case <-s.done:
		}
		return nil
	})
	g.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if s.isClosed() {
					return nil
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					time.Sleep(10 * time.Millisecond)
					continue
				}
				return err
			}
			if !s.track(nc) {
				_ = nc.Close()
				return nil
			}
			go func() {
				defer s.wg.Done()
				defer s.untrack(nc)
				s.handleConn(gctx, nc)
			}()
		}
	})
	err := g.Wait()
	s.Close()
	return err
}

// Close 关闭监听器和所有连接，停止调度。可重复调用。
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.incoming.Close()
	s.outgoing.Close()
	Log.Info("Battl3ship server closed")
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
