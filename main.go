package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"battl3ship/server"
)

// Battl3ship 入口：启动 TCP 游戏服，以及 HTTP 管理 + WebSocket 网关
func main() {
	var (
		configPath string
		addr       string
		httpAddr   string
		password   string
		console    bool
	)
	flag.StringVar(&configPath, "config", "", "path to a TOML config file")
	flag.StringVar(&addr, "addr", "", "game server listen address, e.g. 127.0.0.1:3333")
	flag.StringVar(&httpAddr, "http", "", "admin/websocket listen address, e.g. :8080 (\"off\" disables)")
	flag.StringVar(&password, "password", "", "password required in the hello handshake")
	flag.BoolVar(&console, "console", false, "also log to stderr")
	flag.Parse()

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}
	// 命令行优先于配置文件
	if addr != "" {
		cfg.Addr = addr
	}
	if httpAddr == "off" {
		cfg.HTTPAddr = ""
	} else if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if password != "" {
		cfg.Password = password
	}
	cfg.LogConsole = cfg.LogConsole || console
	if err := server.ValidateConfig(cfg); err != nil {
		panic(err)
	}

	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel, cfg.LogConsole); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg)
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx) }()

	var hs *http.Server
	if cfg.HTTPAddr != "" {
		gw := server.NewGateway(cfg.Upstream, cfg.Stream)
		hs = &http.Server{Addr: cfg.HTTPAddr, Handler: server.NewRouter(srv, gw)}
		go func() {
			server.Log.Infof("admin and websocket gateway on %s", cfg.HTTPAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				server.Log.Fatalf("listen: %v", err)
			}
		}()
	}

	// 优雅退出（Ctrl+C）
	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			server.Log.Errorf("game server: %v", err)
		}
	}
	server.Log.Info("Shutting down...")
	if hs != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = hs.Shutdown(sctx)
		cancel()
	}
	_ = srv.Close()
}
