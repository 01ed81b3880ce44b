package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// NewRouter 管理与监控接口；gw 非空时挂载 /ws
//
//	GET /healthz       存活检查
//	GET /admin/stats   名册与计数
//	GET /admin/config  当前配置（不含密码）
//	GET /metrics       Prometheus
func NewRouter(s *Server, gw *Gateway) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/admin/stats", s.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/admin/config", s.HandleConfig).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	if gw != nil {
		r.Handle("/ws", gw)
	}
	return r
}

// HandleStats 输出名册概况和运行计数
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"registry": s.registry.Stats(),
		"metrics":  s.metrics.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// HandleConfig 输出生效的配置
func (s *Server) HandleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg
	type view struct {
		Addr             string        `json:"addr"`
		HTTPAddr         string        `json:"httpAddr"`
		PasswordRequired bool          `json:"passwordRequired"`
		MaxConnections   int           `json:"maxConnections"`
		MaxPerAddress    int           `json:"maxConnectionsPerAddress"`
		MaxNameLength    int           `json:"maxNameLength"`
		LengthDigits     int           `json:"lengthDigits"`
		MaxBodyLen       int           `json:"maxBodyLength"`
		ReadTimeout      time.Duration `json:"readTimeoutNs"`
		MailboxWait      time.Duration `json:"mailboxWaitNs"`
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view{
		Addr:             cfg.Addr,
		HTTPAddr:         cfg.HTTPAddr,
		PasswordRequired: cfg.Password != "",
		MaxConnections:   cfg.MaxConnections,
		MaxPerAddress:    cfg.MaxPerAddress,
		MaxNameLength:    cfg.MaxNameLength,
		LengthDigits:     cfg.Stream.LengthDigits,
		MaxBodyLen:       cfg.Stream.MaxBodyLen,
		ReadTimeout:      cfg.Stream.ReadTimeout,
		MailboxWait:      cfg.MailboxWait,
	})
}
