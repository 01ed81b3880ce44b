package server

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 记录服务运行期的关键计数（用于监控与调试）
type Metrics struct {
	ConnAccepted    int64 // 握手成功
	ConnRejected    int64 // 握手被拒
	MessagesIn      int64 // 已处理的入站消息
	MessagesOut     int64 // 已写出的出站消息
	Kicks           int64 // 被踢出的玩家
	ProtocolErrors  int64 // 帧或消息体错误
	MatchesStarted  int64
	MatchesFinished int64

	reg *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	counters := []struct {
		name string
		help string
		v    *int64
	}{
		{"connections_accepted_total", "Connections that completed the handshake.", &m.ConnAccepted},
		{"connections_rejected_total", "Connections rejected during the handshake.", &m.ConnRejected},
		{"messages_in_total", "Inbound messages dispatched.", &m.MessagesIn},
		{"messages_out_total", "Outbound messages written.", &m.MessagesOut},
		{"kicks_total", "Participants kicked for invalid requests.", &m.Kicks},
		{"protocol_errors_total", "Malformed frames or bodies.", &m.ProtocolErrors},
		{"matches_started_total", "Matches created from accepted challenges.", &m.MatchesStarted},
		{"matches_finished_total", "Matches that reached a winner.", &m.MatchesFinished},
	}
	for _, c := range counters {
		v := c.v
		m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "battl3ship",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(atomic.LoadInt64(v)) }))
	}
	return m
}

func (m *Metrics) IncAccepted()        { atomic.AddInt64(&m.ConnAccepted, 1) }
func (m *Metrics) IncRejected()        { atomic.AddInt64(&m.ConnRejected, 1) }
func (m *Metrics) IncIn()              { atomic.AddInt64(&m.MessagesIn, 1) }
func (m *Metrics) IncOut()             { atomic.AddInt64(&m.MessagesOut, 1) }
func (m *Metrics) IncKicks()           { atomic.AddInt64(&m.Kicks, 1) }
func (m *Metrics) IncProtocolErrors()  { atomic.AddInt64(&m.ProtocolErrors, 1) }
func (m *Metrics) IncMatchesStarted()  { atomic.AddInt64(&m.MatchesStarted, 1) }
func (m *Metrics) IncMatchesFinished() { atomic.AddInt64(&m.MatchesFinished, 1) }

// ObserveRegistry 把在线人数、待处理邀请和进行中对局注册为 gauge
func (m *Metrics) ObserveRegistry(r *Registry) {
	gauges := []struct {
		name string
		help string
		get  func(Stats) int
	}{
		{"players", "Connected participants.", func(s Stats) int { return s.Players }},
		{"pending_challenges", "Challenges waiting to be accepted.", func(s Stats) int { return s.PendingChallenges }},
		{"active_matches", "Matches in progress.", func(s Stats) int { return s.ActiveMatches }},
	}
	for _, g := range gauges {
		get := g.get
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "battl3ship",
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return float64(get(r.Stats())) }))
	}
}

// Handler Prometheus 抓取端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"connections_accepted": atomic.LoadInt64(&m.ConnAccepted),
		"connections_rejected": atomic.LoadInt64(&m.ConnRejected),
		"messages_in":          atomic.LoadInt64(&m.MessagesIn),
		"messages_out":         atomic.LoadInt64(&m.MessagesOut),
		"kicks":                atomic.LoadInt64(&m.Kicks),
		"protocol_errors":      atomic.LoadInt64(&m.ProtocolErrors),
		"matches_started":      atomic.LoadInt64(&m.MatchesStarted),
		"matches_finished":     atomic.LoadInt64(&m.MatchesFinished),
	}
}
