package server

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"battl3ship/game"
	"battl3ship/protocol"
)

// Registry 名册、待处理邀请和进行中对局。三者的所有读写都在 mu 内完成，
// 对局和棋盘只能经由 matches 访问，因此同一把锁也保护它们。
// 出站消息只进漏斗，持锁期间不做任何 I/O。
type Registry struct {
	mu      sync.Mutex
	cfg     Config
	rules   game.Rules
	rng     *rand.Rand
	metrics *Metrics
	out     *Queue[delivery]

	players []*Participant // 按登录顺序
	byID    map[game.Identity]*Participant
	pending []*protocol.Challenge // 按发布顺序，每个发起者最多一个
	matches map[string]*game.Match
	nextID  game.Identity
}

func NewRegistry(cfg Config, rules game.Rules, metrics *Metrics, out *Queue[delivery], seed int64) *Registry {
	return &Registry{
		cfg:     cfg,
		rules:   rules,
		rng:     rand.New(rand.NewSource(seed)),
		metrics: metrics,
		out:     out,
		byID:    make(map[game.Identity]*Participant),
		matches: make(map[string]*game.Match),
	}
}

// Stats 名册概况，用于管理接口和指标
type Stats struct {
	Players           int                    `json:"players"`
	PendingChallenges int                    `json:"pending_challenges"`
	ActiveMatches     int                    `json:"active_matches"`
	Roster            []protocol.PlayerEntry `json:"roster"`
	Matches           []string               `json:"matches"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Stats{
		Players:           len(r.players),
		PendingChallenges: len(r.pending),
		ActiveMatches:     len(r.matches),
		Roster:            r.roster(),
		Matches:           make([]string, 0, len(r.matches)),
	}
	for id := range r.matches {
		st.Matches = append(st.Matches, id)
	}
	sort.Strings(st.Matches)
	return st
}

// CheckCapacity 在读 Hello 之前检查全局和单地址连接数
func (r *Registry) CheckCapacity(addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkCapacity(addr)
}

func (r *Registry) checkCapacity(addr string) error {
	if len(r.players) >= r.cfg.MaxConnections {
		return ErrRegistryFull
	}
	same := 0
	for _, p := range r.players {
		if p.Addr == addr {
			same++
		}
	}
	if same+1 > r.cfg.MaxPerAddress {
		return ErrRegistryFull
	}
	return nil
}

// Admit 处理握手 Hello：校验后分配身份并加入名册。
// 成功后所有人（包括新玩家）收到 Hello，新玩家再收到完整名册和公开邀请。
func (r *Registry) Admit(hello *protocol.Hello, addr string, conn *ClientConn) (*Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkCapacity(addr); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(hello.Name)
	if name == "" {
		return nil, ErrProtocolViolation
	}
	if r.cfg.Password != "" && (hello.Password == nil || *hello.Password != r.cfg.Password) {
		return nil, ErrBadCredentials
	}
	if utf8.RuneCountInString(name) > r.cfg.MaxNameLength {
		return nil, ErrInvalidName
	}
	for _, p := range r.players {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return nil, ErrNameInUse
		}
	}

	p := &Participant{ID: r.nextID, Name: name, Addr: addr, conn: conn}
	r.nextID++
	r.players = append(r.players, p)
	r.byID[p.ID] = p
	r.metrics.IncAccepted()
	Log.Infof("player %v connected from %s", p, addr)

	greeting := &protocol.Hello{ID: protocol.Int(int(p.ID)), Name: p.Name}
	greeting.From(int(p.ID))
	for _, q := range r.players {
		r.send(q, greeting)
	}
	list := &protocol.PlayerList{Players: r.roster()}
	list.From(int(ServerIdentity))
	r.send(p, list)
	for _, ch := range r.pending {
		if ch.Open() && r.active(game.Identity(ch.OriginID)) != nil {
			r.send(p, ch)
		}
	}
	return p, nil
}

// Handle 处理已登录玩家的一条消息。非法请求一律踢出。
func (r *Registry) Handle(p *Participant, m protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.gone || p.kicked {
		return
	}
	r.metrics.IncIn()

	var err error
	switch msg := m.(type) {
	case *protocol.Chat:
		r.chat(p, msg)
	case *protocol.Challenge:
		err = r.challenge(p, msg)
	case *protocol.CancelChallenge:
		err = r.cancelChallenge(p, msg)
	case *protocol.AcceptChallenge:
		err = r.acceptChallenge(p, msg)
	case *protocol.ProposeBoardPlacement:
		err = r.placeBoats(p, msg)
	case *protocol.Shot:
		err = r.shoot(p, msg)
	case *protocol.Bye:
		r.disconnect(p, nil)
	case *protocol.Hello, *protocol.PlayerList, *protocol.StartGame, *protocol.ShotResult:
		err = kick("Protocol violation!", nil)
	default:
		Log.Errorf("unhandled message kind %s from %v", m.Kind(), p)
	}
	if err != nil {
		r.kick(p, err)
	}
}

// Disconnect 玩家离开（任何原因）：移出名册，撤销相关邀请和对局，通知其他人。
// cause 为协议错误时先给该玩家发 Bye。重复调用无副作用。
func (r *Registry) Disconnect(p *Participant, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect(p, cause)
}

func (r *Registry) disconnect(p *Participant, cause error) {
	if p.gone {
		return
	}
	p.gone = true

	if protocol.IsProtocolError(cause) {
		r.metrics.IncProtocolErrors()
		if !p.kicked {
			bye := &protocol.Bye{ID: int(p.ID)}
			bye.From(int(ServerIdentity))
			bye.ExtraInfo = protocol.String("Protocol violation!")
			r.out.Push(delivery{to: p, msg: bye})
		}
		Log.Warnf("player %v: %v", p, cause)
	}

	for i, q := range r.players {
		if q == p {
			r.players = append(r.players[:i], r.players[i+1:]...)
			break
		}
	}
	delete(r.byID, p.ID)

	kept := r.pending[:0]
	var dropped []*protocol.Challenge
	for _, ch := range r.pending {
		if game.Identity(ch.OriginID) == p.ID || (ch.RecipientID != nil && game.Identity(*ch.RecipientID) == p.ID) {
			dropped = append(dropped, ch)
			continue
		}
		kept = append(kept, ch)
	}
	r.pending = kept
	for _, ch := range dropped {
		r.notifyCancel(ch, p.ID)
	}

	for id, m := range r.matches {
		if m.Involves(p.ID) {
			delete(r.matches, id)
			Log.Infof("match %s abandoned by %v", id, p)
		}
	}

	bye := &protocol.Bye{ID: int(p.ID)}
	bye.From(int(ServerIdentity))
	bye.ExtraInfo = protocol.String("Player quit")
	for _, q := range r.players {
		r.send(q, bye)
	}
	r.out.Push(delivery{to: p, closeBox: true})
	Log.Infof("player %v disconnected (%v)", p, cause)
}

// kick 给玩家发 Bye 并在写出后关闭连接；移出名册由随后的断开流程完成
func (r *Registry) kick(p *Participant, err error) {
	if p.kicked || p.gone {
		return
	}
	p.kicked = true
	r.metrics.IncKicks()
	reason := kickReason(err)
	Log.Warnf("kicking %v: %v", p, err)
	bye := &protocol.Bye{ID: int(p.ID)}
	bye.From(int(ServerIdentity))
	bye.ExtraInfo = protocol.String(reason)
	r.out.Push(delivery{to: p, msg: bye, closeAfter: true})

	// 被踢玩家的邀请立即撤销，不等连接关闭后的断开流程
	if ch := r.pendingFrom(p.ID); ch != nil {
		r.removePending(ch)
		r.notifyCancel(ch, p.ID)
	}
}

func (r *Registry) send(p *Participant, m protocol.Message) {
	if p.gone || p.kicked {
		return
	}
	r.out.Push(delivery{to: p, msg: m})
}

// active 按身份查找仍在线且未被踢的玩家
func (r *Registry) active(id game.Identity) *Participant {
	p, ok := r.byID[id]
	if !ok || p.kicked {
		return nil
	}
	return p
}

func (r *Registry) roster() []protocol.PlayerEntry {
	list := make([]protocol.PlayerEntry, 0, len(r.players))
	for _, p := range r.players {
		list = append(list, p.entry())
	}
	return list
}

// matchOf 玩家所在的对局；一个玩家同时最多一局
func (r *Registry) matchOf(id game.Identity) *game.Match {
	for _, m := range r.matches {
		if m.Involves(id) {
			return m
		}
	}
	return nil
}
