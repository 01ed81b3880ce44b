// Package protocol 定义客户端与服务端之间的线协议：
// 消息变体（JSON 编码）与定长十进制长度前缀的帧流。
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind 消息类型标签（线上的 type 字段）
type Kind string

const (
	KindHello                 Kind = "MessageHello"
	KindBye                   Kind = "MessageBye"
	KindPlayerList            Kind = "MessagePlayerList"
	KindChat                  Kind = "MessageChat"
	KindChallenge             Kind = "MessageChallenge"
	KindCancelChallenge       Kind = "MessageCancelChallenge"
	KindAcceptChallenge       Kind = "MessageAcceptChallenge"
	KindStartGame             Kind = "MessageStartGame"
	KindProposeBoardPlacement Kind = "MessageProposeBoardPlacement"
	KindShot                  Kind = "MessageShot"
	KindShotResult            Kind = "MessageShotResult"
)

// Kinds 全部已知变体，顺序固定
var Kinds = []Kind{
	KindHello, KindBye, KindPlayerList, KindChat, KindChallenge, KindCancelChallenge,
	KindAcceptChallenge, KindStartGame, KindProposeBoardPlacement, KindShot, KindShotResult,
}

// Message 封闭的消息变体集合，只有本包内的类型可以实现
type Message interface {
	Kind() Kind
	Env() *Envelope
	sealed()
}

// Envelope 所有变体共有的信封字段，编码时总是输出（可为 null）。
// type 字段不在这里，由 Encode 按变体写出。
type Envelope struct {
	FromID    *int    `json:"from_id"`
	ToID      *int    `json:"to_id"`
	ExtraInfo *string `json:"extra_info_str"`
}

func (e *Envelope) Env() *Envelope { return e }
func (e *Envelope) sealed()        {}

// From 设置 from_id，便于链式构造
func (e *Envelope) From(id int) *Envelope {
	e.FromID = Int(id)
	return e
}

// Info 返回 extra_info_str，null 时为空串
func (e *Envelope) Info() string {
	if e.ExtraInfo == nil {
		return ""
	}
	return *e.ExtraInfo
}

// Int 取地址的小工具，用于可空整数字段
func Int(v int) *int { return &v }

// String 取地址的小工具，用于可空字符串字段
func String(v string) *string { return &v }

// RowCol 线上的 [row, col] 坐标对
type RowCol []int

// Pair 解析为行列；元素个数不是 2 时 ok 为 false
func (rc RowCol) Pair() (row, col int, ok bool) {
	if len(rc) != 2 {
		return 0, 0, false
	}
	return rc[0], rc[1], true
}

// PlayerEntry 名单中的一项，线上编码为 [name, id]
type PlayerEntry struct {
	Name string
	ID   int
}

func (p PlayerEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Name, p.ID})
}

func (p *PlayerEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("player entry has %d elements, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &p.ID)
}

// Hello p2s(name, password)：登录；s2p(name, id)：有玩家上线（包括自己）
type Hello struct {
	Envelope
	ID       *int    `json:"id"`
	Name     string  `json:"name"`
	Password *string `json:"password"`
}

// Bye p2s：主动断开；s2p：id 玩家离开或被踢（原因在 extra_info_str）
type Bye struct {
	Envelope
	ID int `json:"id"`
}

// PlayerList s2p：完整在线名单
type PlayerList struct {
	Envelope
	Players []PlayerEntry `json:"name_id_list"`
}

// Chat 广播（recipient_id 为空）或私聊
type Chat struct {
	Envelope
	Text        string `json:"text"`
	OriginID    *int   `json:"origin_id"`
	RecipientID *int   `json:"recipient_id"`
}

// Challenge 对战邀请，recipient_id 为空表示公开邀请。每个发起者最多一个。
type Challenge struct {
	Envelope
	ChallengeID *string `json:"challenge_id"`
	OriginID    int     `json:"origin_id"`
	RecipientID *int    `json:"recipient_id"`
	Text        *string `json:"text"`
}

// Open 是否为公开邀请
func (c *Challenge) Open() bool { return c.RecipientID == nil }

// Targets 邀请是否发给了 id（公开邀请对所有人成立）
func (c *Challenge) Targets(id int) bool {
	return c.RecipientID == nil || *c.RecipientID == id
}

// CancelChallenge 撤销 origin_id 发起的邀请
type CancelChallenge struct {
	Envelope
	OriginID int `json:"origin_id"`
}

// AcceptChallenge recipient 接受 origin 的邀请
type AcceptChallenge struct {
	Envelope
	OriginID    int  `json:"origin_id"`
	RecipientID *int `json:"recipient_id"`
}

// StartGame s2p：对局开始（还需布阵）
type StartGame struct {
	Envelope
	PlayerAID  int `json:"player_a_id"`
	PlayerBID  int `json:"player_b_id"`
	StartingID int `json:"starting_id"`
}

// ProposeBoardPlacement p2s：提交布阵，每条船一个坐标列表
type ProposeBoardPlacement struct {
	Envelope
	Boats [][]RowCol `json:"boat_row_col_lists"`
}

// Shot p2s：本回合射击；s2p：对手的射击（Shots 为 null 表示轮到你开火）
type Shot struct {
	Envelope
	Shots []RowCol `json:"row_col_lists"`
}

// Prompt 是否为空的回合提示
func (s *Shot) Prompt() bool { return s.Shots == nil }

// ShotResult s2p：上一轮射击的结果
type ShotResult struct {
	Envelope
	Hit      []int `json:"hit_length_list"`
	Sunk     []int `json:"sunk_length_list"`
	Finished bool  `json:"game_finished"`
}

func (*Hello) Kind() Kind                 { return KindHello }
func (*Bye) Kind() Kind                   { return KindBye }
func (*PlayerList) Kind() Kind            { return KindPlayerList }
func (*Chat) Kind() Kind                  { return KindChat }
func (*Challenge) Kind() Kind             { return KindChallenge }
func (*CancelChallenge) Kind() Kind       { return KindCancelChallenge }
func (*AcceptChallenge) Kind() Kind       { return KindAcceptChallenge }
func (*StartGame) Kind() Kind             { return KindStartGame }
func (*ProposeBoardPlacement) Kind() Kind { return KindProposeBoardPlacement }
func (*Shot) Kind() Kind                  { return KindShot }
func (*ShotResult) Kind() Kind            { return KindShotResult }

// New 按标签创建空的变体实例
func New(kind Kind) (Message, bool) {
	switch kind {
	case KindHello:
		return &Hello{}, true
	case KindBye:
		return &Bye{}, true
	case KindPlayerList:
		return &PlayerList{}, true
	case KindChat:
		return &Chat{}, true
	case KindChallenge:
		return &Challenge{}, true
	case KindCancelChallenge:
		return &CancelChallenge{}, true
	case KindAcceptChallenge:
		return &AcceptChallenge{}, true
	case KindStartGame:
		return &StartGame{}, true
	case KindProposeBoardPlacement:
		return &ProposeBoardPlacement{}, true
	case KindShot:
		return &Shot{}, true
	case KindShotResult:
		return &ShotResult{}, true
	default:
		return nil, false
	}
}

// requiredFields 解码时必须出现的键（值可以是 null）
var requiredFields = map[Kind][]string{
	KindHello:                 {"name"},
	KindBye:                   {"id"},
	KindPlayerList:            {"name_id_list"},
	KindChat:                  {"text"},
	KindChallenge:             {"origin_id"},
	KindCancelChallenge:       {"origin_id"},
	KindAcceptChallenge:       {"origin_id"},
	KindStartGame:             {"player_a_id", "player_b_id", "starting_id"},
	KindProposeBoardPlacement: {"boat_row_col_lists"},
	KindShot:                  {"row_col_lists"},
	KindShotResult:            {"hit_length_list", "sunk_length_list", "game_finished"},
}
