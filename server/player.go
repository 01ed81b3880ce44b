package server

import (
	"fmt"

	"battl3ship/game"
	"battl3ship/protocol"
)

const (
	// ServerIdentity 服务端自身发出的消息使用的 from_id
	ServerIdentity game.Identity = -1
	// UnknownIdentity 尚未分配身份的连接（握手被拒时的 Bye.id）
	UnknownIdentity game.Identity = -2
)

// Participant 一个已登录的玩家，生命周期与连接相同
type Participant struct {
	ID   game.Identity
	Name string
	Addr string // 远端 IP，用于按地址限流

	conn   *ClientConn
	kicked bool // 已被踢出，后续入站消息忽略
	gone   bool // 已从名册移除
}

func (p *Participant) String() string {
	return fmt.Sprintf("[Player(id=%d,name=%s)]", p.ID, p.Name)
}

func (p *Participant) entry() protocol.PlayerEntry {
	return protocol.PlayerEntry{Name: p.Name, ID: int(p.ID)}
}

// delivery 出站漏斗中的一项：发给谁、发什么
type delivery struct {
	to         *Participant
	msg        protocol.Message
	closeAfter bool // 写出后关闭连接（踢人）
	closeBox   bool // 关闭收件人邮箱（断开）
}
