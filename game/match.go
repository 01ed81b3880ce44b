package game

import "fmt"

// State 对局阶段
type State int

const (
	AwaitingPlacement State = iota
	AcceptingShots
	Finished
)

func (s State) String() string {
	switch s {
	case AwaitingPlacement:
		return "awaiting_placement"
	case AcceptingShots:
		return "accepting_shots"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MatchID 由有序的双方标识推导出的对局 ID
func MatchID(a, b Identity) string {
	return fmt.Sprintf("%d vs %d", a, b)
}

// Match 一局对战：双方各一张棋盘、当前回合、胜者
type Match struct {
	rules  Rules
	sideA  Identity
	sideB  Identity
	boardA *Board
	boardB *Board
	turn   Identity
	winner Identity
	state  State
}

// NewMatch 创建对局，starting 必须是双方之一
func NewMatch(a, b, starting Identity, rules Rules) (*Match, error) {
	if SameIdentity(a, b) {
		return nil, invalidf("player %d cannot play against themselves", a)
	}
	if !SameIdentity(starting, a) && !SameIdentity(starting, b) {
		return nil, invalidf("starting player %d not in match %s", starting, MatchID(a, b))
	}
	return &Match{
		rules:  rules,
		sideA:  a,
		sideB:  b,
		boardA: NewBoard(rules),
		boardB: NewBoard(rules),
		turn:   starting,
		state:  AwaitingPlacement,
	}, nil
}

func (m *Match) ID() string           { return MatchID(m.sideA, m.sideB) }
func (m *Match) SideA() Identity      { return m.sideA }
func (m *Match) SideB() Identity      { return m.sideB }
func (m *Match) Turn() Identity       { return m.turn }
func (m *Match) State() State         { return m.state }
func (m *Match) AcceptingShots() bool { return m.state == AcceptingShots }

// Winner 仅在对局结束后有效
func (m *Match) Winner() (Identity, bool) {
	return m.winner, m.state == Finished
}

// Involves 该玩家是否在本局中
func (m *Match) Involves(id Identity) bool {
	return SameIdentity(id, m.sideA) || SameIdentity(id, m.sideB)
}

// Opponent 返回对手标识
func (m *Match) Opponent(id Identity) (Identity, bool) {
	switch {
	case SameIdentity(id, m.sideA):
		return m.sideB, true
	case SameIdentity(id, m.sideB):
		return m.sideA, true
	default:
		return 0, false
	}
}

// Board 返回该玩家自己的棋盘
func (m *Match) Board(id Identity) (*Board, bool) {
	switch {
	case SameIdentity(id, m.sideA):
		return m.boardA, true
	case SameIdentity(id, m.sideB):
		return m.boardB, true
	default:
		return nil, false
	}
}

// Place 校验并提交布阵；双方都锁定后进入 AcceptingShots，返回 true
func (m *Match) Place(id Identity, boats []Boat) (bool, error) {
	board, ok := m.Board(id)
	if !ok {
		return false, invalidf("player %d not in match %s", id, m.ID())
	}
	if m.state != AwaitingPlacement {
		return false, wrongStatef("match %s is %s", m.ID(), m.state)
	}
	if board.Locked() {
		return false, wrongStatef("player %d already placed boats", id)
	}
	if !m.rules.ValidateLayout(boats, true) {
		return false, invalidf("invalid boat placement")
	}
	if err := board.Commit(boats); err != nil {
		return false, err
	}
	if m.boardA.Locked() && m.boardB.Locked() {
		m.state = AcceptingShots
		return true, nil
	}
	return false, nil
}

// Shoot 执行一个回合：校验、结算到对手棋盘、判定胜负，并无条件切换回合
func (m *Match) Shoot(from Identity, volley []Coord) (Outcome, error) {
	if m.state != AcceptingShots {
		return Outcome{}, wrongStatef("match %s is %s", m.ID(), m.state)
	}
	if !SameIdentity(from, m.turn) {
		return Outcome{}, wrongStatef("not player %d's turn", from)
	}
	opponent, _ := m.Opponent(from)
	target, _ := m.Board(opponent)

	if len(volley) != m.rules.VolleySize {
		return Outcome{}, invalidf("volley has %d shots, want %d", len(volley), m.rules.VolleySize)
	}
	seen := make(map[Coord]struct{}, len(volley))
	for _, c := range volley {
		if !m.rules.InBounds(c) {
			return Outcome{}, invalidf("shot %s out of bounds", c)
		}
		if _, dup := seen[c]; dup {
			return Outcome{}, invalidf("repeated shot %s in volley", c)
		}
		seen[c] = struct{}{}
		if sq, _ := target.At(c); sq.WasShot() {
			return Outcome{}, invalidf("square %s already shot", c)
		}
	}

	out, err := target.Resolve(volley)
	if err != nil {
		return Outcome{}, err
	}
	if out.Finished {
		m.winner = from
		m.state = Finished
	}
	m.turn = opponent
	return out, nil
}
