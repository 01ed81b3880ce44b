package game

import (
	"sort"
	"strings"
)

const noBoat = -1

// Square 单个格子：占据它的船（在船表中的下标，noBoat 表示空）和落在这里的射击序号
type Square struct {
	boat  int
	shots []int
}

// HasBoat 是否有船
func (s Square) HasBoat() bool { return s.boat != noBoat }

// BoatIndex 船表下标，空格返回 -1
func (s Square) BoatIndex() int { return s.boat }

// Shots 按时间顺序的射击序号
func (s Square) Shots() []int { return append([]int(nil), s.shots...) }

// WasShot 是否被射击过
func (s Square) WasShot() bool { return len(s.shots) > 0 }

// Outcome 一轮射击的结算结果，两个列表均为升序船长
type Outcome struct {
	Hit      []int
	Sunk     []int
	Finished bool
}

// Board 一名玩家在一局中的棋盘：格子、船表、锁定标记和射击历史
type Board struct {
	rules   Rules
	squares [][]Square // [row-1][col-1]
	boats   []Boat
	locked  bool
	volleys [][]Coord
}

// NewBoard 创建一张空棋盘
func NewBoard(rules Rules) *Board {
	squares := make([][]Square, rules.Height)
	for r := range squares {
		squares[r] = make([]Square, rules.Width)
		for c := range squares[r] {
			squares[r][c].boat = noBoat
		}
	}
	return &Board{rules: rules, squares: squares}
}

// Locked 布阵是否已提交
func (b *Board) Locked() bool { return b.locked }

// Boats 已提交的船表副本
func (b *Board) Boats() []Boat {
	out := make([]Boat, len(b.boats))
	for i, boat := range b.boats {
		out[i] = append(Boat(nil), boat...)
	}
	return out
}

// Volleys 射击历史（每项为一轮的坐标）
func (b *Board) Volleys() [][]Coord {
	out := make([][]Coord, len(b.volleys))
	for i, v := range b.volleys {
		out[i] = append([]Coord(nil), v...)
	}
	return out
}

// At 取格子；越界返回空格子和 false
func (b *Board) At(c Coord) (Square, bool) {
	if !b.rules.InBounds(c) {
		return Square{boat: noBoat}, false
	}
	return b.squares[c.Row-1][c.Col-1], true
}

func (b *Board) square(c Coord) *Square {
	return &b.squares[c.Row-1][c.Col-1]
}

// Commit 写入布阵并锁定棋盘。调用方负责事先 ValidateLayout。
func (b *Board) Commit(boats []Boat) error {
	if b.locked {
		return wrongStatef("board already locked")
	}
	for _, boat := range boats {
		for _, c := range boat {
			if !b.rules.InBounds(c) {
				return invalidf("boat square %s out of bounds", c)
			}
		}
	}
	b.boats = make([]Boat, len(boats))
	for i, boat := range boats {
		b.boats[i] = append(Boat(nil), boat...)
		for _, c := range boat {
			b.square(c).boat = i
		}
	}
	b.locked = true
	return nil
}

// Resolve 结算一轮射击。每个格子追加本轮序号；只有格子第一次被击中时才归因到船上，
// 因此重复射击已结算的格子不会再次上报。每条受影响的船只上报一次：全部格子
// 都被击中记为 sunk，否则记为 hit。
func (b *Board) Resolve(volley []Coord) (Outcome, error) {
	if !b.locked {
		return Outcome{}, wrongStatef("board not locked")
	}
	for _, c := range volley {
		if !b.rules.InBounds(c) {
			return Outcome{}, invalidf("shot %s out of bounds", c)
		}
	}

	b.volleys = append(b.volleys, append([]Coord(nil), volley...))
	seq := len(b.volleys)

	affected := make(map[int]struct{})
	for _, c := range volley {
		sq := b.square(c)
		sq.shots = append(sq.shots, seq)
		if len(sq.shots) == 1 && sq.boat != noBoat {
			affected[sq.boat] = struct{}{}
		}
	}

	out := Outcome{Hit: []int{}, Sunk: []int{}}
	for idx := range affected {
		boat := b.boats[idx]
		if b.destroyed(boat) {
			out.Sunk = append(out.Sunk, len(boat))
		} else {
			out.Hit = append(out.Hit, len(boat))
		}
	}
	sort.Ints(out.Hit)
	sort.Ints(out.Sunk)
	out.Finished = b.Finished()
	return out, nil
}

func (b *Board) destroyed(boat Boat) bool {
	for _, c := range boat {
		if !b.square(c).WasShot() {
			return false
		}
	}
	return true
}

// Finished 所有船的所有格子是否都已被击中
func (b *Board) Finished() bool {
	for _, boat := range b.boats {
		if !b.destroyed(boat) {
			return false
		}
	}
	return true
}

// String 调试用文本棋盘：· 空，B 未中船体，H 已中船体，M 落空
func (b *Board) String() string {
	var sb strings.Builder
	border := "+" + strings.Repeat("-", b.rules.Width) + "+"
	sb.WriteString(border)
	sb.WriteByte('\n')
	for r := 0; r < b.rules.Height; r++ {
		sb.WriteByte('|')
		for c := 0; c < b.rules.Width; c++ {
			sq := b.squares[r][c]
			switch {
			case sq.HasBoat() && sq.WasShot():
				sb.WriteByte('H')
			case sq.HasBoat():
				sb.WriteByte('B')
			case sq.WasShot():
				sb.WriteByte('M')
			default:
				sb.WriteString("·")
			}
		}
		sb.WriteString("|\n")
	}
	sb.WriteString(border)
	return sb.String()
}
