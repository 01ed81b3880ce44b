package game

import (
	"fmt"
	"sort"
)

// Identity 服务端分配的玩家标识，仅在当前在线玩家之间唯一
type Identity int

// SameIdentity 显式的身份比较（只看整数标识，不看名字）
func SameIdentity(a, b Identity) bool { return a == b }

// Coord 棋盘坐标，行列均从 1 开始
type Coord struct {
	Row int
	Col int
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Boat 一条船占据的有序坐标
type Boat []Coord

// Rules 对局期间不变的棋盘尺寸与舰队构成
type Rules struct {
	Width      int
	Height     int
	Fleet      map[int]int // 船长 -> 数量
	VolleySize int         // 每回合射击数
}

// DefaultRules 10x10 棋盘：1 条 4 格、2 条 3 格、3 条 2 格、4 条 1 格，每回合 3 发
func DefaultRules() Rules {
	return Rules{
		Width:      10,
		Height:     10,
		Fleet:      map[int]int{4: 1, 3: 2, 2: 3, 1: 4},
		VolleySize: 3,
	}
}

// InBounds 坐标是否在棋盘内
func (r Rules) InBounds(c Coord) bool {
	return c.Row >= 1 && c.Row <= r.Height && c.Col >= 1 && c.Col <= r.Width
}

// FleetLengths 按船长降序展开的舰队，如 [4 3 3 2 2 2 1 1 1 1]
func (r Rules) FleetLengths() []int {
	lengths := make([]int, 0, 10)
	for length, count := range r.Fleet {
		for i := 0; i < count; i++ {
			lengths = append(lengths, length)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(lengths)))
	return lengths
}

// ValidateLayout 使用默认规则校验布阵
func ValidateLayout(boats []Boat, strict bool) bool {
	return DefaultRules().ValidateLayout(boats, strict)
}

// ValidateLayout 校验布阵是否合法，只读，不会修改任何状态。
// strict 为 true 时舰队数量必须与规则完全一致，否则只要求不超过。
// 规则：船长只能取舰队中的长度；坐标不重复；每条船为横向或纵向连续直线；
// 任意两船在 8 邻域内不相邻；没有船完全贴在首行、末行、首列或末列上。
func (r Rules) ValidateLayout(boats []Boat, strict bool) bool {
	countByLength := make(map[int]int)
	used := make(map[Coord]struct{})
	for _, boat := range boats {
		if _, ok := r.Fleet[len(boat)]; !ok {
			return false
		}
		countByLength[len(boat)]++
		for _, c := range boat {
			if !r.InBounds(c) {
				return false
			}
			if _, dup := used[c]; dup {
				return false
			}
			used[c] = struct{}{}
		}
	}

	for length, required := range r.Fleet {
		got := countByLength[length]
		if strict && got != required {
			return false
		}
		if got > required {
			return false
		}
	}

	for i, boat := range boats {
		if r.onEdge(boat) || !straight(boat) {
			return false
		}
		for _, other := range boats[i+1:] {
			if touching(boat, other) {
				return false
			}
		}
	}
	return true
}

// onEdge 整条船都在同一条边界行/列上
func (r Rules) onEdge(boat Boat) bool {
	all := func(pred func(Coord) bool) bool {
		for _, c := range boat {
			if !pred(c) {
				return false
			}
		}
		return true
	}
	return all(func(c Coord) bool { return c.Row == 1 }) ||
		all(func(c Coord) bool { return c.Row == r.Height }) ||
		all(func(c Coord) bool { return c.Col == 1 }) ||
		all(func(c Coord) bool { return c.Col == r.Width })
}

func straight(boat Boat) bool {
	if len(boat) <= 1 {
		return true
	}
	sameRow, sameCol := true, true
	for _, c := range boat[1:] {
		if c.Row != boat[0].Row {
			sameRow = false
		}
		if c.Col != boat[0].Col {
			sameCol = false
		}
	}
	var line []int
	switch {
	case sameRow:
		for _, c := range boat {
			line = append(line, c.Col)
		}
	case sameCol:
		for _, c := range boat {
			line = append(line, c.Row)
		}
	default:
		return false
	}
	sort.Ints(line)
	for i := 1; i < len(line); i++ {
		if line[i] != line[i-1]+1 {
			return false
		}
	}
	return true
}

func touching(a, b Boat) bool {
	for _, ca := range a {
		for _, cb := range b {
			if abs(ca.Row-cb.Row) <= 1 && abs(ca.Col-cb.Col) <= 1 {
				return true
			}
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
