// Package placement 生成随机的合法布阵，并把它们存入离线数据集。
// 它只依赖布阵校验，不接触在线会话。
package placement

import (
	"math/rand"

	"battl3ship/game"
)

// DefaultBudget 单次搜索的递归调用上限，超出后换一组随机顺序重来
const DefaultBudget = 100

// Generator 用有预算的随机深度优先搜索生成完整舰队。
// 非并发安全，每个 goroutine 使用自己的实例。
type Generator struct {
	rules  game.Rules
	rng    *rand.Rand
	budget int
	cells  []game.Coord
}

// NewGenerator 按规则和种子创建生成器。四个角不作为船的起点。
func NewGenerator(rules game.Rules, seed int64) *Generator {
	g := &Generator{rules: rules, rng: rand.New(rand.NewSource(seed)), budget: DefaultBudget}
	for r := 1; r <= rules.Height; r++ {
		for c := 1; c <= rules.Width; c++ {
			if (r == 1 || r == rules.Height) && (c == 1 || c == rules.Width) {
				continue
			}
			g.cells = append(g.cells, game.Coord{Row: r, Col: c})
		}
	}
	return g
}

// Generate 返回一个满足严格校验的完整布阵
func (g *Generator) Generate() []game.Boat {
	cells := append([]game.Coord(nil), g.cells...)
	for {
		lengths := g.rules.FleetLengths()
		g.rng.Shuffle(len(lengths), func(i, j int) { lengths[i], lengths[j] = lengths[j], lengths[i] })
		g.rng.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })
		calls := 0
		if layout, ok := g.search(cells, lengths, nil, &calls); ok {
			return layout
		}
	}
}

func (g *Generator) search(cells []game.Coord, lengths []int, placed []game.Boat, calls *int) ([]game.Boat, bool) {
	*calls++
	if *calls > g.budget || len(cells) == 0 {
		return nil, false
	}
	orientations := [2]bool{false, true}
	if g.rng.Intn(2) == 1 {
		orientations[0], orientations[1] = true, false
	}
	for _, horizontal := range orientations {
		boat, ok := g.boatAt(cells[0], lengths[0], horizontal)
		if !ok {
			continue
		}
		tentative := append(placed[:len(placed):len(placed)], boat)
		if !g.rules.ValidateLayout(tentative, false) {
			continue
		}
		if len(lengths) == 1 {
			return tentative, true
		}
		if len(cells) < needed(lengths[1:]) {
			return nil, false
		}
		rest := freeCells(cells[1:], boat)
		for i := range rest {
			if layout, ok := g.search(rest[i:], lengths[1:], tentative, calls); ok {
				return layout, true
			}
			if *calls > g.budget {
				return nil, false
			}
		}
	}
	return nil, false
}

// boatAt 以 origin 为左上端构造一条船，越界时 ok 为 false
func (g *Generator) boatAt(origin game.Coord, length int, horizontal bool) (game.Boat, bool) {
	boat := make(game.Boat, 0, length)
	for i := 0; i < length; i++ {
		c := origin
		if horizontal {
			c.Col += i
		} else {
			c.Row += i
		}
		if !g.rules.InBounds(c) {
			return nil, false
		}
		boat = append(boat, c)
	}
	return boat, true
}

// freeCells 去掉船本身及其八邻域
func freeCells(cells []game.Coord, boat game.Boat) []game.Coord {
	out := make([]game.Coord, 0, len(cells))
	for _, c := range cells {
		near := false
		for _, b := range boat {
			if abs(c.Row-b.Row) <= 1 && abs(c.Col-b.Col) <= 1 {
				near = true
				break
			}
		}
		if !near {
			out = append(out, c)
		}
	}
	return out
}

// needed 剩余船只大致需要的格子数（含四周留白），用于剪枝
func needed(lengths []int) int {
	n := 0
	for _, l := range lengths {
		n += 3 * (l + 1)
	}
	return n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
