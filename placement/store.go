package placement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"battl3ship/game"
)

var bucketName = []byte("placements")

var (
	ErrInvalid   = errors.New("placement: invalid layout")
	ErrDuplicate = errors.New("placement: duplicate layout")
	ErrEmpty     = errors.New("placement: store is empty")
)

// fillBatch 每个写事务最多插入的布阵数
const fillBatch = 512

// Store 基于 bbolt 的布阵数据集。
// 键是占用位图（H*W 个 '0'/'1'），值是规范化船表的 JSON。
type Store struct {
	db    *bolt.DB
	rules game.Rules
}

// Open 打开（必要时创建）数据集文件
func Open(path string, rules game.Rules) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open placement store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: db, rules: rules}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// OccupancyKey 把布阵编码成占用位图，逐行从左到右
func OccupancyKey(rules game.Rules, boats []game.Boat) string {
	cells := make([]byte, rules.Width*rules.Height)
	for i := range cells {
		cells[i] = '0'
	}
	for _, boat := range boats {
		for _, c := range boat {
			if rules.InBounds(c) {
				cells[(c.Row-1)*rules.Width+c.Col-1] = '1'
			}
		}
	}
	return string(cells)
}

// Canonical 返回排序后的副本：船内坐标按行列排序，船之间按首坐标排序
func Canonical(boats []game.Boat) []game.Boat {
	out := make([]game.Boat, len(boats))
	for i, boat := range boats {
		b := append(game.Boat(nil), boat...)
		sort.Slice(b, func(x, y int) bool { return less(b[x], b[y]) })
		out[i] = b
	}
	sort.Slice(out, func(x, y int) bool {
		a, b := out[x], out[y]
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return less(a[k], b[k])
			}
		}
		return len(a) < len(b)
	})
	return out
}

func less(a, b game.Coord) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

func encodeLayout(boats []game.Boat) ([]byte, error) {
	wire := make([][][2]int, len(boats))
	for i, boat := range boats {
		wire[i] = make([][2]int, len(boat))
		for j, c := range boat {
			wire[i][j] = [2]int{c.Row, c.Col}
		}
	}
	return json.Marshal(wire)
}

func decodeLayout(data []byte) ([]game.Boat, error) {
	var wire [][][2]int
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	boats := make([]game.Boat, len(wire))
	for i, boat := range wire {
		boats[i] = make(game.Boat, len(boat))
		for j, rc := range boat {
			boats[i][j] = game.Coord{Row: rc[0], Col: rc[1]}
		}
	}
	return boats, nil
}

// Insert 存入一个完整布阵。不合法返回 ErrInvalid，占用图已存在返回 ErrDuplicate。
func (s *Store) Insert(boats []game.Boat) error {
	if !s.rules.ValidateLayout(boats, true) {
		return ErrInvalid
	}
	key := OccupancyKey(s.rules, boats)
	value, err := encodeLayout(Canonical(boats))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(key)) != nil {
			return ErrDuplicate
		}
		return b.Put([]byte(key), value)
	})
}

// InsertBatch 在一个事务里存入多个布阵，跳过不合法和重复的
func (s *Store) InsertBatch(layouts [][]game.Boat) (added, skipped int, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, boats := range layouts {
			if !s.rules.ValidateLayout(boats, true) {
				skipped++
				continue
			}
			key := []byte(OccupancyKey(s.rules, boats))
			if b.Get(key) != nil {
				skipped++
				continue
			}
			value, err := encodeLayout(Canonical(boats))
			if err != nil {
				return err
			}
			if err := b.Put(key, value); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return added, skipped, nil
}

// Count 已存布阵数
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return n, err
}

// Random 均匀随机取出一个布阵
func (s *Store) Random(rng *rand.Rand) ([]game.Boat, error) {
	var boats []game.Boat
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		n := b.Stats().KeyN
		if n == 0 {
			return ErrEmpty
		}
		skip := rng.Intn(n)
		c := b.Cursor()
		k, v := c.First()
		for ; k != nil && skip > 0; skip-- {
			k, v = c.Next()
		}
		if k == nil {
			return ErrEmpty
		}
		var err error
		boats, err = decodeLayout(v)
		return err
	})
	return boats, err
}

// Fill 并行生成布阵直到数据集至少有 target 个，返回新增数量。
// 每个 worker 用 seed+i 作为种子。
func (s *Store) Fill(ctx context.Context, target, workers int, seed int64) (int, error) {
	have, err := s.Count()
	if err != nil || have >= target {
		return 0, err
	}
	if workers < 1 {
		workers = 1
	}
	fillCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(fillCtx)
	layouts := make(chan []game.Boat, fillBatch)

	for i := 0; i < workers; i++ {
		gen := NewGenerator(s.rules, seed+int64(i))
		g.Go(func() error {
			for {
				layout := gen.Generate()
				select {
				case layouts <- layout:
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	added := 0
	g.Go(func() error {
		defer stop()
		batch := make([][]game.Boat, 0, fillBatch)
		for have < target {
			batch = batch[:0]
			for len(batch) < cap(batch) && len(batch) < target-have {
				select {
				case l := <-layouts:
					batch = append(batch, l)
				case <-gctx.Done():
					return ctx.Err()
				}
			}
			n, _, err := s.InsertBatch(batch)
			if err != nil {
				return err
			}
			added += n
			have += n
		}
		return nil
	})

	err = g.Wait()
	return added, err
}
