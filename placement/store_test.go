package placement

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"battl3ship/game"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "placements.db"), game.DefaultRules())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertRejectsInvalidAndDuplicate(t *testing.T) {
	s := openTestStore(t)
	layout := NewGenerator(game.DefaultRules(), 7).Generate()
	if err := s.Insert(layout[:3]); !errors.Is(err, ErrInvalid) {
		t.Fatalf("partial fleet: want ErrInvalid, got %v", err)
	}
	if err := s.Insert(layout); err != nil {
		t.Fatalf("insert: %v", err)
	}
	reversed := make([]game.Boat, len(layout))
	for i := range layout {
		reversed[len(layout)-1-i] = layout[i]
	}
	if err := s.Insert(reversed); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same occupancy: want ErrDuplicate, got %v", err)
	}
	if n, _ := s.Count(); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestRandomReturnsCanonicalStoredLayout(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Random(rand.New(rand.NewSource(1))); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty store: want ErrEmpty, got %v", err)
	}
	rules := game.DefaultRules()
	layout := NewGenerator(rules, 3).Generate()
	if err := s.Insert(layout); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.Random(rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	if OccupancyKey(rules, got) != OccupancyKey(rules, layout) {
		t.Fatalf("random returned a different layout")
	}
	if !rules.ValidateLayout(got, true) {
		t.Fatalf("stored layout no longer valid")
	}
}

func TestFillReachesTarget(t *testing.T) {
	s := openTestStore(t)
	added, err := s.Fill(context.Background(), 30, 3, 11)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	n, _ := s.Count()
	if n < 30 || added != n {
		t.Fatalf("count %d added %d, want at least 30", n, added)
	}
	again, err := s.Fill(context.Background(), 10, 2, 5)
	if err != nil || again != 0 {
		t.Fatalf("second fill should be a no-op, added %d err %v", again, err)
	}
}

func TestFillStopsOnCancel(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Fill(ctx, 1000000, 2, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestOccupancyKeyAndCanonical(t *testing.T) {
	rules := game.DefaultRules()
	boats := []game.Boat{
		{{Row: 5, Col: 6}, {Row: 5, Col: 5}},
		{{Row: 2, Col: 2}},
	}
	key := OccupancyKey(rules, boats)
	if len(key) != 100 || strings.Count(key, "1") != 3 || key[11] != '1' || key[44] != '1' || key[45] != '1' {
		t.Fatalf("unexpected key %s", key)
	}
	c := Canonical(boats)
	if c[0][0] != (game.Coord{Row: 2, Col: 2}) || c[1][0] != (game.Coord{Row: 5, Col: 5}) {
		t.Fatalf("unexpected canonical order %v", c)
	}
	if boats[0][0] != (game.Coord{Row: 5, Col: 6}) {
		t.Fatalf("canonical should not mutate its input")
	}
}
