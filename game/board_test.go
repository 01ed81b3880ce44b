package game

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func lockedBoard(t *testing.T, boats ...Boat) *Board {
	t.Helper()
	b := NewBoard(DefaultRules())
	if err := b.Commit(boats); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return b
}

func TestResolveSingleSquareBoatSinks(t *testing.T) {
	b := lockedBoard(t, at(5, 5))
	out, err := b.Resolve([]Coord{{5, 5}, {1, 1}, {1, 2}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(out.Hit) != 0 || !reflect.DeepEqual(out.Sunk, []int{1}) || !out.Finished {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestResolveHitThenSunkAcrossVolleys(t *testing.T) {
	b := lockedBoard(t, row(4, 2, 4), at(8, 8))

	out, err := b.Resolve([]Coord{{4, 2}, {4, 3}, {6, 6}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(out.Hit, []int{3}) || len(out.Sunk) != 0 || out.Finished {
		t.Fatalf("first volley: %+v", out)
	}

	out, err = b.Resolve([]Coord{{4, 4}, {6, 7}, {6, 8}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(out.Hit) != 0 || !reflect.DeepEqual(out.Sunk, []int{3}) || out.Finished {
		t.Fatalf("second volley: %+v", out)
	}

	out, err = b.Resolve([]Coord{{8, 8}, {9, 9}, {9, 8}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(out.Sunk, []int{1}) || !out.Finished {
		t.Fatalf("final volley: %+v", out)
	}
}

func TestResolveReportsEachBoatOnce(t *testing.T) {
	b := lockedBoard(t, row(4, 2, 4), row(6, 2, 3), row(8, 2, 3))

	out, err := b.Resolve([]Coord{{4, 2}, {6, 2}, {8, 2}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(out.Hit, []int{2, 2, 3}) || len(out.Sunk) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	out, err = b.Resolve([]Coord{{4, 3}, {4, 4}, {6, 3}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(out.Hit) != 0 || !reflect.DeepEqual(out.Sunk, []int{2, 3}) {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestResolveDoesNotReReportShotSquares(t *testing.T) {
	b := lockedBoard(t, row(4, 2, 3))
	if _, err := b.Resolve([]Coord{{4, 2}, {1, 1}, {1, 2}}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	out, err := b.Resolve([]Coord{{4, 2}, {2, 2}, {2, 3}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(out.Hit) != 0 || len(out.Sunk) != 0 {
		t.Fatalf("re-shot square was reported: %+v", out)
	}
	sq, _ := b.At(Coord{4, 2})
	if !reflect.DeepEqual(sq.Shots(), []int{1, 2}) {
		t.Fatalf("shot history %v", sq.Shots())
	}
}

func TestResolveRequiresLockedBoard(t *testing.T) {
	b := NewBoard(DefaultRules())
	_, err := b.Resolve([]Coord{{1, 1}})
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
}

func TestCommitTwiceFails(t *testing.T) {
	b := lockedBoard(t, at(5, 5))
	err := b.Commit([]Boat{at(7, 7)})
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if sq, _ := b.At(Coord{7, 7}); sq.HasBoat() {
		t.Fatalf("second commit wrote occupancy")
	}
}

func TestBoardString(t *testing.T) {
	b := lockedBoard(t, row(2, 2, 3))
	if _, err := b.Resolve([]Coord{{2, 2}, {3, 3}, {5, 5}}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	lines := strings.Split(b.String(), "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines, got %d", len(lines))
	}
	if lines[2] != "|·HB·······|" {
		t.Fatalf("row 2 = %q", lines[2])
	}
	if lines[3] != "|··M·······|" {
		t.Fatalf("row 3 = %q", lines[3])
	}
}
