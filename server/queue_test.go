package server

import (
	"errors"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Fatalf("len = %d", q.Len())
	}
	for i := 0; i < 5; i++ {
		v, err := q.Pop(0)
		if err != nil || v != i {
			t.Fatalf("pop %d: got %d, %v", i, v, err)
		}
	}
	if _, err := q.Pop(10 * time.Millisecond); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("empty queue: got %v", err)
	}
}

func TestQueueWakesWaiter(t *testing.T) {
	q := NewQueue[string]()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push("late")
	}()
	v, err := q.Pop(2 * time.Second)
	if err != nil || v != "late" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Close()
	if q.Push(3) {
		t.Fatalf("push after close should be refused")
	}
	for _, want := range []int{1, 2} {
		if v, err := q.Pop(0); err != nil || v != want {
			t.Fatalf("got %d, %v; want %d", v, err, want)
		}
	}
	if _, err := q.Pop(time.Second); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("drained closed queue: got %v", err)
	}
}

func TestQueueCloseWakesWaiter(t *testing.T) {
	q := NewQueue[int]()
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(5 * time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	q.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not wake the waiter")
	}
}
