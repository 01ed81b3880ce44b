package server

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueEmpty  = errors.New("queue: empty")
	ErrQueueClosed = errors.New("queue: closed")
)

// Queue 无界 FIFO 队列，多生产者、单消费者。
// 入队从不阻塞，出队可以限时等待。
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	ready  chan struct{} // 有新元素或已关闭时可读
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push 入队。队列已关闭时丢弃并返回 false。
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
	return true
}

// Pop 取出队首；最多等待 wait。超时返回 ErrQueueEmpty，
// 关闭且已取空返回 ErrQueueClosed。
func (q *Queue[T]) Pop(wait time.Duration) (T, error) {
	var timer *time.Timer
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			if timer != nil {
				timer.Stop()
			}
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrQueueClosed
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		}
		select {
		case <-q.ready:
		case <-timer.C:
			var zero T
			return zero, ErrQueueEmpty
		}
	}
}

// Close 关闭队列，已入队的元素仍可取出
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
