package engine

import (
	"errors"
	"sync/atomic"
)

var ErrQueueFull = errors.New("message queue is full")

// Queue is a bounded FIFO of messages from any number of control goroutines
// to the audio callback. Neither side ever blocks: Push fails when the queue
// is full and Pop reports when it is empty.
type Queue struct {
	ch       chan Message
	rejected atomic.Uint64
}

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Message, size)}
}

func (q *Queue) Push(m Message) error {
	if !TrySend(q.ch, m) {
		q.rejected.Add(1)
		return ErrQueueFull
	}
	return nil
}

func (q *Queue) Pop() (Message, bool) {
	return TryReceive(q.ch)
}

// Len is the number of messages waiting.
func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Cap() int { return cap(q.ch) }

// Rejected counts the pushes that failed because the queue was full.
func (q *Queue) Rejected() uint64 { return q.rejected.Load() }

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Return true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TryReceive returns the next value of c, or false if none is ready.
func TryReceive[T any](c <-chan T) (v T, ok bool) {
	select {
	case v = <-c:
		return v, true
	default:
		return v, false
	}
}
