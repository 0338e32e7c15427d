package orch

import (
	"sync"

	"github.com/dkeye/peerlink/internal/domain"
)

type eventKind int

const (
	evDescription eventKind = iota
	evCandidate
	evLocalCandidate
	evConnState
	evChannelEnded
	evStop
	evFail
)

type event struct {
	kind      eventKind
	desc      domain.SessionDescription
	cand      domain.IceCandidate
	connState domain.ConnectionState
	err       error
}

// eventQueue is an unbounded FIFO. push never blocks, so producers are never held up by the consumer.
type eventQueue struct {
	mu     sync.Mutex
	items  []event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an event is available.
func (q *eventQueue) pop() event {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return e
		}
		q.mu.Unlock()
		<-q.signal
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
