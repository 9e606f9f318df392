// Package ingest provides the bounded, policy-driven buffer that sits between
// feed adapters and the order book.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/metrics"
)

// DefaultCapacity is used when a queue is created with a non-positive size.
const DefaultCapacity = 10_000

// Policy decides what Enqueue does when the queue is full.
type Policy string

const (
	// Block suspends the producer until space frees.
	Block Policy = "block"
	// DropOldest evicts the oldest buffered item to admit the new one.
	DropOldest Policy = "drop_oldest"
	// DropNewest rejects the new item and leaves the buffer unchanged.
	DropNewest Policy = "drop_newest"
	// Raise fails the producer with a *domain.CapacityError.
	Raise Policy = "raise"
)

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case Block, DropOldest, DropNewest, Raise:
		return p, nil
	default:
		return "", fmt.Errorf("ingest: unknown policy %q", s)
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Name      string        `json:"name"`
	Policy    Policy        `json:"policy"`
	Capacity  int           `json:"capacity"`
	Depth     int           `json:"depth"`
	HighWater int           `json:"high_water"`
	Enqueued  uint64        `json:"enqueued"`
	Dequeued  uint64        `json:"dequeued"`
	Dropped   uint64        `json:"dropped"`
	Rejected  uint64        `json:"rejected"`
	AvgWait   time.Duration `json:"avg_wait_ns"`
}

type entry[T any] struct {
	item T
	at   time.Time
}

// Queue is a bounded FIFO whose full-buffer behavior is set per instance.
// It is safe for concurrent producers and consumers.
type Queue[T any] struct {
	name     string
	policy   Policy
	capacity int
	buf      chan entry[T]
	done     chan struct{}
	once     sync.Once

	// evictMu serializes DropOldest producers so each admission evicts at
	// most one item.
	evictMu sync.Mutex

	onOverflow func(T)
	metrics    *metrics.Metrics

	enqueued  atomic.Uint64
	dequeued  atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	waitNanos atomic.Int64
	highWater atomic.Int64
}

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithOverflow registers fn to receive every evicted or rejected item.
func WithOverflow[T any](fn func(T)) Option[T] {
	return func(q *Queue[T]) { q.onOverflow = fn }
}

// WithMetrics exports queue counters under the queue's name.
func WithMetrics[T any](m *metrics.Metrics) Option[T] {
	return func(q *Queue[T]) { q.metrics = m }
}

// New creates a queue holding at most capacity items.
func New[T any](name string, capacity int, policy Policy, opts ...Option[T]) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if policy == "" {
		policy = Block
	}
	q := &Queue[T]{
		name:     name,
		policy:   policy,
		capacity: capacity,
		buf:      make(chan entry[T], capacity),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue offers item to the queue according to the queue's policy. It returns
// nil when the item was admitted or silently dropped under DropNewest.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case <-q.done:
		return domain.ErrQueueClosed
	default:
	}

	e := entry[T]{item: item, at: time.Now()}

	switch q.policy {
	case DropOldest:
		q.evictMu.Lock()
		defer q.evictMu.Unlock()
		for {
			select {
			case q.buf <- e:
				q.admitted()
				return nil
			default:
			}
			select {
			case old := <-q.buf:
				q.dropped.Add(1)
				q.metrics.QueueDrop(q.name, string(q.policy))
				q.overflow(old.item)
			default:
			}
		}

	case DropNewest:
		select {
		case q.buf <- e:
			q.admitted()
		default:
			q.dropped.Add(1)
			q.metrics.QueueDrop(q.name, string(q.policy))
			q.overflow(item)
		}
		return nil

	case Raise:
		select {
		case q.buf <- e:
			q.admitted()
			return nil
		default:
			q.rejected.Add(1)
			q.metrics.QueueDrop(q.name, string(q.policy))
			q.overflow(item)
			return &domain.CapacityError{Queue: q.name, Capacity: q.capacity}
		}

	default: // Block
		select {
		case q.buf <- e:
			q.admitted()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return domain.ErrQueueClosed
		}
	}
}

// Dequeue returns the oldest item, blocking until one is available. After
// Close it drains the remaining items and then returns domain.ErrQueueClosed.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case e := <-q.buf:
		return q.taken(e), nil
	default:
	}
	select {
	case e := <-q.buf:
		return q.taken(e), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		select {
		case e := <-q.buf:
			return q.taken(e), nil
		default:
			return zero, domain.ErrQueueClosed
		}
	}
}

// Close stops the queue from admitting new items. It is idempotent.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int { return len(q.buf) }

// Name returns the queue's name.
func (q *Queue[T]) Name() string { return q.name }

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	s := Stats{
		Name:      q.name,
		Policy:    q.policy,
		Capacity:  q.capacity,
		Depth:     len(q.buf),
		HighWater: int(q.highWater.Load()),
		Enqueued:  q.enqueued.Load(),
		Dequeued:  q.dequeued.Load(),
		Dropped:   q.dropped.Load(),
		Rejected:  q.rejected.Load(),
	}
	if s.Dequeued > 0 {
		s.AvgWait = time.Duration(q.waitNanos.Load() / int64(s.Dequeued))
	}
	return s
}

func (q *Queue[T]) admitted() {
	q.enqueued.Add(1)
	depth := int64(len(q.buf))
	for {
		hw := q.highWater.Load()
		if depth <= hw || q.highWater.CompareAndSwap(hw, depth) {
			break
		}
	}
	q.metrics.QueueAdmitted(q.name)
	q.metrics.SetQueueDepth(q.name, int(depth))
}

func (q *Queue[T]) taken(e entry[T]) T {
	q.dequeued.Add(1)
	q.waitNanos.Add(int64(time.Since(e.at)))
	q.metrics.SetQueueDepth(q.name, len(q.buf))
	return e.item
}

func (q *Queue[T]) overflow(item T) {
	if q.onOverflow != nil {
		q.onOverflow(item)
	}
}
