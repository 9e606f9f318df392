// Package relay carries book updates from a venue stream reader to the
// gateway's consumer. Updates wait in a drop-oldest buffer and are numbered
// per key as they leave it, so an evicted update never shows up downstream as
// a sequence gap. Only a gap the stream reader reports with MarkGap does.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
)

type update[T any] struct {
	item T
	at   int64
}

// Relay buffers updates of type T for one venue.
type Relay[T any] struct {
	venue  domain.Venue
	key    func(T) string
	stamp  func(T, uint64) T
	queue  *ingest.Queue[update[T]]
	out    chan domain.VenueMessage
	stop   chan struct{}
	once   sync.Once
	logger *slog.Logger

	mu   sync.Mutex
	seqs map[string]uint64
	gaps map[string]bool
}

// New creates a Relay holding at most capacity pending updates. key names
// the stream an update belongs to and stamp returns the update carrying its
// sequence number.
func New[T any](venue domain.Venue, capacity int, key func(T) string, stamp func(T, uint64) T, logger *slog.Logger) *Relay[T] {
	r := &Relay[T]{
		venue:  venue,
		key:    key,
		stamp:  stamp,
		out:    make(chan domain.VenueMessage),
		stop:   make(chan struct{}),
		logger: logger.With(slog.String("component", "relay")),
		seqs:   make(map[string]uint64),
		gaps:   make(map[string]bool),
	}
	r.queue = ingest.New(string(venue)+"_updates", capacity, ingest.DropOldest,
		ingest.WithOverflow(func(u update[T]) {
			r.logger.Debug("relay: buffer full, oldest update evicted", slog.String("key", key(u.item)))
		}))
	go r.pump()
	return r
}

// Publish offers an update. When the buffer is full the oldest pending
// update is evicted. Publishing after Close is a no-op.
func (r *Relay[T]) Publish(item T) {
	_ = r.queue.Enqueue(context.Background(), update[T]{item: item, at: time.Now().UnixNano()})
}

// MarkGap records that the venue stream for key skipped updates. The next
// update delivered for key skips one sequence number.
func (r *Relay[T]) MarkGap(key string) {
	r.mu.Lock()
	r.gaps[key] = true
	r.mu.Unlock()
}

// LastSeq returns the last sequence number assigned for key.
func (r *Relay[T]) LastSeq(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seqs[key]
}

// Messages returns the delivery channel. It is closed after Close.
func (r *Relay[T]) Messages() <-chan domain.VenueMessage { return r.out }

// Close stops delivery. It is idempotent.
func (r *Relay[T]) Close() {
	r.once.Do(func() {
		close(r.stop)
		r.queue.Close()
	})
}

func (r *Relay[T]) pump() {
	defer close(r.out)
	for {
		u, err := r.queue.Dequeue(context.Background())
		if err != nil {
			return
		}
		msg := domain.VenueMessage{Venue: r.venue, Payload: r.next(u.item), ReceivedAt: u.at}
		select {
		case r.out <- msg:
		case <-r.stop:
			return
		}
	}
}

func (r *Relay[T]) next(item T) T {
	k := r.key(item)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.seqs[k] + 1
	if r.gaps[k] {
		n++
		delete(r.gaps, k)
	}
	r.seqs[k] = n
	return r.stamp(item, n)
}
