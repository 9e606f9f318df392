package service

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

const (
	localSubBuffer    = 128
	localStreamMaxLen = 10000
)

// LocalBus is an in-process domain.SignalBus used when no Redis is
// configured. Channel patterns follow path.Match. Slow subscribers lose
// messages rather than block publishers.
type LocalBus struct {
	mu      sync.Mutex
	nextSub int
	subs    map[int]localSub
	seq     uint64
	streams map[string][]domain.StreamMessage
}

type localSub struct {
	pattern string
	ch      chan []byte
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:    make(map[int]localSub),
		streams: make(map[string][]domain.StreamMessage),
	}
}

// Publish delivers payload to every matching subscriber.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !channelMatch(s.pattern, channel) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

func channelMatch(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}

// Subscribe returns payloads published on channels matching channel. The
// returned channel closes when ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("local_bus: subscribe %s: %w", channel, err)
	}

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan []byte, localSubBuffer)
	b.subs[id] = localSub{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend adds payload to stream, trimming the oldest entries past the
// cap.
func (b *LocalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msg := domain.StreamMessage{
		ID:      fmt.Sprintf("%d-%d", time.Now().UnixMilli(), b.seq),
		Payload: payload,
	}
	s := append(b.streams[stream], msg)
	if len(s) > localStreamMaxLen {
		s = s[len(s)-localStreamMaxLen:]
	}
	b.streams[stream] = s
	return nil
}

// StreamRead returns up to count entries after lastID. "" and "0" read from
// the start.
func (b *LocalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := streamSeq(lastID)
	if err != nil {
		return nil, fmt.Errorf("local_bus: stream read %s: %w", stream, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if count > 0 && len(out) == count {
			break
		}
		seq, _ := streamSeq(m.ID)
		if seq > after {
			out = append(out, m)
		}
	}
	return out, nil
}

// streamSeq extracts the sequence part of an "<ms>-<seq>" id.
func streamSeq(id string) (uint64, error) {
	if id == "" || id == "0" {
		return 0, nil
	}
	if i := strings.IndexByte(id, '-'); i >= 0 {
		id = id[i+1:]
	}
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stream id %q", id)
	}
	return seq, nil
}

var _ domain.SignalBus = (*LocalBus)(nil)
