// Package notify delivers operator alerts to chat channels. Alerts are
// filtered by event type and sent from a background loop, so a slow chat API
// never holds up an execution.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
)

const (
	defaultQueueSize = 256
	sendTimeout      = 10 * time.Second
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type alert struct {
	event   string
	title   string
	message string
}

// Notifier fans alerts out to every Sender. Only events in the allowed set
// are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	prefix  string
	queue   *ingest.Queue[alert]
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. prefix, if set, is prepended to every
// title, e.g. "[paper]".
func NewNotifier(senders []Sender, events []string, prefix string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	n.queue = ingest.New[alert]("notify", defaultQueueSize, ingest.DropOldest,
		ingest.WithOverflow(func(a alert) {
			n.logger.Warn("notifier: queue full, alert dropped", slog.String("event", a.event))
		}),
	)
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify queues an alert for delivery if its event type is allowed. It never
// blocks on the network.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notifier: event filtered out", slog.String("event", event))
		return nil
	}
	if err := n.queue.Enqueue(ctx, alert{event: event, title: title, message: message}); err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", event, err)
	}
	return nil
}

// Run delivers queued alerts until ctx is done, then flushes what is left.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		a, err := n.queue.Dequeue(ctx)
		if err != nil {
			break
		}
		n.deliver(ctx, a)
	}

	n.queue.Close()
	flushCtx := context.WithoutCancel(ctx)
	for {
		a, err := n.queue.Dequeue(flushCtx)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) {
				return nil
			}
			return err
		}
		n.deliver(flushCtx, a)
	}
}

func (n *Notifier) deliver(ctx context.Context, a alert) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := n.Send(ctx, a.title, a.message); err != nil {
		n.logger.WarnContext(ctx, "notifier: delivery failed",
			slog.String("event", a.event),
			slog.String("error", err.Error()),
		)
	}
}

// Send delivers to every sender now, bypassing the filter and the queue. A
// failing sender does not stop delivery to the others.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	if n.prefix != "" {
		title = n.prefix + " " + title
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
