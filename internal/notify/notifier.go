// Package notify delivers operator alerts for detected opportunities, trade
// results and periodic summaries. Messages fan out to every registered sender
// (Telegram, Discord) and are filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// Event types understood by the notifier filter.
const (
	EventStartup      = "startup"
	EventOpportunity  = "opportunity"
	EventTradeSuccess = "trade_success"
	EventTradeFailed  = "trade_failed"
	EventSummary      = "summary"
)

// defaultQueueSize bounds the number of undelivered messages held by Post.
const defaultQueueSize = 64

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

type message struct {
	event string
	title string
	body  string
}

// Notifier dispatches notifications to one or more Senders. Notify delivers
// synchronously; Post hands the message to the Run loop and drops it when the
// queue is full so detection never waits on a chat API.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	queue   chan message
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice are forwarded; an empty slice
// allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan message, defaultQueueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Allows reports whether event passes the configured filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends a notification to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, body string) error {
	if !n.Enabled() {
		return nil
	}
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, body)
}

// Post queues a notification for the Run loop. It never blocks.
func (n *Notifier) Post(event, title, body string) {
	if !n.Enabled() || !n.Allows(event) {
		return
	}
	select {
	case n.queue <- message{event: event, title: title, body: body}:
	default:
		n.dropped.Add(1)
		n.logger.Warn("notification queue full, dropping message",
			slog.String("event", event),
		)
	}
}

// Dropped returns how many posted messages were discarded on a full queue.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run delivers posted messages until ctx is cancelled. Delivery errors are
// logged and otherwise ignored.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.queue:
			if err := n.dispatch(ctx, m.title, m.body); err != nil {
				n.logger.WarnContext(ctx, "notification delivery failed",
					slog.String("event", m.event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, body string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, body); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
