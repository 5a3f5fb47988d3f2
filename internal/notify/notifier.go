// Package notify delivers session alerts to operator chat channels. Every
// alert goes to all registered senders and can be filtered by event so
// operators only hear about what they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// Event names accepted in the notification filter.
const (
	EventSessionSuccess   = "session_success"
	EventSessionPartial   = "session_partial"
	EventSessionFailed    = "session_failed"
	EventSessionEmptyPlan = "session_empty_plan"
	EventTriggerRejected  = "trigger_rejected"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Level colours a message in channels that support it.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Message is a rendered alert.
type Message struct {
	Title string
	Lines []string
	Level Level
}

// Text joins the body lines.
func (m Message) Text() string {
	return strings.Join(m.Lines, "\n")
}

// Notifier fans alerts out to its senders. A nil *Notifier discards
// everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
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
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends msg if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// NotifySession renders a finished session and sends it under the event that
// matches its outcome.
func (n *Notifier) NotifySession(ctx context.Context, s domain.Summary) error {
	event, msg := SessionMessage(s)
	return n.Notify(ctx, event, msg)
}

// NotifyRejected reports a trigger that never produced a session.
func (n *Notifier) NotifyRejected(ctx context.Context, t domain.Trigger, reason error) error {
	return n.Notify(ctx, EventTriggerRejected, Message{
		Title: "Trigger rejected",
		Lines: []string{
			"Target: " + t.TargetMint,
			"Reason: " + reason.Error(),
		},
		Level: LevelWarn,
	})
}

// SessionMessage formats a session summary.
func SessionMessage(s domain.Summary) (string, Message) {
	msg := Message{
		Lines: []string{
			"Target: " + s.TargetMint,
			fmt.Sprintf("Trades: %d/%d ok (%.0f%%)", s.Successes, s.Attempts, s.SuccessRate),
			"Spent: " + s.TotalSpentSOL + " SOL",
			fmt.Sprintf("Acquired (min): %d", s.TotalAcquired),
			fmt.Sprintf("Elapsed: %dms, avg trade %dms", s.ElapsedMs, s.AvgLatencyMs),
		},
	}
	if s.PriceSOL != "" {
		msg.Lines = append(msg.Lines, "Price: "+s.PriceSOL+" SOL")
	}
	if s.UnconfirmedSig > 0 {
		msg.Lines = append(msg.Lines, fmt.Sprintf("Unconfirmed: %d", s.UnconfirmedSig))
	}
	for _, sig := range s.Signatures {
		msg.Lines = append(msg.Lines, "tx: "+sig)
	}

	var event string
	switch s.Outcome {
	case domain.OutcomeSuccess:
		event, msg.Title, msg.Level = EventSessionSuccess, "Buy complete", LevelInfo
	case domain.OutcomePartial:
		event, msg.Title, msg.Level = EventSessionPartial, "Buy partially filled", LevelWarn
	case domain.OutcomeEmptyPlan:
		event, msg.Title, msg.Level = EventSessionEmptyPlan, "Nothing to buy", LevelWarn
		msg.Lines = msg.Lines[:1]
	default:
		event, msg.Title, msg.Level = EventSessionFailed, "Buy failed", LevelError
		for _, r := range s.Results {
			if r.ErrorKind != domain.KindNone {
				msg.Lines = append(msg.Lines, fmt.Sprintf("#%d %s", r.Index+1, r.ErrorKind))
			}
		}
	}
	return event, msg
}

// dispatch delivers to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
