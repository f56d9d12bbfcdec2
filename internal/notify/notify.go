// Package notify is the notification surface: fire-and-forget messages with a
// severity and a display duration.
package notify

import (
	"context"
	"sync"
	"time"

	"homebudget/internal/log"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

// DefaultDuration is how long a transient notification stays visible.
const DefaultDuration = 3 * time.Second

// Notification is one message for the user. A zero Duration marks a
// persistent notification that must be dismissed explicitly.
type Notification struct {
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// Persistent reports whether the notification never auto-dismisses.
func (n Notification) Persistent() bool { return n.Duration == 0 }

// Notifier displays notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Transient builds a notification with the default duration.
func Transient(sev Severity, msg string) Notification {
	return Notification{Message: msg, Severity: sev, Duration: DefaultDuration}
}

// Persistent builds a notification that stays until dismissed.
func Persistent(sev Severity, msg string) Notification {
	return Notification{Message: msg, Severity: sev}
}

// Queue is a bounded inbox. When full the oldest notification is dropped.
type Queue struct {
	mu    sync.Mutex
	items []Notification
	limit int
	now   func() time.Time
}

func NewQueue(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{limit: limit, now: time.Now}
}

func (q *Queue) Notify(_ context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = q.now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.limit {
		q.items = q.items[1:]
	}
	q.items = append(q.items, n)
}

// Drain returns and removes every queued notification, oldest first.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Len returns the number of queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent(log.ComponentNotify)}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	args := []any{log.FieldSeverity, string(n.Severity), "persistent", n.Persistent()}
	switch n.Severity {
	case Danger:
		l.logger.ErrorContext(ctx, n.Message, args...)
	case Warning:
		l.logger.WarnContext(ctx, n.Message, args...)
	default:
		l.logger.InfoContext(ctx, n.Message, args...)
	}
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}
