package notify

import (
	"context"
	"testing"
	"time"
)

func TestQueueDropsOldest(t *testing.T) {
	q := NewQueue(2)
	ctx := context.Background()
	q.Notify(ctx, Transient(Info, "one"))
	q.Notify(ctx, Transient(Success, "two"))
	q.Notify(ctx, Persistent(Danger, "three"))

	got := q.Drain()
	if len(got) != 2 || got[0].Message != "two" || got[1].Message != "three" {
		t.Fatalf("unexpected queue contents: %+v", got)
	}
	if got[0].At.IsZero() {
		t.Error("timestamp not set")
	}
	if !got[1].Persistent() || got[0].Persistent() {
		t.Error("persistence flags wrong")
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Error("drain should empty the queue")
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewQueue(5), NewQueue(5)
	var seen []string
	m := Multi{a, nil, b, Func(func(_ context.Context, n Notification) { seen = append(seen, n.Message) })}
	m.Notify(context.Background(), Notification{Message: "hi", Severity: Info, Duration: time.Second})
	if a.Len() != 1 || b.Len() != 1 || len(seen) != 1 {
		t.Fatalf("fan-out incomplete: a=%d b=%d func=%d", a.Len(), b.Len(), len(seen))
	}
}
