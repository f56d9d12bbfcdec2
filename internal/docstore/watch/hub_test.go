package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homebudget/internal/docstore"
)

func waitFor(t *testing.T, ch <-chan docstore.Snapshot) docstore.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return docstore.Snapshot{}
}

func TestHubDeliversInitialAndPublished(t *testing.T) {
	h := NewHub()
	defer h.Close()
	p := docstore.Path("users/u/budgets/b")
	got := make(chan docstore.Snapshot, 4)

	cancel := h.Subscribe(context.Background(), p, docstore.Snapshot{Path: p}, func(s docstore.Snapshot) { got <- s })
	defer cancel()

	if s := waitFor(t, got); s.Exists {
		t.Fatalf("initial snapshot should report missing document")
	}
	h.Publish(docstore.Snapshot{Path: p, Exists: true, Data: []byte(`{"name":"x"}`)})
	if s := waitFor(t, got); !s.Exists || string(s.Data) != `{"name":"x"}` {
		t.Fatalf("unexpected snapshot %+v", s)
	}

	h.Publish(docstore.Snapshot{Path: "users/u/budgets/other", Exists: true})
	select {
	case s := <-got:
		t.Fatalf("received snapshot for another path: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubCoalescesSlowSubscriber(t *testing.T) {
	h := NewHub()
	defer h.Close()
	p := docstore.Path("users/u/budgets/b")

	release := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 8)
	cancel := h.Subscribe(context.Background(), p, docstore.Snapshot{Path: p, Data: []byte("0")}, func(s docstore.Snapshot) {
		if string(s.Data) == "0" {
			<-release
		}
		mu.Lock()
		seen = append(seen, string(s.Data))
		mu.Unlock()
		done <- struct{}{}
	})
	defer cancel()

	time.Sleep(20 * time.Millisecond)
	for _, v := range []string{"1", "2", "3"} {
		h.Publish(docstore.Snapshot{Path: p, Data: []byte(v)})
	}
	close(release)
	<-done
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[1] != "3" {
		t.Fatalf("expected initial then latest snapshot, got %v", seen)
	}
}

func TestHubUnsubscribeAndContext(t *testing.T) {
	h := NewHub()
	defer h.Close()
	p := docstore.Path("users/u/budgets/b")

	cancel := h.Subscribe(context.Background(), p, docstore.Snapshot{Path: p}, func(docstore.Snapshot) {})
	cancel()
	cancel()
	if n := h.Subscribers(p); n != 0 {
		t.Fatalf("subscribers=%d after unsubscribe", n)
	}

	ctx, stop := context.WithCancel(context.Background())
	h.Subscribe(ctx, p, docstore.Snapshot{Path: p}, func(docstore.Snapshot) {})
	stop()
	deadline := time.Now().Add(time.Second)
	for h.Subscribers(p) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("context cancellation did not unsubscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastError(t *testing.T) {
	h := NewHub()
	defer h.Close()
	p := docstore.Path("users/u/budgets/b")
	got := make(chan docstore.Snapshot, 4)
	cancel := h.Subscribe(context.Background(), p, docstore.Snapshot{Path: p}, func(s docstore.Snapshot) { got <- s })
	defer cancel()
	waitFor(t, got)

	boom := errors.New("offline")
	h.Broadcast(boom)
	if s := waitFor(t, got); !errors.Is(s.Err, boom) || s.Path != p {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}
