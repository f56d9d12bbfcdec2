package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"homebudget/internal/log"
)

// notificationPoll is how often the event stream forwards queued notifications.
const notificationPoll = 500 * time.Millisecond

// handleNotifications drains the caller's notification inbox.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": us.inbox.Drain()})
}

// handleEvents streams server-sent events: a "view" event after every state
// change of the session and a "notification" event for every notification,
// which is then removed from the inbox.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	us, ok := s.session(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-store")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Event stream not supported", log.FieldError, err)
		return
	}

	ctx := r.Context()
	views := us.Updates(ctx)
	poll := time.NewTicker(notificationPoll)
	defer poll.Stop()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case v, open := <-views:
			if !open {
				return
			}
			err = writeEvent(w, "view", v)
		case <-poll.C:
			for _, n := range us.inbox.Drain() {
				if err = writeEvent(w, "notification", n); err != nil {
					break
				}
			}
		case <-heartbeat.C:
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			log.FromContext(ctx).DebugContext(ctx, "Event stream closed", log.FieldError, err)
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
