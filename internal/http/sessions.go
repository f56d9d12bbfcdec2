package http

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"homebudget/internal/cache"
	"homebudget/internal/docstore"
	"homebudget/internal/identity"
	"homebudget/internal/log"
	"homebudget/internal/notify"
	"homebudget/internal/services"
)

// inboxSize bounds the notifications kept for a user between two polls.
const inboxSize = 50

// userSession is a running controller plus the inbox its notifications land in.
type userSession struct {
	*services.Session
	inbox *notify.Queue
}

// Sessions hosts one started controller per user. Idle sessions expire and
// are closed; concurrent first requests of a user share a single start.
type Sessions struct {
	store  docstore.Store
	logger *log.Logger
	clock  func() time.Time
	cache  *cache.LRUCache[*userSession]
	group  singleflight.Group
}

// SessionsConfig configures a Sessions pool.
type SessionsConfig struct {
	MaxSessions int
	IdleTTL     time.Duration
	Clock       func() time.Time
}

func NewSessions(store docstore.Store, logger *log.Logger, cfg SessionsConfig) *Sessions {
	s := &Sessions{
		store:  store,
		logger: logger.WithComponent(log.ComponentSession),
		clock:  cfg.Clock,
	}
	s.cache = cache.NewLRUCache(cfg.MaxSessions, cfg.IdleTTL, func(uid string, us *userSession) {
		s.logger.Debug("Closing idle session", log.FieldUserID, uid)
		_ = us.Close()
	})
	return s
}

// Get returns the started session of uid, starting it when needed. A
// session that lost its store connection is replaced.
func (s *Sessions) Get(ctx context.Context, uid string) (*userSession, error) {
	if us, ok := s.live(uid); ok {
		return us, nil
	}
	v, err, _ := s.group.Do(uid, func() (any, error) {
		if us, ok := s.live(uid); ok {
			return us, nil
		}
		us := s.newSession(uid)
		// the start must outlive the request that triggered it
		startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := us.Start(startCtx); err != nil {
			_ = us.Close()
			return nil, fmt.Errorf("start session: %w", err)
		}
		s.cache.Set(uid, us)
		return us, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*userSession), nil
}

func (s *Sessions) newSession(uid string) *userSession {
	inbox := notify.NewQueue(inboxSize)
	logger := s.logger.With(log.FieldUserID, uid)
	return &userSession{
		Session: services.NewSession(services.Options{
			Store:     s.store,
			Identity:  identity.Static(uid),
			Notifier:  notify.Multi{inbox, notify.NewLogNotifier(logger)},
			Confirmer: services.ContextConfirmer{},
			Logger:    logger,
			Clock:     s.clock,
		}),
		inbox: inbox,
	}
}

func (s *Sessions) live(uid string) (*userSession, bool) {
	us, ok := s.cache.Get(uid)
	if !ok {
		return nil, false
	}
	if !us.View().Connected {
		s.drop(uid, us)
		return nil, false
	}
	return us, true
}

// drop closes us and forgets it unless it was already replaced.
func (s *Sessions) drop(uid string, us *userSession) {
	if cur, ok := s.cache.Get(uid); ok && cur == us {
		s.cache.Delete(uid)
		return
	}
	_ = us.Close()
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.Size()
}

// CleanExpired closes sessions idle past their TTL.
func (s *Sessions) CleanExpired() int {
	return s.cache.CleanExpired()
}

// Close ends every session.
func (s *Sessions) Close() {
	s.cache.Purge()
}
