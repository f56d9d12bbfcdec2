package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/identity"
	"homebudget/internal/log"
	"homebudget/internal/notify"
)

// Session is the budget controller of one user. It owns the current budget,
// the active selection, the budget name cache and the live subscription on
// the active budget document. Operations are serialized: at most one runs at
// a time, including the handling of subscription snapshots.
type Session struct {
	store     docstore.Store
	identity  identity.Provider
	notifier  notify.Notifier
	confirmer Confirmer
	now       func() time.Time

	// ctx bounds subscriptions and work triggered by snapshots
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	logger   *log.Logger
	userID   string
	started  bool
	closed   bool
	connErr  error
	budgets  []core.BudgetName
	activeID string
	current  *core.Budget
	sub      subscription
	gen      uint64
	// rev is the store revision current reflects. Snapshots at or below it
	// are echoes of writes already applied.
	rev      uint64
	version  uint64
	watchers map[chan View]struct{}
}

// subscription is the live watch on the active budget, tagged with the budget
// and generation it was opened for.
type subscription struct {
	budgetID string
	gen      uint64
	cancel   docstore.Unsubscribe
}

// Options configures a Session. Store and Identity are required.
type Options struct {
	Store     docstore.Store
	Identity  identity.Provider
	Notifier  notify.Notifier
	Confirmer Confirmer
	Logger    *log.Logger
	Clock     func() time.Time
}

// View is the read-only state exposed to the rendering layer.
type View struct {
	UserID         string            `json:"userId"`
	ActiveBudgetID string            `json:"activeBudgetId"`
	Budgets        []core.BudgetName `json:"budgets"`
	Budget         *core.Budget      `json:"budget"`
	Summary        *core.Summary     `json:"summary,omitempty"`
	Connected      bool              `json:"connected"`
	Version        uint64            `json:"version"`
}

// NewSession creates an idle controller. Nothing touches the store before Start.
func NewSession(opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = notify.Multi{}
	}
	if opts.Confirmer == nil {
		opts.Confirmer = ContextConfirmer{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		store:     opts.Store,
		identity:  opts.Identity,
		notifier:  opts.Notifier,
		confirmer: opts.Confirmer,
		now:       opts.Clock,
		logger:    opts.Logger.WithComponent(log.ComponentSession),
		ctx:       ctx,
		cancel:    cancel,
		watchers:  make(map[chan View]struct{}),
	}
}

// Start runs the startup sequence once: identity, legacy migration, selection
// of the active budget and its subscription. A failure to reach the store is
// reported as a persistent notification.
func (s *Session) Start(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.ensureUserLocked(ctx); err != nil {
		return err
	}

	if migrated, err := s.migrateLocked(ctx); err != nil {
		// a failed migration is retried on the next start
		s.fail(ctx, log.OpMigrate, "Could not update account structure.", err)
	} else if migrated {
		s.succeed(ctx, log.OpMigrate, "Account update complete!")
	}

	if err := s.resolveLocked(ctx, 0, true); err != nil {
		return s.connectivityLocked(ctx, err)
	}
	s.started = true
	s.logger.InfoContext(ctx, "Session started",
		log.FieldOperation, log.OpStartup,
		log.FieldBudgetID, s.activeID)
	return nil
}

// Close releases the subscription and ends every update stream.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.unbindLocked()
	for ch := range s.watchers {
		delete(s.watchers, ch)
		close(ch)
	}
	s.cancel()
	return nil
}

// UserID returns the identifier the session acts for, empty before Start.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// ActiveBudgetID returns the id of the selected budget.
func (s *Session) ActiveBudgetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Budgets returns the name cache in enumeration order.
func (s *Session) Budgets() []core.BudgetName {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.budgets)
}

// Current returns a copy of the loaded budget.
func (s *Session) Current() (core.Budget, error) {
	if err := s.lock(); err != nil {
		return core.Budget{}, err
	}
	defer s.mu.Unlock()
	return s.activeLocked()
}

// View returns a snapshot of the session state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Updates streams views after every state change, starting with the current
// one. A slow reader only sees the latest view. The channel is closed when
// ctx is done or the session closes.
func (s *Session) Updates(ctx context.Context) <-chan View {
	ch := make(chan View, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.watchers[ch] = struct{}{}
	ch <- s.viewLocked()
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *Session) ensureUserLocked(ctx context.Context) error {
	if s.userID != "" {
		return nil
	}
	uid, err := s.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("identify user: %w", err)
	}
	s.userID = uid
	s.logger = s.logger.With(log.FieldUserID, uid)
	return nil
}

func (s *Session) activeLocked() (core.Budget, error) {
	if s.current == nil || s.activeID == "" {
		return core.Budget{}, ErrNoActiveBudget
	}
	return s.current.Clone(), nil
}

// bindLocked loads budget id, makes it the active budget and replaces the
// live subscription. It is the only place a subscription is opened.
func (s *Session) bindLocked(ctx context.Context, id string) error {
	p := docstore.BudgetDoc(s.userID, id)
	doc, err := s.store.Get(ctx, p)
	if err != nil {
		return err
	}
	b, err := decodeBudget(doc.Data)
	if err != nil {
		return err
	}

	s.unbindLocked()
	s.gen++
	gen := s.gen
	s.activeID = id
	s.current = &b
	s.rev = doc.Rev
	s.connErr = nil
	s.syncNameLocked(id, b.Name)

	cancel, err := s.store.Subscribe(s.ctx, p, func(snap docstore.Snapshot) {
		s.onSnapshot(id, gen, snap)
	})
	if err != nil {
		s.broadcastLocked()
		return fmt.Errorf("subscribe to budget %s: %w", id, err)
	}
	s.sub = subscription{budgetID: id, gen: gen, cancel: cancel}
	s.logger.DebugContext(ctx, "Subscribed to budget",
		log.FieldOperation, log.OpSubscribe,
		log.FieldBudgetID, id,
		log.FieldGeneration, gen)
	s.broadcastLocked()
	return nil
}

func (s *Session) unbindLocked() {
	if s.sub.cancel != nil {
		s.sub.cancel()
	}
	s.sub = subscription{}
}

// onSnapshot applies a snapshot delivered by the subscription opened for
// budgetID at generation gen. Snapshots of replaced subscriptions are dropped.
func (s *Session) onSnapshot(budgetID string, gen uint64, snap docstore.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen || budgetID != s.activeID {
		s.logger.Debug("Discarding stale snapshot",
			log.FieldBudgetID, budgetID,
			log.FieldGeneration, gen)
		return
	}

	switch {
	case snap.Err != nil:
		s.connectivityLocked(s.ctx, snap.Err)
		s.notifyLocked(s.ctx, notify.Persistent(notify.Danger, "Connection to data lost. Please refresh."))

	case !snap.Exists:
		s.logger.Warn("Active budget disappeared, resolving again", log.FieldBudgetID, budgetID)
		s.notifyLocked(s.ctx, notify.Transient(notify.Danger, fmt.Sprintf("Error: Could not find budget with ID %s.", budgetID)))
		s.unbindLocked()
		s.current = nil
		s.activeID = ""
		if err := s.resolveLocked(s.ctx, 0, false); err != nil {
			s.connectivityLocked(s.ctx, err)
			s.notifyLocked(s.ctx, notify.Persistent(notify.Danger, "Connection to data lost. Please refresh."))
		}

	case snap.Rev <= s.rev:
		s.logger.Debug("Discarding outdated snapshot",
			log.FieldBudgetID, budgetID,
			log.FieldGeneration, gen)

	default:
		b, err := decodeBudget(snap.Data)
		if err != nil {
			s.logger.Error("Ignoring undecodable budget snapshot",
				log.FieldBudgetID, budgetID,
				log.FieldError, err)
			return
		}
		s.current = &b
		s.rev = snap.Rev
		s.connErr = nil
		s.syncNameLocked(budgetID, b.Name)
		s.broadcastLocked()
	}
}

// connectivityLocked marks the session disconnected and returns an
// ErrConnectivity error. Only a session that never started is notified here;
// later losses are reported by the caller.
func (s *Session) connectivityLocked(ctx context.Context, err error) error {
	s.connErr = err
	s.logger.ErrorContext(ctx, "Document store unreachable",
		log.FieldBudgetID, s.activeID,
		log.FieldError, err)
	s.broadcastLocked()
	if !s.started {
		s.notifyLocked(ctx, notify.Persistent(notify.Danger, "Critical Error: Could not connect to the service. Please refresh."))
	}
	return fmt.Errorf("%w: %v", ErrConnectivity, err)
}

func (s *Session) syncNameLocked(id, name string) {
	if name == "" {
		name = core.UntitledBudgetName
	}
	for i := range s.budgets {
		if s.budgets[i].ID == id {
			s.budgets[i].Name = name
			return
		}
	}
	s.budgets = append(s.budgets, core.BudgetName{ID: id, Name: name})
}

func (s *Session) nameLocked(id string) (string, bool) {
	for _, b := range s.budgets {
		if b.ID == id {
			return b.Name, true
		}
	}
	return "", false
}

func (s *Session) viewLocked() View {
	v := View{
		UserID:         s.userID,
		ActiveBudgetID: s.activeID,
		Budgets:        slices.Clone(s.budgets),
		Connected:      s.connErr == nil,
		Version:        s.version,
	}
	if v.Budgets == nil {
		v.Budgets = []core.BudgetName{}
	}
	if s.current != nil {
		b := s.current.Clone()
		sum := core.Summarize(b)
		v.Budget = &b
		v.Summary = &sum
	}
	return v
}

func (s *Session) broadcastLocked() {
	s.version++
	if len(s.watchers) == 0 {
		return
	}
	v := s.viewLocked()
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (s *Session) notifyLocked(ctx context.Context, n notify.Notification) {
	if n.At.IsZero() {
		n.At = s.now()
	}
	s.notifier.Notify(ctx, n)
}

// fail logs err, shows msg as a transient danger notification and returns err.
func (s *Session) fail(ctx context.Context, op, msg string, err error) error {
	s.logger.ErrorContext(ctx, msg,
		log.FieldOperation, op,
		log.FieldBudgetID, s.activeID,
		log.FieldError, err)
	s.notifyLocked(ctx, notify.Transient(notify.Danger, msg))
	return err
}

// reject reports a refused request as a danger notification without
// logging it as an error.
func (s *Session) reject(ctx context.Context, op, msg string, err error) error {
	s.logger.InfoContext(ctx, "Request rejected",
		log.FieldOperation, op,
		log.FieldBudgetID, s.activeID,
		log.FieldError, err)
	s.notifyLocked(ctx, notify.Transient(notify.Danger, msg))
	return err
}

func (s *Session) succeed(ctx context.Context, op, msg string) {
	s.logger.InfoContext(ctx, msg,
		log.FieldOperation, op,
		log.FieldBudgetID, s.activeID)
	s.notifyLocked(ctx, notify.Transient(notify.Success, msg))
}

// confirmLocked asks for approval. A declined confirmation yields
// ErrCancelled, which callers return without notifying.
func (s *Session) confirmLocked(ctx context.Context, title, message string) error {
	ok, err := s.confirmer.Confirm(ctx, title, message)
	if err != nil {
		return fmt.Errorf("confirm %q: %w", title, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCancelled, title)
	}
	return nil
}

// decodeBudget parses a stored budget, fills missing fields and rebuilds the
// category totals. Stored totals are never trusted.
func decodeBudget(data json.RawMessage) (core.Budget, error) {
	var b core.Budget
	if err := json.Unmarshal(data, &b); err != nil {
		return core.Budget{}, fmt.Errorf("decode budget: %w", err)
	}
	return core.Normalize(b).Recalculated(), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}
