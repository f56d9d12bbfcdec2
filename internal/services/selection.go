package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/log"
	"homebudget/internal/notify"
)

// maxResolveAttempts bounds re-enumeration when budgets vanish while the
// active one is being selected.
const maxResolveAttempts = 3

// ResolveInitialActiveBudget enumerates the budgets of the user and selects
// the active one: the stored preference when it still exists, otherwise the
// first budget, which is then persisted as the corrected preference. A user
// without budgets gets a fresh one from the default template.
func (s *Session) ResolveInitialActiveBudget(ctx context.Context) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	if err := s.ensureUserLocked(ctx); err != nil {
		return "", err
	}
	if err := s.resolveLocked(ctx, 0, true); err != nil {
		return "", s.fail(ctx, log.OpResolve, "Could not load your budgets.", err)
	}
	return s.activeID, nil
}

// resolveLocked selects the active budget. announce reports a budget created
// for a user without any; callers that have already notified pass false.
func (s *Session) resolveLocked(ctx context.Context, attempt int, announce bool) error {
	if attempt >= maxResolveAttempts {
		return fmt.Errorf("resolve active budget: budgets keep disappearing")
	}
	names, err := s.listBudgetsLocked(ctx)
	if err != nil {
		return err
	}
	s.budgets = names

	if len(names) == 0 {
		id, err := s.createLocked(ctx, core.FirstBudgetName)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Budget %q created.", core.FirstBudgetName)
		if announce {
			s.succeed(ctx, log.OpCreate, msg)
		} else {
			// the caller has already reported this operation
			s.logger.InfoContext(ctx, msg, log.FieldOperation, log.OpCreate, log.FieldBudgetID, id)
		}
		if err := s.bindLocked(ctx, id); err != nil {
			return err
		}
		s.persistPreferenceLocked(ctx, id)
		return nil
	}

	preferred, err := s.readPreferenceLocked(ctx)
	if err != nil {
		return err
	}
	candidates := make([]string, 0, len(names))
	if _, ok := s.nameLocked(preferred); ok {
		candidates = append(candidates, preferred)
	}
	for _, n := range names {
		if n.ID != preferred {
			candidates = append(candidates, n.ID)
		}
	}

	for _, id := range candidates {
		err := s.bindLocked(ctx, id)
		if isNotFound(err) {
			s.dropNameLocked(id)
			continue
		}
		if err != nil {
			return err
		}
		if id != preferred {
			s.logger.InfoContext(ctx, "Repairing active budget preference",
				log.FieldOperation, log.OpResolve,
				log.FieldBudgetID, id,
				"stale_budget_id", preferred)
			s.persistPreferenceLocked(ctx, id)
		}
		return nil
	}
	return s.resolveLocked(ctx, attempt+1, announce)
}

// SwitchActiveBudget makes id the active budget. Switching to the already
// active budget does nothing.
func (s *Session) SwitchActiveBudget(ctx context.Context, id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if id == s.activeID {
		return nil
	}
	name, ok := s.nameLocked(id)
	if !ok {
		return s.reject(ctx, log.OpSwitch, "That budget no longer exists.", fmt.Errorf("%w: %s", ErrUnknownBudget, id))
	}

	s.persistPreferenceLocked(ctx, id)
	if err := s.bindLocked(ctx, id); err != nil {
		if isNotFound(err) {
			s.dropNameLocked(id)
			s.notifyDangerLocked(ctx, fmt.Sprintf("Error: Could not find budget with ID %s.", id))
			if rerr := s.resolveLocked(ctx, 0, false); rerr != nil {
				s.logger.ErrorContext(ctx, "Could not resolve active budget", log.FieldError, rerr)
			}
			return fmt.Errorf("%w: %s", ErrUnknownBudget, id)
		}
		return s.fail(ctx, log.OpSwitch, fmt.Sprintf("Could not open budget %q.", name), err)
	}
	s.succeed(ctx, log.OpSwitch, fmt.Sprintf("Switched to %q.", name))
	return nil
}

// CreateBudget stores a new budget seeded from the default template and adds
// it to the name cache. It becomes active only when activate is set.
func (s *Session) CreateBudget(ctx context.Context, name string, activate bool) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	if err := s.ensureUserLocked(ctx); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", s.reject(ctx, log.OpCreate, "A budget needs a name.", core.ErrEmptyName)
	}

	id, err := s.createLocked(ctx, name)
	if err != nil {
		return "", s.fail(ctx, log.OpCreate, "Could not create new budget.", err)
	}
	if activate {
		s.persistPreferenceLocked(ctx, id)
		if err := s.bindLocked(ctx, id); err != nil {
			return id, s.fail(ctx, log.OpCreate, fmt.Sprintf("Budget %q created, but it could not be opened.", name), err)
		}
	} else {
		s.broadcastLocked()
	}
	s.succeed(ctx, log.OpCreate, fmt.Sprintf("Budget %q created.", name))
	return id, nil
}

func (s *Session) createLocked(ctx context.Context, name string) (string, error) {
	b := core.DefaultBudget()
	b.Name = name
	p, err := s.store.Add(ctx, docstore.UserBudgets(s.userID), b)
	if err != nil {
		return "", fmt.Errorf("add budget: %w", err)
	}
	s.syncNameLocked(p.ID(), name)
	return p.ID(), nil
}

// DeleteActiveBudget removes the active budget after confirmation and
// switches to a remaining one. The only budget of a user is never deleted.
// When the remote delete fails the name cache entry is restored.
func (s *Session) DeleteActiveBudget(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.activeID == "" {
		return s.reject(ctx, log.OpDelete, "No budget selected.", ErrNoActiveBudget)
	}
	if len(s.budgets) <= 1 {
		return s.reject(ctx, log.OpDelete, "You cannot delete your only budget.", ErrLastBudget)
	}

	deletedID := s.activeID
	name, _ := s.nameLocked(deletedID)
	err := s.confirmLocked(ctx,
		fmt.Sprintf("Delete %q?", name),
		"This is permanent and will delete all associated data for this budget.")
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(s.budgets, func(b core.BudgetName) bool { return b.ID == deletedID })
	removed := s.budgets[idx]
	s.budgets = slices.Delete(s.budgets, idx, idx+1)
	nextID := s.budgets[0].ID

	s.persistPreferenceLocked(ctx, nextID)
	if err := s.bindLocked(ctx, nextID); err != nil {
		s.logger.ErrorContext(ctx, "Could not open the next budget",
			log.FieldOperation, log.OpSwitch,
			log.FieldBudgetID, nextID,
			log.FieldError, err)
	}

	if err := s.store.Delete(ctx, docstore.BudgetDoc(s.userID, deletedID)); err != nil {
		s.budgets = slices.Insert(s.budgets, min(idx, len(s.budgets)), removed)
		s.broadcastLocked()
		return s.fail(ctx, log.OpDelete, "Failed to delete budget.", err)
	}
	s.purgeArchivesLocked(ctx, deletedID)
	s.broadcastLocked()
	s.succeed(ctx, log.OpDelete, fmt.Sprintf("Budget %q deleted.", name))
	return nil
}

// purgeArchivesLocked deletes the archive snapshots of a deleted budget.
// Failures only leave orphaned snapshots behind and are logged.
func (s *Session) purgeArchivesLocked(ctx context.Context, budgetID string) {
	docs, err := s.store.List(ctx, docstore.ArchiveCollection(s.userID, budgetID))
	if err != nil {
		s.logger.WarnContext(ctx, "Could not list archives of deleted budget",
			log.FieldBudgetID, budgetID, log.FieldError, err)
		return
	}
	for _, d := range docs {
		if err := s.store.Delete(ctx, d.Path); err != nil {
			s.logger.WarnContext(ctx, "Could not delete archive of deleted budget",
				log.FieldBudgetID, budgetID,
				log.FieldPeriod, d.Path.ID(),
				log.FieldError, err)
		}
	}
}

func (s *Session) listBudgetsLocked(ctx context.Context) ([]core.BudgetName, error) {
	docs, err := s.store.List(ctx, docstore.UserBudgets(s.userID))
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	names := make([]core.BudgetName, 0, len(docs))
	for _, d := range docs {
		var head struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(d.Data, &head); err != nil {
			s.logger.WarnContext(ctx, "Budget document without readable name",
				log.FieldBudgetID, d.Path.ID(), log.FieldError, err)
		}
		if head.Name == "" {
			head.Name = core.UntitledBudgetName
		}
		names = append(names, core.BudgetName{ID: d.Path.ID(), Name: head.Name})
	}
	return names, nil
}

func (s *Session) dropNameLocked(id string) {
	s.budgets = slices.DeleteFunc(s.budgets, func(b core.BudgetName) bool { return b.ID == id })
}

func (s *Session) readPreferenceLocked(ctx context.Context) (string, error) {
	doc, err := s.store.Get(ctx, docstore.PreferencesDoc(s.userID))
	if isNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read preferences: %w", err)
	}
	var pref core.UserPreference
	if err := doc.Decode(&pref); err != nil {
		s.logger.WarnContext(ctx, "Ignoring unreadable preferences", log.FieldError, err)
		return "", nil
	}
	return pref.ActiveBudgetID, nil
}

func (s *Session) writePreferenceLocked(ctx context.Context, id string) error {
	return s.store.Set(ctx, docstore.PreferencesDoc(s.userID), core.UserPreference{ActiveBudgetID: id})
}

// persistPreferenceLocked stores the active budget choice. The selection
// itself does not depend on it, so failures are only logged.
func (s *Session) persistPreferenceLocked(ctx context.Context, id string) {
	if err := s.writePreferenceLocked(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Could not save user preference",
			log.FieldBudgetID, id,
			log.FieldError, err)
	}
}

func (s *Session) notifyDangerLocked(ctx context.Context, msg string) {
	s.notifyLocked(ctx, notify.Transient(notify.Danger, msg))
}
