package services

import (
	"context"
	"encoding/json"
	"fmt"

	"homebudget/internal/core"
	"homebudget/internal/docstore"
	"homebudget/internal/log"
)

// Migrate moves the single legacy budget of the user into the multi-budget
// collection. It runs only while the legacy document exists and the
// collection is empty, so re-running it after a partial failure is safe.
// It reports whether a migration happened.
func (s *Session) Migrate(ctx context.Context) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	if err := s.ensureUserLocked(ctx); err != nil {
		return false, err
	}

	migrated, err := s.migrateLocked(ctx)
	if err != nil {
		return migrated, s.fail(ctx, log.OpMigrate, "Could not update account structure.", err)
	}
	if migrated {
		s.succeed(ctx, log.OpMigrate, "Account update complete!")
	}
	return migrated, nil
}

func (s *Session) migrateLocked(ctx context.Context) (bool, error) {
	legacyPath := docstore.LegacyBudgetDoc(s.userID)
	budgetsPath := docstore.UserBudgets(s.userID)

	legacy, err := s.store.Get(ctx, legacyPath)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read legacy budget: %w", err)
	}
	existing, err := s.store.List(ctx, budgetsPath)
	if err != nil {
		return false, fmt.Errorf("list budgets: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	s.logger.InfoContext(ctx, "Migrating legacy budget", log.FieldOperation, log.OpMigrate)

	// copied as raw fields so nothing the current model lacks is lost
	var fields map[string]json.RawMessage
	if err := legacy.Decode(&fields); err != nil {
		return false, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	name, err := json.Marshal(core.LegacyBudgetName)
	if err != nil {
		return false, err
	}
	fields["name"] = name

	p, err := s.store.Add(ctx, budgetsPath, fields)
	if err != nil {
		return false, fmt.Errorf("copy legacy budget: %w", err)
	}
	if err := s.writePreferenceLocked(ctx, p.ID()); err != nil {
		s.logger.WarnContext(ctx, "Could not save user preference",
			log.FieldOperation, log.OpMigrate,
			log.FieldBudgetID, p.ID(),
			log.FieldError, err)
	}
	if err := s.store.Delete(ctx, legacyPath); err != nil {
		return true, fmt.Errorf("delete legacy budget: %w", err)
	}
	return true, nil
}
